package postgres

import (
	"context"
	"errors"
	"fmt"

	"webhook-relay/internal/core/domain"
	"webhook-relay/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const eventColumns = `id, event_type, payload, idempotency_key, status, retry_count, last_error, created_at, updated_at`

// EventRepo implements ports.EventRepository.
type EventRepo struct {
	pool Pool
}

// NewEventRepo creates a new EventRepo.
func NewEventRepo(pool Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Create inserts a new event. A unique-constraint violation on
// idempotency_key is surfaced as ports.ErrDuplicateIdempotencyKey.
func (r *EventRepo) Create(ctx context.Context, e *domain.Event) error {
	query := `INSERT INTO events (id, event_type, payload, idempotency_key, status, retry_count, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.EventType, e.Payload, e.IdempotencyKey,
		e.Status, e.RetryCount, e.LastError,
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ports.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetByID fetches an event by its UUID.
func (r *EventRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	e, err := scanEvent(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get event by id: %w", err)
	}
	return e, nil
}

// GetByIdempotencyKey fetches an event by its idempotency key.
func (r *EventRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE idempotency_key = $1`

	e, err := scanEvent(r.pool.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get event by idempotency_key: %w", err)
	}
	return e, nil
}

// List returns events matching the filter, newest first, with the total count.
func (r *EventRepo) List(ctx context.Context, params ports.EventListParams) ([]domain.Event, int64, error) {
	where := ` WHERE ($1::text IS NULL OR status = $1) AND ($2::text IS NULL OR event_type = $2)`

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM events`+where, params.Status, params.EventType).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	query := `SELECT ` + eventColumns + ` FROM events` + where +
		` ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, params.Status, params.EventType, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events, err := collectEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// ListPendingByTypes returns pending events of the given types, oldest first.
func (r *EventRepo) ListPendingByTypes(ctx context.Context, types []string) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events
		WHERE status = $1 AND event_type = ANY($2)
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, domain.EventStatusPending, types)
	if err != nil {
		return nil, fmt.Errorf("list pending events by types: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// UpdateStatus sets the event's aggregate status and last_error.
func (r *EventRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.EventStatus, lastError *string) error {
	query := `UPDATE events SET status=$1, last_error=$2, updated_at=NOW() WHERE id=$3`

	_, err := r.pool.Exec(ctx, query, status, lastError, id)
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
	}
	return nil
}

// CountByStatus returns event counts grouped by status.
func (r *EventRepo) CountByStatus(ctx context.Context) (map[domain.EventStatus]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM events GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count events by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.EventStatus]int64)
	for rows.Next() {
		var status domain.EventStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	e := &domain.Event{}
	err := row.Scan(
		&e.ID, &e.EventType, &e.Payload, &e.IdempotencyKey,
		&e.Status, &e.RetryCount, &e.LastError,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func collectEvents(rows pgx.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}
