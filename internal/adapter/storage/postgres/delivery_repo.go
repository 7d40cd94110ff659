package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"webhook-relay/internal/core/domain"
	"webhook-relay/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const deliveryColumns = `id, event_id, webhook_id, status, http_status, response_headers, response_body, retry_count, next_retry_at, last_attempt_at, error, claimed_until, created_at, updated_at`

// DeliveryRepo implements ports.DeliveryRepository.
type DeliveryRepo struct {
	pool Pool
}

// NewDeliveryRepo creates a new DeliveryRepo.
func NewDeliveryRepo(pool Pool) *DeliveryRepo {
	return &DeliveryRepo{pool: pool}
}

// Create inserts the delivery unless one already exists for its
// (event_id, webhook_id) pair. Returns true if a row was inserted.
func (r *DeliveryRepo) Create(ctx context.Context, d *domain.Delivery) (bool, error) {
	headers, err := json.Marshal(d.ResponseHeaders)
	if err != nil {
		return false, fmt.Errorf("marshal delivery response headers: %w", err)
	}

	query := `INSERT INTO deliveries (id, event_id, webhook_id, status, http_status, response_headers, response_body, retry_count, next_retry_at, last_attempt_at, error, claimed_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (event_id, webhook_id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		d.ID, d.EventID, d.WebhookID, d.Status,
		d.HTTPStatus, headers, d.ResponseBody,
		d.RetryCount, d.NextRetryAt, d.LastAttemptAt,
		d.Error, d.ClaimedUntil, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert delivery: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetByID fetches a delivery by its UUID.
func (r *DeliveryRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE id = $1`

	d, err := scanDelivery(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get delivery by id: %w", err)
	}
	return d, nil
}

// List returns deliveries matching the filter, newest first, with the total count.
func (r *DeliveryRepo) List(ctx context.Context, params ports.DeliveryListParams) ([]domain.Delivery, int64, error) {
	where := ` WHERE ($1::text IS NULL OR status = $1)
		AND ($2::uuid IS NULL OR event_id = $2)
		AND ($3::uuid IS NULL OR webhook_id = $3)`

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM deliveries`+where,
		params.Status, params.EventID, params.WebhookID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count deliveries: %w", err)
	}

	query := `SELECT ` + deliveryColumns + ` FROM deliveries` + where +
		` ORDER BY created_at DESC LIMIT $4 OFFSET $5`
	rows, err := r.pool.Query(ctx, query,
		params.Status, params.EventID, params.WebhookID, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	deliveries, err := collectDeliveries(rows)
	if err != nil {
		return nil, 0, err
	}
	return deliveries, total, nil
}

// ListByEvent returns all deliveries for an event, oldest first.
func (r *DeliveryRepo) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries
		WHERE event_id = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries by event: %w", err)
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

// ListPending returns unclaimed pending deliveries, oldest first. A delivery
// whose lease has expired counts as unclaimed.
func (r *DeliveryRepo) ListPending(ctx context.Context, now time.Time, limit int) ([]domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries
		WHERE status = $1 AND (claimed_until IS NULL OR claimed_until <= $2)
		ORDER BY created_at ASC LIMIT $3`

	rows, err := r.pool.Query(ctx, query, domain.DeliveryStatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending deliveries: %w", err)
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

// ListDueRetries returns unclaimed retrying deliveries whose next_retry_at
// has passed, earliest due first.
func (r *DeliveryRepo) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries
		WHERE status = $1 AND next_retry_at <= $2 AND (claimed_until IS NULL OR claimed_until <= $2)
		ORDER BY next_retry_at ASC LIMIT $3`

	rows, err := r.pool.Query(ctx, query, domain.DeliveryStatusRetrying, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due retries: %w", err)
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

// Claim leases the delivery until leaseUntil. The conditional update makes
// exactly one concurrent caller win; everyone else sees zero rows affected.
func (r *DeliveryRepo) Claim(ctx context.Context, id uuid.UUID, now, leaseUntil time.Time) (bool, error) {
	query := `UPDATE deliveries SET claimed_until = $1, updated_at = NOW()
		WHERE id = $2
		AND status IN ($3, $4)
		AND (claimed_until IS NULL OR claimed_until <= $5)`

	tag, err := r.pool.Exec(ctx, query,
		leaseUntil, id,
		domain.DeliveryStatusPending, domain.DeliveryStatusRetrying,
		now,
	)
	if err != nil {
		return false, fmt.Errorf("claim delivery: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Update persists the attempt outcome fields and releases the claim by
// writing the delivery's own claimed_until (nil after an attempt).
func (r *DeliveryRepo) Update(ctx context.Context, d *domain.Delivery) error {
	headers, err := json.Marshal(d.ResponseHeaders)
	if err != nil {
		return fmt.Errorf("marshal delivery response headers: %w", err)
	}

	query := `UPDATE deliveries
		SET status=$1, http_status=$2, response_headers=$3, response_body=$4, retry_count=$5,
			next_retry_at=$6, last_attempt_at=$7, error=$8, claimed_until=$9, updated_at=NOW()
		WHERE id=$10`
	_, err = r.pool.Exec(ctx, query,
		d.Status, d.HTTPStatus, headers, d.ResponseBody, d.RetryCount,
		d.NextRetryAt, d.LastAttemptAt, d.Error, d.ClaimedUntil, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	return nil
}

// CountByStatus returns delivery counts grouped by status.
func (r *DeliveryRepo) CountByStatus(ctx context.Context) (map[domain.DeliveryStatus]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM deliveries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count deliveries by status: %w", err)
	}
	defer rows.Close()

	return collectStatusCounts(rows)
}

// CountByStatusForEvent returns delivery counts grouped by status for one event.
func (r *DeliveryRepo) CountByStatusForEvent(ctx context.Context, eventID uuid.UUID) (map[domain.DeliveryStatus]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM deliveries WHERE event_id = $1 GROUP BY status`, eventID)
	if err != nil {
		return nil, fmt.Errorf("count deliveries by status for event: %w", err)
	}
	defer rows.Close()

	return collectStatusCounts(rows)
}

func collectStatusCounts(rows pgx.Rows) (map[domain.DeliveryStatus]int64, error) {
	counts := make(map[domain.DeliveryStatus]int64)
	for rows.Next() {
		var status domain.DeliveryStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan delivery count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanDelivery(row pgx.Row) (*domain.Delivery, error) {
	d := &domain.Delivery{}
	var headers []byte
	err := row.Scan(
		&d.ID, &d.EventID, &d.WebhookID, &d.Status,
		&d.HTTPStatus, &headers, &d.ResponseBody,
		&d.RetryCount, &d.NextRetryAt, &d.LastAttemptAt,
		&d.Error, &d.ClaimedUntil, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &d.ResponseHeaders); err != nil {
			return nil, fmt.Errorf("unmarshal delivery response headers: %w", err)
		}
	}
	return d, nil
}

func collectDeliveries(rows pgx.Rows) ([]domain.Delivery, error) {
	var deliveries []domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		deliveries = append(deliveries, *d)
	}
	return deliveries, rows.Err()
}
