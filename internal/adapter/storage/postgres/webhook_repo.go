package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"webhook-relay/internal/core/domain"
	"webhook-relay/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const webhookColumns = `id, name, url, event_types, secret, headers, is_active, retry_policy, client_id, created_at, updated_at`

// WebhookRepo implements ports.WebhookRepository. event_types is stored as a
// text array; headers and retry_policy as jsonb.
type WebhookRepo struct {
	pool Pool
}

// NewWebhookRepo creates a new WebhookRepo.
func NewWebhookRepo(pool Pool) *WebhookRepo {
	return &WebhookRepo{pool: pool}
}

// Create inserts a new webhook.
func (r *WebhookRepo) Create(ctx context.Context, w *domain.Webhook) error {
	headers, policy, err := marshalWebhookJSON(w)
	if err != nil {
		return err
	}

	query := `INSERT INTO webhooks (id, name, url, event_types, secret, headers, is_active, retry_policy, client_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.pool.Exec(ctx, query,
		w.ID, w.Name, w.URL, w.EventTypes, w.Secret,
		headers, w.IsActive, policy, w.ClientID,
		w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook: %w", err)
	}
	return nil
}

// GetByID fetches a webhook by its UUID.
func (r *WebhookRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE id = $1`

	w, err := scanWebhook(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get webhook by id: %w", err)
	}
	return w, nil
}

// List returns webhooks matching the filter, newest first, with the total count.
func (r *WebhookRepo) List(ctx context.Context, params ports.WebhookListParams) ([]domain.Webhook, int64, error) {
	where := ` WHERE ($1::text IS NULL OR $1 = '' OR client_id = $1) AND ($2::boolean IS NULL OR is_active = $2)`

	var clientID *string
	if params.ClientID != "" {
		clientID = &params.ClientID
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM webhooks`+where, clientID, params.IsActive).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count webhooks: %w", err)
	}

	query := `SELECT ` + webhookColumns + ` FROM webhooks` + where +
		` ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, clientID, params.IsActive, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	webhooks, err := collectWebhooks(rows)
	if err != nil {
		return nil, 0, err
	}
	return webhooks, total, nil
}

// ListActiveByEventType returns active webhooks subscribed to eventType.
func (r *WebhookRepo) ListActiveByEventType(ctx context.Context, eventType string) ([]domain.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks
		WHERE is_active = TRUE AND $1 = ANY(event_types)
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, eventType)
	if err != nil {
		return nil, fmt.Errorf("list active webhooks by event type: %w", err)
	}
	defer rows.Close()

	return collectWebhooks(rows)
}

// Update updates a webhook record.
func (r *WebhookRepo) Update(ctx context.Context, w *domain.Webhook) error {
	headers, policy, err := marshalWebhookJSON(w)
	if err != nil {
		return err
	}

	query := `UPDATE webhooks
		SET name=$1, url=$2, event_types=$3, secret=$4, headers=$5, is_active=$6, retry_policy=$7, updated_at=NOW()
		WHERE id=$8`
	_, err = r.pool.Exec(ctx, query,
		w.Name, w.URL, w.EventTypes, w.Secret, headers, w.IsActive, policy, w.ID,
	)
	if err != nil {
		return fmt.Errorf("update webhook: %w", err)
	}
	return nil
}

// Delete removes a webhook. Deliveries referencing it are kept untouched.
func (r *WebhookRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete webhook: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func marshalWebhookJSON(w *domain.Webhook) ([]byte, []byte, error) {
	headers, err := json.Marshal(w.Headers)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal webhook headers: %w", err)
	}
	policy, err := json.Marshal(w.RetryPolicy)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal webhook retry policy: %w", err)
	}
	return headers, policy, nil
}

func scanWebhook(row pgx.Row) (*domain.Webhook, error) {
	w := &domain.Webhook{}
	var headers, policy []byte
	err := row.Scan(
		&w.ID, &w.Name, &w.URL, &w.EventTypes, &w.Secret,
		&headers, &w.IsActive, &policy, &w.ClientID,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &w.Headers); err != nil {
			return nil, fmt.Errorf("unmarshal webhook headers: %w", err)
		}
	}
	if len(policy) > 0 {
		if err := json.Unmarshal(policy, &w.RetryPolicy); err != nil {
			return nil, fmt.Errorf("unmarshal webhook retry policy: %w", err)
		}
	}
	return w, nil
}

func collectWebhooks(rows pgx.Rows) ([]domain.Webhook, error) {
	var webhooks []domain.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		webhooks = append(webhooks, *w)
	}
	return webhooks, rows.Err()
}
