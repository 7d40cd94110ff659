package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"webhook-relay/internal/core/domain"
	"webhook-relay/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWebhook() *domain.Webhook {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Webhook{
		ID:          uuid.New(),
		Name:        "orders-consumer",
		URL:         "https://consumer.example.com/hooks",
		EventTypes:  []string{"order.created", "order.paid"},
		Secret:      "aabbccdd",
		Headers:     map[string]string{"Authorization": "Bearer tok"},
		IsActive:    true,
		RetryPolicy: domain.DefaultRetryPolicy(),
		ClientID:    "client-1",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func webhookColumnNames() []string {
	return []string{"id", "name", "url", "event_types", "secret", "headers", "is_active", "retry_policy", "client_id", "created_at", "updated_at"}
}

func webhookRow(t *testing.T, w *domain.Webhook) *pgxmock.Rows {
	t.Helper()
	headers, err := json.Marshal(w.Headers)
	require.NoError(t, err)
	policy, err := json.Marshal(w.RetryPolicy)
	require.NoError(t, err)
	return pgxmock.NewRows(webhookColumnNames()).AddRow(
		w.ID, w.Name, w.URL, w.EventTypes, w.Secret,
		headers, w.IsActive, policy, w.ClientID,
		w.CreatedAt, w.UpdatedAt,
	)
}

func TestWebhookRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepo(mock)
	w := newTestWebhook()
	headers, _ := json.Marshal(w.Headers)
	policy, _ := json.Marshal(w.RetryPolicy)

	mock.ExpectExec("INSERT INTO webhooks").
		WithArgs(w.ID, w.Name, w.URL, w.EventTypes, w.Secret,
			headers, w.IsActive, policy, w.ClientID,
			w.CreatedAt, w.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), w)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepo_GetByID_RoundTripsJSONColumns(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepo(mock)
	w := newTestWebhook()

	mock.ExpectQuery("SELECT (.+) FROM webhooks WHERE id").
		WithArgs(w.ID).
		WillReturnRows(webhookRow(t, w))

	got, err := repo.GetByID(context.Background(), w.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, w.EventTypes, got.EventTypes)
	assert.Equal(t, w.Headers, got.Headers)
	assert.Equal(t, w.RetryPolicy, got.RetryPolicy)
	assert.Equal(t, w.Secret, got.Secret)
}

func TestWebhookRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM webhooks WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(webhookColumnNames()))

	got, err := repo.GetByID(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestWebhookRepo_ListActiveByEventType(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepo(mock)
	w := newTestWebhook()

	mock.ExpectQuery("SELECT (.+) FROM webhooks").
		WithArgs("order.created").
		WillReturnRows(webhookRow(t, w))

	hooks, err := repo.ListActiveByEventType(context.Background(), "order.created")
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.Equal(t, w.ID, hooks[0].ID)
}

func TestWebhookRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepo(mock)
	w := newTestWebhook()
	active := true
	clientID := "client-1"

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(&clientID, &active).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT (.+) FROM webhooks").
		WithArgs(&clientID, &active, 10, 0).
		WillReturnRows(webhookRow(t, w))

	hooks, total, err := repo.List(context.Background(), ports.WebhookListParams{
		ClientID: clientID,
		IsActive: &active,
		Limit:    10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, hooks, 1)
}

func TestWebhookRepo_Update(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepo(mock)
	w := newTestWebhook()
	headers, _ := json.Marshal(w.Headers)
	policy, _ := json.Marshal(w.RetryPolicy)

	mock.ExpectExec("UPDATE webhooks").
		WithArgs(w.Name, w.URL, w.EventTypes, w.Secret, headers, w.IsActive, policy, w.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.Update(context.Background(), w)
	assert.NoError(t, err)
}

func TestWebhookRepo_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepo(mock)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM webhooks").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	deleted, err := repo.Delete(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestWebhookRepo_Delete_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepo(mock)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM webhooks").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	deleted, err := repo.Delete(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, deleted)
}
