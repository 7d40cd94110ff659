package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"webhook-relay/internal/core/domain"
	"webhook-relay/internal/core/ports"

	"github.com/rs/zerolog"
)

// Delivery request headers. The signature covers the raw payload bytes exactly
// as sent in the body.
const (
	headerContentType = "Content-Type"
	headerSignature   = "X-Webhook-Signature"
	headerEventType   = "X-Event-Type"
	headerEventID     = "X-Event-ID"
	headerDeliveryID  = "X-Delivery-ID"
	headerTimestamp   = "X-Timestamp"
)

// maxResponseBodyBytes caps how much of an endpoint's response is recorded.
const maxResponseBodyBytes = 64 * 1024

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DispatchConfig tunes the engine's polling and concurrency.
type DispatchConfig struct {
	Concurrency  int
	PollInterval time.Duration
	BatchSize    int
	ClaimLease   time.Duration
}

// DispatchEngine is the single scheduling authority for deliveries. One poll
// loop selects due work (pending plus due retries), claims each delivery with
// a lease, and hands it to a fixed worker pool for the HTTP attempt.
type DispatchEngine struct {
	eventRepo    ports.EventRepository
	webhookRepo  ports.WebhookRepository
	deliveryRepo ports.DeliveryRepository
	signatures   ports.SignatureService
	scheduler    *RetryScheduler
	httpClient   HTTPClient
	cfg          DispatchConfig
	log          zerolog.Logger

	now func() time.Time

	tasks  chan domain.Delivery
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewDispatchEngine creates a stopped engine. Call Start to begin dispatching.
func NewDispatchEngine(
	eventRepo ports.EventRepository,
	webhookRepo ports.WebhookRepository,
	deliveryRepo ports.DeliveryRepository,
	signatures ports.SignatureService,
	httpClient HTTPClient,
	cfg DispatchConfig,
	log zerolog.Logger,
) *DispatchEngine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 2 * time.Minute
	}
	return &DispatchEngine{
		eventRepo:    eventRepo,
		webhookRepo:  webhookRepo,
		deliveryRepo: deliveryRepo,
		signatures:   signatures,
		scheduler:    NewRetryScheduler(),
		httpClient:   httpClient,
		cfg:          cfg,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the worker pool and the poll loop. It returns immediately.
func (e *DispatchEngine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.tasks = make(chan domain.Delivery)

	for i := 0; i < e.cfg.Concurrency; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}

	e.wg.Add(1)
	go e.pollLoop(ctx)

	e.log.Info().
		Int("concurrency", e.cfg.Concurrency).
		Dur("poll_interval", e.cfg.PollInterval).
		Int("batch_size", e.cfg.BatchSize).
		Msg("dispatch engine started")
}

// Stop cancels the loop and waits for in-flight attempts to finish.
func (e *DispatchEngine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	e.wg.Wait()
	e.log.Info().Msg("dispatch engine stopped")
}

func (e *DispatchEngine) pollLoop(ctx context.Context) {
	defer e.wg.Done()
	defer close(e.tasks)

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	// First pass without waiting for the ticker so a restart drains the
	// backlog immediately.
	e.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.pollOnce(ctx)
		}
	}
}

// pollOnce selects due deliveries, claims them and queues the winners.
func (e *DispatchEngine) pollOnce(ctx context.Context) {
	now := e.now()

	pending, err := e.deliveryRepo.ListPending(ctx, now, e.cfg.BatchSize)
	if err != nil {
		e.log.Error().Err(err).Msg("dispatch: listing pending deliveries failed")
		pending = nil
	}
	due, err := e.deliveryRepo.ListDueRetries(ctx, now, e.cfg.BatchSize)
	if err != nil {
		e.log.Error().Err(err).Msg("dispatch: listing due retries failed")
		due = nil
	}

	for _, d := range append(pending, due...) {
		claimed, err := e.deliveryRepo.Claim(ctx, d.ID, e.now(), e.now().Add(e.cfg.ClaimLease))
		if err != nil {
			e.log.Error().Err(err).Str("delivery_id", d.ID.String()).Msg("dispatch: claim failed")
			continue
		}
		if !claimed {
			// Another poller (or a live lease) owns it.
			continue
		}
		select {
		case e.tasks <- d:
		case <-ctx.Done():
			return
		}
	}
}

func (e *DispatchEngine) worker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-e.tasks:
			if !ok {
				return
			}
			e.attempt(ctx, &d)
		}
	}
}

// attempt runs one delivery attempt end to end: resolve refs, sign, POST,
// record the outcome, release the claim and refresh the parent event status.
// It never panics the worker; any error is recorded on the delivery.
func (e *DispatchEngine) attempt(ctx context.Context, d *domain.Delivery) {
	log := e.log.With().
		Str("delivery_id", d.ID.String()).
		Str("event_id", d.EventID.String()).
		Str("webhook_id", d.WebhookID.String()).
		Logger()

	event, err := e.eventRepo.GetByID(ctx, d.EventID)
	if err != nil {
		e.recordAttempt(ctx, d, domain.DefaultRetryPolicy(), fmt.Sprintf("load event: %v", err))
		return
	}
	webhook, werr := e.webhookRepo.GetByID(ctx, d.WebhookID)
	if werr != nil {
		e.recordAttempt(ctx, d, domain.DefaultRetryPolicy(), fmt.Sprintf("load webhook: %v", werr))
		return
	}

	// A missing event or webhook cannot recover; retrying would burn
	// attempts against nothing.
	if event == nil {
		e.scheduler.FailFatal(d, "event no longer exists")
		e.finish(ctx, d, log)
		return
	}
	if webhook == nil {
		e.scheduler.FailFatal(d, "webhook no longer exists")
		e.finish(ctx, d, log)
		return
	}

	status, respHeaders, respBody, attemptErr := e.send(ctx, event, webhook, d)
	d.HTTPStatus = status
	d.ResponseHeaders = respHeaders
	d.ResponseBody = respBody

	if attemptErr == "" {
		e.scheduler.MarkDelivered(d)
		log.Info().Int("http_status", derefInt(status)).Int("attempts", d.RetryCount+1).Msg("delivery succeeded")
	} else {
		e.recordOutcome(d, webhook.RetryPolicy, attemptErr, log)
	}
	e.finish(ctx, d, log)
}

// send performs the HTTP POST. A non-2xx status or transport error is
// returned as a non-empty attemptErr.
func (e *DispatchEngine) send(ctx context.Context, event *domain.Event, webhook *domain.Webhook, d *domain.Delivery) (*int, map[string]string, *string, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(event.Payload))
	if err != nil {
		return nil, nil, nil, fmt.Sprintf("build request: %v", err)
	}

	req.Header.Set(headerContentType, "application/json")
	req.Header.Set(headerSignature, e.signatures.Sign(webhook.Secret, event.Payload))
	req.Header.Set(headerEventType, event.EventType)
	req.Header.Set(headerEventID, event.ID.String())
	req.Header.Set(headerDeliveryID, d.ID.String())
	req.Header.Set(headerTimestamp, e.now().Format(time.RFC3339))
	// Custom headers win over the standard set.
	for k, v := range webhook.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, nil, nil, fmt.Sprintf("request failed: %v", err)
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	var bodyPtr *string
	if raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes)); err == nil && len(raw) > 0 {
		body := string(raw)
		bodyPtr = &body
	}

	if status < 200 || status > 299 {
		return &status, headers, bodyPtr, fmt.Sprintf("endpoint returned status %d", status)
	}
	return &status, headers, bodyPtr, ""
}

// recordAttempt handles transient infrastructure errors that happen before we
// could resolve the webhook, so the default policy governs the retry.
func (e *DispatchEngine) recordAttempt(ctx context.Context, d *domain.Delivery, policy domain.RetryPolicy, attemptErr string) {
	log := e.log.With().Str("delivery_id", d.ID.String()).Logger()
	e.recordOutcome(d, policy, attemptErr, log)
	e.finish(ctx, d, log)
}

func (e *DispatchEngine) recordOutcome(d *domain.Delivery, policy domain.RetryPolicy, attemptErr string, log zerolog.Logger) {
	e.scheduler.ScheduleOrFail(d, policy, attemptErr)
	evt := log.Warn().Str("error", attemptErr).Int("retry_count", d.RetryCount)
	if d.Status == domain.DeliveryStatusFailed {
		evt.Msg("delivery failed permanently")
	} else {
		evt.Time("next_retry_at", *d.NextRetryAt).Msg("delivery attempt failed, retry scheduled")
	}
}

// finish persists the delivery (which releases the claim) and, if the
// delivery settled, re-aggregates the parent event's status.
func (e *DispatchEngine) finish(ctx context.Context, d *domain.Delivery, log zerolog.Logger) {
	if err := e.deliveryRepo.Update(ctx, d); err != nil {
		// The outcome is lost; the lease will expire and the delivery is
		// attempted again. At-least-once holds.
		log.Error().Err(err).Msg("dispatch: persisting attempt outcome failed")
		return
	}
	e.refreshEventStatus(ctx, d, log)
}

func (e *DispatchEngine) refreshEventStatus(ctx context.Context, d *domain.Delivery, log zerolog.Logger) {
	counts, err := e.deliveryRepo.CountByStatusForEvent(ctx, d.EventID)
	if err != nil {
		log.Error().Err(err).Msg("dispatch: counting deliveries for event failed")
		return
	}
	status := domain.AggregateEventStatus(counts)

	var lastError *string
	if status == domain.EventStatusFailed && d.Error != nil {
		lastError = d.Error
	}
	if err := e.eventRepo.UpdateStatus(ctx, d.EventID, status, lastError); err != nil {
		log.Error().Err(err).Msg("dispatch: updating event status failed")
	}
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
