// Package worker runs the background redelivery loop for outbound webhook
// events that failed their first delivery.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dcb-treasury/certification-gateway/internal/application"
	"github.com/dcb-treasury/certification-gateway/internal/domain"
)

// RedeliveryWorker periodically scans for undelivered outbound events and
// re-posts them to the minting platform. Safe to rerun: the peer dedups by
// authorization code, publication code and tx hash, and the dispatcher skips
// already-adjudicated locks.
type RedeliveryWorker struct {
	events      application.EventRepository
	peer        application.PeerClient
	audit       application.AuditLog
	interval    time.Duration
	batchSize   int
	maxAttempts int
	logger      *slog.Logger
	now         func() time.Time
}

func NewRedeliveryWorker(
	events application.EventRepository,
	peer application.PeerClient,
	audit application.AuditLog,
	interval time.Duration,
	batchSize int,
	maxAttempts int,
	logger *slog.Logger,
) *RedeliveryWorker {
	return &RedeliveryWorker{
		events:      events,
		peer:        peer,
		audit:       audit,
		interval:    interval,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (w *RedeliveryWorker) WithClock(now func() time.Time) *RedeliveryWorker {
	w.now = now
	return w
}

func (w *RedeliveryWorker) Start(ctx context.Context) {
	w.logger.Info("redelivery worker started", "interval", w.interval, "batch_size", w.batchSize)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("redelivery worker stopping")
			return
		case <-ticker.C:
			if err := w.ProcessOnce(ctx); err != nil {
				w.logger.Error("redelivery pass failed", "error", err)
			}
		}
	}
}

// ProcessOnce runs a single redelivery pass. Events that exhaust
// maxAttempts fall out of the scan and stay visible in the event feed.
func (w *RedeliveryWorker) ProcessOnce(ctx context.Context) error {
	pending, err := w.events.FindUndelivered(ctx, w.maxAttempts, w.batchSize)
	if err != nil {
		return fmt.Errorf("scan undelivered events: %w", err)
	}

	var redelivered int
	for _, event := range pending {
		if err := w.redeliver(ctx, event); err != nil {
			w.logger.Error("redelivery failed",
				"event_id", event.ID,
				"event_type", event.Type,
				"attempts", event.Attempts,
				"error", err)
			continue
		}
		redelivered++
	}

	if redelivered > 0 {
		w.logger.Info("redelivered events", "count", redelivered, "pending", len(pending))
	}
	return nil
}

func (w *RedeliveryWorker) redeliver(ctx context.Context, event *domain.WebhookEvent) error {
	status, err := w.peer.Deliver(ctx, application.PeerDelivery{
		Event: event,
		Headers: map[string]string{
			"X-DCB-Signature":   event.Signature,
			"X-DCB-Event":       event.Type,
			"X-DCB-Timestamp":   event.Timestamp,
			"X-Webhook-ID":      event.ID,
			"X-Webhook-Version": event.Version,
		},
	})
	if err != nil {
		if recordErr := w.events.RecordDeliveryFailure(ctx, event.ID, err.Error()); recordErr != nil {
			w.logger.Error("failed to record delivery failure", "event_id", event.ID, "error", recordErr)
		}
		return err
	}

	if err := w.events.MarkDelivered(ctx, event.ID, status, w.now().UTC()); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}

	if err := w.audit.Record(ctx, "webhook.redelivered", map[string]any{
		"eventId":   event.ID,
		"eventType": event.Type,
		"status":    status,
	}, "system"); err != nil {
		w.logger.Error("audit record failed", "event_id", event.ID, "error", err)
	}

	return nil
}
