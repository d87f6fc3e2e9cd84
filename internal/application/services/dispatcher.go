package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dcb-treasury/certification-gateway/internal/application"
	"github.com/dcb-treasury/certification-gateway/internal/config"
	"github.com/dcb-treasury/certification-gateway/internal/domain"
	"github.com/dcb-treasury/certification-gateway/internal/infrastructure/signature"
	"github.com/google/uuid"
)

// DispatchResult reports the outcome of one outbound notification. A
// transport failure is carried in Error with Success=false; it never fails
// the originating API request.
type DispatchResult struct {
	Success bool                 `json:"success"`
	Skipped bool                 `json:"skipped,omitempty"`
	Reason  string               `json:"reason,omitempty"`
	Event   *domain.WebhookEvent `json:"event,omitempty"`
	Status  int                  `json:"status,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// WebhookDispatcher turns domain occurrences into signed webhook events and
// delivers them to the minting platform.
type WebhookDispatcher struct {
	locks  application.LockRepository
	events application.EventRepository
	peer   application.PeerClient
	audit  application.AuditLog
	signer *signature.Signer
	cfg    config.WebhookConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewWebhookDispatcher(
	locks application.LockRepository,
	events application.EventRepository,
	peer application.PeerClient,
	audit application.AuditLog,
	signer *signature.Signer,
	cfg config.WebhookConfig,
	logger *slog.Logger,
) *WebhookDispatcher {
	return &WebhookDispatcher{
		locks:  locks,
		events: events,
		peer:   peer,
		audit:  audit,
		signer: signer,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (d *WebhookDispatcher) WithClock(now func() time.Time) *WebhookDispatcher {
	d.now = now
	return d
}

// Dispatch signs, persists and delivers one event. For lock.created it first
// checks whether the peer has already adjudicated the lock; a redundant
// notification is skipped and reported as a successful no-op.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, eventType string, payload any) (*DispatchResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	if eventType == domain.EventLockCreated {
		skip, reason, err := d.alreadyAdjudicated(ctx, raw)
		if err != nil {
			return nil, err
		}
		if skip {
			d.logger.Info("skipping lock.created dispatch", "reason", reason)
			return &DispatchResult{Success: true, Skipped: true, Reason: reason}, nil
		}
	}

	event := &domain.WebhookEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: d.now().UTC().Format(time.RFC3339),
		Source:    d.cfg.Source,
		Version:   d.cfg.ProtocolVersion,
		Payload:   raw,
		Direction: domain.DirectionOutbound,
		CreatedAt: d.now().UTC(),
	}

	sig, err := d.signer.Sign(event)
	if err != nil {
		return nil, fmt.Errorf("sign %s event: %w", eventType, err)
	}
	event.Signature = sig

	if err := d.events.Save(ctx, event); err != nil {
		return nil, fmt.Errorf("persist %s event: %w", eventType, err)
	}

	status, deliverErr := d.peer.Deliver(ctx, application.PeerDelivery{
		Event: event,
		Headers: map[string]string{
			"X-DCB-Signature":   event.Signature,
			"X-DCB-Event":       eventType,
			"X-DCB-Timestamp":   event.Timestamp,
			"X-Webhook-ID":      event.ID,
			"X-Webhook-Version": event.Version,
		},
	})
	if deliverErr != nil {
		d.logger.Error("webhook delivery failed", "event_type", eventType, "event_id", event.ID, "error", deliverErr)
		if err := d.events.RecordDeliveryFailure(ctx, event.ID, deliverErr.Error()); err != nil {
			d.logger.Error("failed to record delivery failure", "event_id", event.ID, "error", err)
		}
		d.record(ctx, "webhook.failed", map[string]any{
			"eventType": eventType,
			"target":    "lemx",
			"error":     deliverErr.Error(),
		})
		return &DispatchResult{Success: false, Event: event, Error: deliverErr.Error()}, nil
	}

	if err := d.events.MarkDelivered(ctx, event.ID, status, d.now().UTC()); err != nil {
		d.logger.Error("failed to mark event delivered", "event_id", event.ID, "error", err)
	}
	d.record(ctx, "webhook.sent", map[string]any{
		"eventType": eventType,
		"target":    "lemx",
		"status":    status,
	})

	d.logger.Info("webhook sent", "event_type", eventType, "event_id", event.ID, "status", status)
	return &DispatchResult{Success: true, Event: event, Status: status}, nil
}

func (d *WebhookDispatcher) alreadyAdjudicated(ctx context.Context, payload json.RawMessage) (bool, string, error) {
	var ref struct {
		LockID string `json:"lockId"`
	}
	if err := json.Unmarshal(payload, &ref); err != nil || ref.LockID == "" {
		return false, "", nil
	}

	lock, err := d.locks.FindByReference(ctx, ref.LockID)
	if err != nil {
		if errors.Is(err, domain.ErrLockNotFound) {
			return false, "", nil
		}
		return false, "", err
	}

	if lock.TerminalForDispatch() {
		return true, fmt.Sprintf("Lock already processed by LEMX (status: %s)", lock.Status), nil
	}
	return false, "", nil
}

func (d *WebhookDispatcher) record(ctx context.Context, action string, details map[string]any) {
	if err := d.audit.Record(ctx, action, details, "system"); err != nil {
		d.logger.Error("audit record failed", "action", action, "error", err)
	}
}
