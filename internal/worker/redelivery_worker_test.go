package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcb-treasury/certification-gateway/internal/application"
	"github.com/dcb-treasury/certification-gateway/internal/domain"
	"github.com/dcb-treasury/certification-gateway/internal/infrastructure/peer"
)

type stubEventRepo struct {
	undelivered []*domain.WebhookEvent

	findCalls []struct{ maxAttempts, limit int }
	delivered map[string]int
	failures  map[string][]string
	markErr   error
	findErr   error
}

func newStubEventRepo(events ...*domain.WebhookEvent) *stubEventRepo {
	return &stubEventRepo{
		undelivered: events,
		delivered:   make(map[string]int),
		failures:    make(map[string][]string),
	}
}

func (s *stubEventRepo) Save(ctx context.Context, event *domain.WebhookEvent) error { return nil }

func (s *stubEventRepo) MarkDelivered(ctx context.Context, eventID string, status int, at time.Time) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.delivered[eventID] = status
	return nil
}

func (s *stubEventRepo) RecordDeliveryFailure(ctx context.Context, eventID string, deliveryErr string) error {
	s.failures[eventID] = append(s.failures[eventID], deliveryErr)
	return nil
}

func (s *stubEventRepo) ListRecent(ctx context.Context, limit int) ([]*domain.WebhookEvent, error) {
	return nil, nil
}

func (s *stubEventRepo) FindUndelivered(ctx context.Context, maxAttempts, limit int) ([]*domain.WebhookEvent, error) {
	s.findCalls = append(s.findCalls, struct{ maxAttempts, limit int }{maxAttempts, limit})
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.undelivered, nil
}

func (s *stubEventRepo) ClearEvents(ctx context.Context) error { return nil }

type stubPeer struct {
	deliveries []application.PeerDelivery
	deliverFn  func(delivery application.PeerDelivery) (int, error)
}

func (s *stubPeer) Deliver(ctx context.Context, delivery application.PeerDelivery) (int, error) {
	s.deliveries = append(s.deliveries, delivery)
	if s.deliverFn != nil {
		return s.deliverFn(delivery)
	}
	return 200, nil
}

func (s *stubPeer) FetchSnapshot(ctx context.Context) (*application.PeerSnapshot, error) {
	return &application.PeerSnapshot{}, nil
}

func (s *stubPeer) RegisterEndpoint(ctx context.Context, name, callbackURL string, events []string) error {
	return nil
}

type stubAudit struct {
	actions []string
}

func (s *stubAudit) Record(ctx context.Context, action string, details map[string]any, userID string) error {
	s.actions = append(s.actions, action)
	return nil
}

func (s *stubAudit) List(ctx context.Context, limit int) ([]*domain.AuditLogEntry, error) {
	return nil, nil
}

func (s *stubAudit) Count(ctx context.Context) (int, error) { return 0, nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pendingEvent(id string, attempts int) *domain.WebhookEvent {
	return &domain.WebhookEvent{
		ID:        id,
		Type:      domain.EventLockCreated,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Source:    "dcb_treasury",
		Version:   "1.0.0",
		Payload:   []byte(`{"lockId":"LOCK-2026-000123"}`),
		Signature: "cafe" + id,
		Direction: domain.DirectionOutbound,
		Attempts:  attempts,
	}
}

func TestProcessOnce_RedeliversWithOriginalSignature(t *testing.T) {
	events := newStubEventRepo(pendingEvent("evt_1", 1))
	peerStub := &stubPeer{}
	audit := &stubAudit{}
	w := NewRedeliveryWorker(events, peerStub, audit, time.Minute, 10, 5, discardLogger())

	require.NoError(t, w.ProcessOnce(context.Background()))

	require.Len(t, peerStub.deliveries, 1)
	delivery := peerStub.deliveries[0]
	assert.Equal(t, "cafeevt_1", delivery.Headers["X-DCB-Signature"])
	assert.Equal(t, domain.EventLockCreated, delivery.Headers["X-DCB-Event"])
	assert.Equal(t, "evt_1", delivery.Headers["X-Webhook-ID"])

	assert.Equal(t, 200, events.delivered["evt_1"])
	assert.Contains(t, audit.actions, "webhook.redelivered")
}

func TestProcessOnce_ScanUsesConfiguredBounds(t *testing.T) {
	events := newStubEventRepo()
	w := NewRedeliveryWorker(events, &stubPeer{}, &stubAudit{}, time.Minute, 25, 7, discardLogger())

	require.NoError(t, w.ProcessOnce(context.Background()))

	require.Len(t, events.findCalls, 1)
	assert.Equal(t, 7, events.findCalls[0].maxAttempts)
	assert.Equal(t, 25, events.findCalls[0].limit)
}

func TestProcessOnce_FailureRecordedAndPassContinues(t *testing.T) {
	events := newStubEventRepo(pendingEvent("evt_bad", 2), pendingEvent("evt_good", 0))
	peerStub := &stubPeer{
		deliverFn: func(delivery application.PeerDelivery) (int, error) {
			if delivery.Event.ID == "evt_bad" {
				return 0, &peer.PeerError{StatusCode: 503, Body: "unavailable"}
			}
			return 200, nil
		},
	}
	w := NewRedeliveryWorker(events, peerStub, &stubAudit{}, time.Minute, 10, 5, discardLogger())

	require.NoError(t, w.ProcessOnce(context.Background()))

	require.Len(t, events.failures["evt_bad"], 1)
	assert.Contains(t, events.failures["evt_bad"][0], "503")
	assert.Equal(t, 200, events.delivered["evt_good"])
	_, deliveredBad := events.delivered["evt_bad"]
	assert.False(t, deliveredBad)
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	events := newStubEventRepo()
	w := NewRedeliveryWorker(events, &stubPeer{}, &stubAudit{}, 5*time.Millisecond, 10, 5, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancellation")
	}

	assert.NotEmpty(t, events.findCalls)
}
