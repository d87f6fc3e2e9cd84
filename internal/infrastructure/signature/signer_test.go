package signature

import (
	"testing"
	"time"

	"github.com/dcb-treasury/certification-gateway/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sampleEvent(ts time.Time) *domain.WebhookEvent {
	return &domain.WebhookEvent{
		ID:        "evt-001",
		Type:      "lock.created",
		Timestamp: ts.UTC().Format(time.RFC3339),
		Source:    "dcb_treasury",
		Version:   "1.0.0",
		Payload:   []byte(`{"lockId":"LOCK-SIG-01","amount":"1000000"}`),
	}
}

func TestSign_Deterministic(t *testing.T) {
	s := NewSigner("secret-a", DefaultFreshnessWindow)
	event := sampleEvent(time.Now())

	first, err := s.Sign(event)
	require.NoError(t, err)
	second, err := s.Sign(event)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64) // hex sha256
}

func TestSign_SensitiveToEveryField(t *testing.T) {
	s := NewSigner("secret-a", DefaultFreshnessWindow)
	now := time.Now()
	base := sampleEvent(now)
	baseline, err := s.Sign(base)
	require.NoError(t, err)

	mutations := map[string]func(*domain.WebhookEvent){
		"id":        func(e *domain.WebhookEvent) { e.ID = "evt-002" },
		"type":      func(e *domain.WebhookEvent) { e.Type = "lock.completed" },
		"timestamp": func(e *domain.WebhookEvent) { e.Timestamp = now.Add(time.Second).UTC().Format(time.RFC3339) },
		"source":    func(e *domain.WebhookEvent) { e.Source = "lemx_platform" },
		"version":   func(e *domain.WebhookEvent) { e.Version = "2.0.0" },
		"payload":   func(e *domain.WebhookEvent) { e.Payload = []byte(`{"lockId":"LOCK-SIG-02"}`) },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			event := sampleEvent(now)
			mutate(event)
			sig, err := s.Sign(event)
			require.NoError(t, err)
			assert.NotEqual(t, baseline, sig)
		})
	}
}

func TestSign_SecretChangesSignature(t *testing.T) {
	event := sampleEvent(time.Now())

	a, err := NewSigner("secret-a", DefaultFreshnessWindow).Sign(event)
	require.NoError(t, err)
	b, err := NewSigner("secret-b", DefaultFreshnessWindow).Sign(event)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestVerify_AcceptsFreshValidSignature(t *testing.T) {
	now := time.Now()
	s := NewSigner("secret-a", DefaultFreshnessWindow).WithClock(fixedClock(now))
	event := sampleEvent(now)

	sig, err := s.Sign(event)
	require.NoError(t, err)

	assert.True(t, s.Verify(event, sig))
}

func TestVerify_RejectsMissingSignature(t *testing.T) {
	now := time.Now()
	s := NewSigner("secret-a", DefaultFreshnessWindow).WithClock(fixedClock(now))

	assert.False(t, s.Verify(sampleEvent(now), ""))
}

func TestVerify_RejectsWrongSignature(t *testing.T) {
	now := time.Now()
	s := NewSigner("secret-a", DefaultFreshnessWindow).WithClock(fixedClock(now))

	assert.False(t, s.Verify(sampleEvent(now), "0000000000000000000000000000000000000000000000000000000000000000"))
}

func TestVerify_RejectsStaleEventEvenWithValidSignature(t *testing.T) {
	now := time.Now()
	s := NewSigner("secret-a", DefaultFreshnessWindow).WithClock(fixedClock(now))
	event := sampleEvent(now.Add(-10 * time.Minute))

	sig, err := s.Sign(event)
	require.NoError(t, err)

	assert.False(t, s.Verify(event, sig))
}

func TestVerify_RejectsUnparseableTimestamp(t *testing.T) {
	now := time.Now()
	s := NewSigner("secret-a", DefaultFreshnessWindow).WithClock(fixedClock(now))
	event := sampleEvent(now)
	event.Timestamp = "yesterday-ish"

	sig, err := s.Sign(event)
	require.NoError(t, err)

	assert.False(t, s.Verify(event, sig))
}

func TestVerify_AcceptsNanosecondTimestamps(t *testing.T) {
	now := time.Now()
	s := NewSigner("secret-a", DefaultFreshnessWindow).WithClock(fixedClock(now))
	event := sampleEvent(now)
	event.Timestamp = now.UTC().Format(time.RFC3339Nano)

	sig, err := s.Sign(event)
	require.NoError(t, err)

	assert.True(t, s.Verify(event, sig))
}

func TestVerify_SignatureBoundToSecret(t *testing.T) {
	now := time.Now()
	signer := NewSigner("secret-a", DefaultFreshnessWindow).WithClock(fixedClock(now))
	verifier := NewSigner("secret-b", DefaultFreshnessWindow).WithClock(fixedClock(now))
	event := sampleEvent(now)

	sig, err := signer.Sign(event)
	require.NoError(t, err)

	assert.False(t, verifier.Verify(event, sig))
}
