// Package signature computes and verifies the keyed signature carried on
// every webhook event exchanged with the peer platform.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dcb-treasury/certification-gateway/internal/domain"
)

// DefaultFreshnessWindow is the maximum age of a signed event before it is
// rejected regardless of signature validity.
const DefaultFreshnessWindow = 5 * time.Minute

// signingEnvelope fixes the canonical field order of the signing input.
// Payload is kept as raw JSON so the signed bytes match what was sent.
type signingEnvelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Source    string          `json:"source"`
	Version   string          `json:"version"`
	Payload   json.RawMessage `json:"payload"`
}

type Signer struct {
	secret []byte
	window time.Duration
	now    func() time.Time
}

func NewSigner(secret string, window time.Duration) *Signer {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	return &Signer{
		secret: []byte(secret),
		window: window,
		now:    time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// Sign returns the lowercase hex HMAC-SHA256 of the event's canonical JSON.
func (s *Signer) Sign(event *domain.WebhookEvent) (string, error) {
	canonical, err := json.Marshal(signingEnvelope{
		ID:        event.ID,
		Type:      event.Type,
		Timestamp: event.Timestamp,
		Source:    event.Source,
		Version:   event.Version,
		Payload:   event.Payload,
	})
	if err != nil {
		return "", fmt.Errorf("canonicalize event %s: %w", event.ID, err)
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify fails closed: a missing signature, an unparseable timestamp or an
// event older than the freshness window all return false. The freshness
// check runs before the signature comparison so a stale event is rejected
// even when its signature is correct (replay protection). The comparison
// itself is constant-time.
func (s *Signer) Verify(event *domain.WebhookEvent, supplied string) bool {
	if supplied == "" {
		return false
	}

	ts, ok := event.ParsedTimestamp()
	if !ok {
		return false
	}
	if s.now().Sub(ts) > s.window {
		return false
	}

	expected, err := s.Sign(event)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(supplied), []byte(expected))
}
