package domain

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Event types exchanged with the LEMX minting platform.
const (
	EventLockCreated            = "lock.created"
	EventLockCompleted          = "lock.completed"
	EventLockApproved           = "lock.approved"
	EventLockRejected           = "lock.rejected"
	EventAuthorizationGenerated = "authorization.generated"
	EventMintStarted            = "mint.started"
	EventMintCompleted          = "mint.completed"
	EventMintFailed             = "mint.failed"
)

// EventDirection tells whether an event was sent by this gateway or
// received from the peer.
type EventDirection string

const (
	DirectionOutbound EventDirection = "outbound"
	DirectionInbound  EventDirection = "inbound"
)

// WebhookEvent is an immutable, signed notification. Timestamp stays the
// exact RFC 3339 string that went into the signature; re-formatting it would
// invalidate the stored signature.
type WebhookEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Source    string          `json:"source"`
	Version   string          `json:"version"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature,omitempty"`

	Direction EventDirection `json:"-"`

	// Outbound delivery bookkeeping.
	Delivered   bool       `json:"-"`
	Attempts    int        `json:"-"`
	LastError   *string    `json:"-"`
	LastStatus  *int       `json:"-"`
	DeliveredAt *time.Time `json:"-"`

	// Inbound bookkeeping.
	ReceivedAt        *time.Time `json:"receivedAt,omitempty"`
	SignatureVerified bool       `json:"signatureVerified,omitempty"`

	CreatedAt time.Time `json:"-"`
}

// ParsedTimestamp returns the event timestamp as a time. The zero time and
// false are returned when the string is not RFC 3339.
func (e *WebhookEvent) ParsedTimestamp() (time.Time, bool) {
	ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		ts, err = time.Parse(time.RFC3339, e.Timestamp)
	}
	return ts, err == nil
}

// WebhookEndpoint is a registered outbound subscriber.
type WebhookEndpoint struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Secret    string    `json:"-"`
	Active    bool      `json:"active"`
	APIKeyID  *string   `json:"apiKeyId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewWebhookSecret generates a per-endpoint signing secret.
func NewWebhookSecret() string {
	buf := make([]byte, 24)
	rand.Read(buf) //nolint:errcheck
	return "whsec_" + hex.EncodeToString(buf)
}
