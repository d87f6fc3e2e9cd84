package domain

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// APIKey is a registration record for inbound REST callers.
type APIKey struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Key         string     `json:"key"`
	Secret      string     `json:"secret,omitempty"`
	Permissions []string   `json:"permissions"`
	RateLimit   int        `json:"rateLimit"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastUsed    *time.Time `json:"lastUsed,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	RotatedAt   *time.Time `json:"rotatedAt,omitempty"`
}

// Expired reports whether the key has an expiry in the past.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

// MaskedKey returns the key truncated for listing responses. The full key is
// only shown on creation and rotation.
func (k *APIKey) MaskedKey() string {
	if len(k.Key) <= 12 {
		return k.Key
	}
	return k.Key[:12] + "..."
}

func NewAPIKeyValue() string {
	buf := make([]byte, 24)
	rand.Read(buf) //nolint:errcheck
	return "dcb_" + hex.EncodeToString(buf)
}

func NewAPISecretValue() string {
	buf := make([]byte, 32)
	rand.Read(buf) //nolint:errcheck
	return "dcbs_" + hex.EncodeToString(buf)
}
