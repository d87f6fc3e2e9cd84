package application

import (
	"context"
	"time"

	"github.com/dcb-treasury/certification-gateway/internal/domain"
)

// LockFilter narrows lock listings.
type LockFilter struct {
	Status            string
	AuthorizationCode string
}

// MintRequestFilter narrows mint request listings.
type MintRequestFilter struct {
	Status            string
	AuthorizationCode string
}

// LockRepository is the port for the authoritative lock collection.
// FindByReference resolves either the caller-visible lockId or the internal
// record id; FindByAuthorizationCode is the second key of the two-key index.
type LockRepository interface {
	Create(ctx context.Context, lock *domain.Lock) error
	FindByReference(ctx context.Context, ref string) (*domain.Lock, error)
	FindByAuthorizationCode(ctx context.Context, code string) (*domain.Lock, error)
	List(ctx context.Context, filter LockFilter) ([]*domain.Lock, error)
	// UpdateVersioned writes the lock with compare-and-swap on Version and
	// returns domain.ErrVersionConflict when the row moved underneath.
	UpdateVersioned(ctx context.Context, lock *domain.Lock) error
	Clear(ctx context.Context) (int, error)
}

// MintRepository persists mint requests and the completed-mint explorer
// records.
type MintRepository interface {
	// UpsertMintRequest inserts the request unless one already exists for
	// the same authorization code.
	UpsertMintRequest(ctx context.Context, req *domain.MintRequest) error
	CompleteMintRequest(ctx context.Context, authorizationCode, txHash, publicationCode string, completedAt time.Time) error
	ListMintRequests(ctx context.Context, filter MintRequestFilter) ([]*domain.MintRequest, error)
	FindMintRequestByCode(ctx context.Context, code string) (*domain.MintRequest, error)
	// InsertCompletedMint reports false when a record with the same
	// publication code, tx hash or lock id already exists.
	InsertCompletedMint(ctx context.Context, mint *domain.CompletedMint) (bool, error)
	ListCompletedMints(ctx context.Context) ([]*domain.CompletedMint, error)
	FindCompletedMint(ctx context.Context, ref string) (*domain.CompletedMint, error)
	ClearMints(ctx context.Context) error
}

// EventRepository stores every webhook event, sent or received.
type EventRepository interface {
	Save(ctx context.Context, event *domain.WebhookEvent) error
	MarkDelivered(ctx context.Context, eventID string, status int, at time.Time) error
	RecordDeliveryFailure(ctx context.Context, eventID string, deliveryErr string) error
	ListRecent(ctx context.Context, limit int) ([]*domain.WebhookEvent, error)
	FindUndelivered(ctx context.Context, maxAttempts, limit int) ([]*domain.WebhookEvent, error)
	ClearEvents(ctx context.Context) error
}

// EndpointRepository manages registered outbound subscribers.
type EndpointRepository interface {
	Upsert(ctx context.Context, endpoint *domain.WebhookEndpoint) (*domain.WebhookEndpoint, bool, error)
	List(ctx context.Context) ([]*domain.WebhookEndpoint, error)
	FindByID(ctx context.Context, id string) (*domain.WebhookEndpoint, error)
	Delete(ctx context.Context, id string) (*domain.WebhookEndpoint, error)
}

// APIKeyRepository manages inbound caller credentials.
type APIKeyRepository interface {
	Create(ctx context.Context, key *domain.APIKey) error
	List(ctx context.Context) ([]*domain.APIKey, error)
	FindByID(ctx context.Context, id string) (*domain.APIKey, error)
	FindByKey(ctx context.Context, key string) (*domain.APIKey, error)
	Update(ctx context.Context, key *domain.APIKey) error
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

// AuditLog is the append-only action trail with bounded retention.
type AuditLog interface {
	Record(ctx context.Context, action string, details map[string]any, userID string) error
	List(ctx context.Context, limit int) ([]*domain.AuditLogEntry, error)
	Count(ctx context.Context) (int, error)
}

// PeerDelivery is one outbound POST to the minting platform.
type PeerDelivery struct {
	URL     string
	Secret  string
	Event   *domain.WebhookEvent
	Headers map[string]string
}

// PeerSnapshot is the subset of peer state pulled during a sync.
type PeerSnapshot struct {
	CompletedMints []*domain.CompletedMint
}

// PeerClient is the port for the LEMX minting platform.
type PeerClient interface {
	Deliver(ctx context.Context, delivery PeerDelivery) (int, error)
	FetchSnapshot(ctx context.Context) (*PeerSnapshot, error)
	RegisterEndpoint(ctx context.Context, name, callbackURL string, events []string) error
}
