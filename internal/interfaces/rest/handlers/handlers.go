// Package handlers wires the REST surface to the application services.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dcb-treasury/certification-gateway/internal/application"
	"github.com/dcb-treasury/certification-gateway/internal/application/services"
	"github.com/dcb-treasury/certification-gateway/internal/domain"
)

// LockAPI is the lock lifecycle surface the handlers call into.
type LockAPI interface {
	CreateLock(ctx context.Context, cmd services.CreateLockCommand) (*domain.Lock, *services.DispatchResult, error)
	CompleteMinting(ctx context.Context, ref, txHash, contractAddress string) (*domain.Lock, error)
	GetLock(ctx context.Context, ref string) (*domain.Lock, error)
	GetLockByCode(ctx context.Context, code string) (*domain.Lock, error)
	ListLocks(ctx context.Context, filter application.LockFilter) ([]*domain.Lock, error)
	ListPending(ctx context.Context) ([]*domain.Lock, error)
	ListApprovedByLemx(ctx context.Context) ([]*domain.Lock, error)
	ListRejectedByLemx(ctx context.Context) ([]*domain.Lock, error)
	ListMinted(ctx context.Context) (*services.MintedSummary, error)
	ListMintRequests(ctx context.Context, filter application.MintRequestFilter) ([]*domain.MintRequest, error)
	GetMintRequestByCode(ctx context.Context, code string) (*domain.MintRequest, error)
	ListCompletedMints(ctx context.Context) ([]*domain.CompletedMint, error)
	GetCompletedMint(ctx context.Context, ref string) (*domain.CompletedMint, error)
	ClearAll(ctx context.Context) (*services.ClearCounts, error)
	SyncWithPeer(ctx context.Context) (*services.SyncResult, error)
}

// WebhookAPI accepts inbound events from the minting platform.
type WebhookAPI interface {
	Receive(ctx context.Context, event *domain.WebhookEvent, suppliedSignature, declaredType string) (*services.ReceiveAck, error)
}

// AdminAPI covers endpoint registration, API keys and the audit trail.
type AdminAPI interface {
	RegisterEndpoint(ctx context.Context, cmd services.RegisterEndpointCommand) (*domain.WebhookEndpoint, bool, error)
	ListEndpoints(ctx context.Context) ([]*domain.WebhookEndpoint, error)
	DeleteEndpoint(ctx context.Context, id string) (*domain.WebhookEndpoint, error)
	TestEndpoint(ctx context.Context, id string) (*services.DispatchResult, error)
	CreateAPIKey(ctx context.Context, cmd services.CreateAPIKeyCommand) (*domain.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
	RotateAPIKey(ctx context.Context, id string) (*domain.APIKey, error)
	AuditTrail(ctx context.Context, limit int) ([]*domain.AuditLogEntry, int, error)
}

// EventLister exposes the stored webhook event feed.
type EventLister interface {
	ListRecent(ctx context.Context, limit int) ([]*domain.WebhookEvent, error)
}

// Info is the static service metadata reported by /api/info.
type Info struct {
	Service         string
	Environment     string
	WebhookID       string
	Source          string
	ProtocolVersion string
}

// Handlers is the full REST handler set.
type Handlers struct {
	locks    LockAPI
	webhooks WebhookAPI
	admin    AdminAPI
	events   EventLister
	ping     func(ctx context.Context) error
	info     Info
	logger   *slog.Logger
	started  time.Time
}

func NewHandlers(
	locks LockAPI,
	webhooks WebhookAPI,
	admin AdminAPI,
	events EventLister,
	ping func(ctx context.Context) error,
	info Info,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		locks:    locks,
		webhooks: webhooks,
		admin:    admin,
		events:   events,
		ping:     ping,
		info:     info,
		logger:   logger,
		started:  time.Now(),
	}
}

// Routes registers every endpoint on a fresh mux.
func (h *Handlers) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/locks", h.CreateLock)
	mux.HandleFunc("GET /api/locks", h.ListLocks)
	mux.HandleFunc("GET /api/locks/pending", h.ListPendingLocks)
	mux.HandleFunc("GET /api/locks/approved-by-lemx", h.ListApprovedLocks)
	mux.HandleFunc("GET /api/locks/rejected-by-lemx", h.ListRejectedLocks)
	mux.HandleFunc("GET /api/locks/minted", h.ListMintedLocks)
	mux.HandleFunc("GET /api/locks/by-code/{code}", h.GetLockByCode)
	mux.HandleFunc("GET /api/locks/{lockId}", h.GetLock)
	mux.HandleFunc("PATCH /api/locks/{lockId}/complete-minting", h.CompleteMinting)

	mux.HandleFunc("GET /api/mint-requests", h.ListMintRequests)
	mux.HandleFunc("GET /api/mint-requests/by-code/{code}", h.GetMintRequestByCode)
	mux.HandleFunc("GET /api/completed-mints", h.ListCompletedMints)
	mux.HandleFunc("GET /api/completed-mints/{id}", h.GetCompletedMint)

	mux.HandleFunc("POST /api/webhooks/receive", h.ReceiveWebhook)
	mux.HandleFunc("GET /api/webhooks/events", h.ListWebhookEvents)
	mux.HandleFunc("GET /api/webhooks", h.ListEndpoints)
	mux.HandleFunc("POST /api/webhooks/register", h.RegisterEndpoint)
	mux.HandleFunc("DELETE /api/webhooks/{id}", h.DeleteEndpoint)
	mux.HandleFunc("POST /api/webhooks/{id}/test", h.TestEndpoint)

	mux.HandleFunc("GET /api/keys", h.ListAPIKeys)
	mux.HandleFunc("POST /api/keys", h.CreateAPIKey)
	mux.HandleFunc("DELETE /api/keys/{id}", h.RevokeAPIKey)
	mux.HandleFunc("POST /api/keys/{id}/rotate", h.RotateAPIKey)

	mux.HandleFunc("GET /api/audit", h.AuditTrail)
	mux.HandleFunc("POST /api/clear-all", h.ClearAll)

	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("GET /api/info", h.ServiceInfo)
	mux.HandleFunc("GET /api/sync", h.Snapshot)
	mux.HandleFunc("POST /api/sync-with-lemx", h.SyncWithPeer)

	return mux
}
