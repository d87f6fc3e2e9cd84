package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dcb-treasury/certification-gateway/internal/application"
	"github.com/dcb-treasury/certification-gateway/internal/domain"
	"github.com/dcb-treasury/certification-gateway/internal/interfaces/rest"
)

type auditResponse struct {
	Entries []*domain.AuditLogEntry `json:"entries"`
	Total   int                     `json:"total"`
}

func (h *Handlers) AuditTrail(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			rest.WriteValidationError(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, total, err := h.admin.AuditTrail(r.Context(), limit)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteList(w, http.StatusOK, auditResponse{Entries: entries, Total: total}, len(entries))
}

// clearAllConfirmation must be echoed back verbatim before anything is
// deleted.
const clearAllConfirmation = "CLEAR_ALL_DATA"

type clearAllRequest struct {
	Confirm string `json:"confirm"`
}

func (h *Handlers) ClearAll(w http.ResponseWriter, r *http.Request) {
	var req clearAllRequest
	if err := rest.DecodeJSON(r, &req); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	if req.Confirm != clearAllConfirmation {
		rest.WriteError(w, application.NewValidationError(
			`Destructive operation requires {"confirm":"CLEAR_ALL_DATA"}`), h.logger)
		return
	}

	counts, err := h.locks.ClearAll(r.Context())
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusOK, counts)
}

type healthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
	UptimeSec int64     `json:"uptimeSec"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "healthy",
		Database:  "connected",
		Timestamp: time.Now().UTC(),
		UptimeSec: int64(time.Since(h.started).Seconds()),
	}

	if err := h.ping(r.Context()); err != nil {
		h.logger.Error("health check failed", "error", err)
		resp.Status = "unhealthy"
		resp.Database = "unreachable"
		rest.WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	rest.WriteJSON(w, http.StatusOK, resp)
}

type infoResponse struct {
	Service         string         `json:"service"`
	Environment     string         `json:"environment"`
	WebhookID       string         `json:"webhookId"`
	Source          string         `json:"source"`
	ProtocolVersion string         `json:"protocolVersion"`
	Stats           map[string]int `json:"stats"`
}

func (h *Handlers) ServiceInfo(w http.ResponseWriter, r *http.Request) {
	locks, err := h.locks.ListLocks(r.Context(), application.LockFilter{})
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	mints, err := h.locks.ListCompletedMints(r.Context())
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusOK, infoResponse{
		Service:         h.info.Service,
		Environment:     h.info.Environment,
		WebhookID:       h.info.WebhookID,
		Source:          h.info.Source,
		ProtocolVersion: h.info.ProtocolVersion,
		Stats: map[string]int{
			"locks":          len(locks),
			"completedMints": len(mints),
		},
	})
}

// snapshotResponse matches what the peer's sync client decodes.
type snapshotResponse struct {
	CompletedMints []*domain.CompletedMint `json:"completedMints"`
}

func (h *Handlers) Snapshot(w http.ResponseWriter, r *http.Request) {
	mints, err := h.locks.ListCompletedMints(r.Context())
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	if mints == nil {
		mints = []*domain.CompletedMint{}
	}
	rest.WriteJSON(w, http.StatusOK, snapshotResponse{CompletedMints: mints})
}

func (h *Handlers) SyncWithPeer(w http.ResponseWriter, r *http.Request) {
	result, err := h.locks.SyncWithPeer(r.Context())
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteJSON(w, http.StatusOK, result)
}
