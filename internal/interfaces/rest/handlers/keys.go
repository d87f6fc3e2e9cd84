package handlers

import (
	"net/http"
	"time"

	"github.com/dcb-treasury/certification-gateway/internal/application/services"
	"github.com/dcb-treasury/certification-gateway/internal/interfaces/rest"
)

type createAPIKeyRequest struct {
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions"`
	RateLimit   int        `json:"rateLimit"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

// CreateAPIKey returns the full key and secret exactly once; listings only
// ever show the masked key.
func (h *Handlers) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := rest.DecodeJSON(r, &req); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	key, err := h.admin.CreateAPIKey(r.Context(), services.CreateAPIKeyCommand{
		Name:        req.Name,
		Permissions: req.Permissions,
		RateLimit:   req.RateLimit,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusCreated, key)
}

func (h *Handlers) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.admin.ListAPIKeys(r.Context())
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteList(w, http.StatusOK, keys, len(keys))
}

func (h *Handlers) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.RevokeAPIKey(r.Context(), r.PathValue("id")); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteJSON(w, http.StatusOK, map[string]any{"revoked": true})
}

func (h *Handlers) RotateAPIKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.admin.RotateAPIKey(r.Context(), r.PathValue("id"))
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteJSON(w, http.StatusOK, key)
}
