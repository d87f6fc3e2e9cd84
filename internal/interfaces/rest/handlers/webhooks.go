package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dcb-treasury/certification-gateway/internal/application/services"
	"github.com/dcb-treasury/certification-gateway/internal/domain"
	"github.com/dcb-treasury/certification-gateway/internal/interfaces/rest"
)

// receiveAckResponse is the protocol-level acknowledgment; its shape is fixed
// by the webhook contract, not the envelope.
type receiveAckResponse struct {
	Success     bool      `json:"success"`
	Received    bool      `json:"received"`
	EventID     string    `json:"eventId"`
	ProcessedAt time.Time `json:"processedAt"`
}

// ReceiveWebhook is the inbound endpoint the minting platform posts to.
// Resolution problems are report-only; only authentication fails the call.
func (h *Handlers) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	var event domain.WebhookEvent
	if err := rest.DecodeJSON(r, &event); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	supplied := r.Header.Get("X-LEMX-Signature")
	if supplied == "" {
		supplied = r.Header.Get("X-Webhook-Signature")
	}
	declaredType := r.Header.Get("X-LEMX-Event")

	ack, err := h.webhooks.Receive(r.Context(), &event, supplied, declaredType)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteRaw(w, http.StatusOK, receiveAckResponse{
		Success:     true,
		Received:    true,
		EventID:     ack.EventID,
		ProcessedAt: ack.ProcessedAt,
	})
}

func (h *Handlers) ListWebhookEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			rest.WriteValidationError(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := h.events.ListRecent(r.Context(), limit)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteList(w, http.StatusOK, events, len(events))
}

type registerEndpointRequest struct {
	Name     string   `json:"name"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	APIKeyID string   `json:"apiKeyId"`
}

type registerEndpointResponse struct {
	Endpoint *domain.WebhookEndpoint `json:"endpoint"`
	Secret   string                  `json:"secret"`
	Created  bool                    `json:"created"`
}

// RegisterEndpoint upserts a subscriber by URL. The signing secret is
// returned here and never again.
func (h *Handlers) RegisterEndpoint(w http.ResponseWriter, r *http.Request) {
	var req registerEndpointRequest
	if err := rest.DecodeJSON(r, &req); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	endpoint, created, err := h.admin.RegisterEndpoint(r.Context(), services.RegisterEndpointCommand{
		Name:     req.Name,
		URL:      req.URL,
		Events:   req.Events,
		APIKeyID: req.APIKeyID,
	})
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	rest.WriteJSON(w, status, registerEndpointResponse{
		Endpoint: endpoint,
		Secret:   endpoint.Secret,
		Created:  created,
	})
}

func (h *Handlers) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.admin.ListEndpoints(r.Context())
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteList(w, http.StatusOK, endpoints, len(endpoints))
}

func (h *Handlers) DeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	endpoint, err := h.admin.DeleteEndpoint(r.Context(), r.PathValue("id"))
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteJSON(w, http.StatusOK, endpoint)
}

func (h *Handlers) TestEndpoint(w http.ResponseWriter, r *http.Request) {
	result, err := h.admin.TestEndpoint(r.Context(), r.PathValue("id"))
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteJSON(w, http.StatusOK, result)
}
