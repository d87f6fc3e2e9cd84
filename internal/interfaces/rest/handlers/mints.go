package handlers

import (
	"net/http"

	"github.com/dcb-treasury/certification-gateway/internal/application"
	"github.com/dcb-treasury/certification-gateway/internal/interfaces/rest"
)

func (h *Handlers) ListMintRequests(w http.ResponseWriter, r *http.Request) {
	filter := application.MintRequestFilter{
		Status:            r.URL.Query().Get("status"),
		AuthorizationCode: r.URL.Query().Get("authorizationCode"),
	}

	requests, err := h.locks.ListMintRequests(r.Context(), filter)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteList(w, http.StatusOK, requests, len(requests))
}

func (h *Handlers) GetMintRequestByCode(w http.ResponseWriter, r *http.Request) {
	req, err := h.locks.GetMintRequestByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteJSON(w, http.StatusOK, req)
}

func (h *Handlers) ListCompletedMints(w http.ResponseWriter, r *http.Request) {
	mints, err := h.locks.ListCompletedMints(r.Context())
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteList(w, http.StatusOK, mints, len(mints))
}

func (h *Handlers) GetCompletedMint(w http.ResponseWriter, r *http.Request) {
	mint, err := h.locks.GetCompletedMint(r.Context(), r.PathValue("id"))
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteJSON(w, http.StatusOK, mint)
}
