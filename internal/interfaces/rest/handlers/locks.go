package handlers

import (
	"context"
	"net/http"

	"github.com/dcb-treasury/certification-gateway/internal/application"
	"github.com/dcb-treasury/certification-gateway/internal/application/services"
	"github.com/dcb-treasury/certification-gateway/internal/domain"
	"github.com/dcb-treasury/certification-gateway/internal/interfaces/rest"
)

type createLockRequest struct {
	LockID      string             `json:"lockId"`
	LockDetails domain.LockDetails `json:"lockDetails"`
	BankInfo    domain.BankInfo    `json:"bankInfo"`
	Blockchain  domain.Blockchain  `json:"blockchain"`
}

type createLockResponse struct {
	Lock     *domain.Lock             `json:"lock"`
	Dispatch *services.DispatchResult `json:"dispatch,omitempty"`
}

func (h *Handlers) CreateLock(w http.ResponseWriter, r *http.Request) {
	var req createLockRequest
	if err := rest.DecodeJSON(r, &req); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	lock, dispatch, err := h.locks.CreateLock(r.Context(), services.CreateLockCommand{
		LockID:      req.LockID,
		LockDetails: req.LockDetails,
		BankInfo:    req.BankInfo,
		Blockchain:  req.Blockchain,
	})
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusCreated, createLockResponse{Lock: lock, Dispatch: dispatch})
}

type completeMintingRequest struct {
	TxHash              string `json:"txHash"`
	LusdContractAddress string `json:"lusdContractAddress"`
}

func (h *Handlers) CompleteMinting(w http.ResponseWriter, r *http.Request) {
	var req completeMintingRequest
	if err := rest.DecodeJSON(r, &req); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	lock, err := h.locks.CompleteMinting(r.Context(), r.PathValue("lockId"), req.TxHash, req.LusdContractAddress)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusOK, lock)
}

func (h *Handlers) ListLocks(w http.ResponseWriter, r *http.Request) {
	filter := application.LockFilter{
		Status:            r.URL.Query().Get("status"),
		AuthorizationCode: r.URL.Query().Get("authorizationCode"),
	}

	locks, err := h.locks.ListLocks(r.Context(), filter)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteList(w, http.StatusOK, locks, len(locks))
}

func (h *Handlers) ListPendingLocks(w http.ResponseWriter, r *http.Request) {
	h.writeLockList(w, r, h.locks.ListPending)
}

func (h *Handlers) ListApprovedLocks(w http.ResponseWriter, r *http.Request) {
	h.writeLockList(w, r, h.locks.ListApprovedByLemx)
}

func (h *Handlers) ListRejectedLocks(w http.ResponseWriter, r *http.Request) {
	h.writeLockList(w, r, h.locks.ListRejectedByLemx)
}

type mintedLocksResponse struct {
	Locks             []*domain.Lock `json:"locks"`
	TotalMintedAmount float64        `json:"totalMintedAmount"`
}

func (h *Handlers) ListMintedLocks(w http.ResponseWriter, r *http.Request) {
	summary, err := h.locks.ListMinted(r.Context())
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteList(w, http.StatusOK, mintedLocksResponse{
		Locks:             summary.Locks,
		TotalMintedAmount: summary.TotalMintedAmount,
	}, len(summary.Locks))
}

func (h *Handlers) GetLock(w http.ResponseWriter, r *http.Request) {
	lock, err := h.locks.GetLock(r.Context(), r.PathValue("lockId"))
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteJSON(w, http.StatusOK, lock)
}

func (h *Handlers) GetLockByCode(w http.ResponseWriter, r *http.Request) {
	lock, err := h.locks.GetLockByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteJSON(w, http.StatusOK, lock)
}

func (h *Handlers) writeLockList(w http.ResponseWriter, r *http.Request, list func(ctx context.Context) ([]*domain.Lock, error)) {
	locks, err := list(r.Context())
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteList(w, http.StatusOK, locks, len(locks))
}
