package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/dcb-treasury/certification-gateway/internal/application"
	"github.com/dcb-treasury/certification-gateway/internal/domain"
	"github.com/google/uuid"
)

// Issuer-side constants carried on every lock this gateway certifies.
const (
	DefaultBankID       = "DCB-001"
	DefaultBankName     = "Digital Commercial Bank Ltd."
	DefaultChainID      = 8866
	DefaultNetwork      = "LemonChain"
	DefaultLusdContract = "0x8DE60f88f19DAD42dde0D9ED2eebA68269722a99"
)

// CreateLockCommand carries the caller-supplied lock fields; zero values get
// issuer defaults.
type CreateLockCommand struct {
	LockID      string
	LockDetails domain.LockDetails
	BankInfo    domain.BankInfo
	Blockchain  domain.Blockchain
}

// MintedSummary is the minted-locks listing plus the running total.
type MintedSummary struct {
	Locks             []*domain.Lock
	TotalMintedAmount float64
}

// LockService owns the REST-facing lock lifecycle: creation, manual
// completion and all the read paths.
type LockService struct {
	locks      application.LockRepository
	mints      application.MintRepository
	events     application.EventRepository
	dispatcher *WebhookDispatcher
	peer       application.PeerClient
	audit      application.AuditLog
	logger     *slog.Logger
}

func NewLockService(
	locks application.LockRepository,
	mints application.MintRepository,
	events application.EventRepository,
	dispatcher *WebhookDispatcher,
	peer application.PeerClient,
	audit application.AuditLog,
	logger *slog.Logger,
) *LockService {
	return &LockService{
		locks:      locks,
		mints:      mints,
		events:     events,
		dispatcher: dispatcher,
		peer:       peer,
		audit:      audit,
		logger:     logger,
	}
}

// CreateLock registers a new pending lock and notifies the peer. A delivery
// failure does not fail the creation; the event stays persisted for the
// redelivery worker.
func (s *LockService) CreateLock(ctx context.Context, cmd CreateLockCommand) (*domain.Lock, *DispatchResult, error) {
	bank := cmd.BankInfo
	if bank.BankID == "" {
		bank.BankID = DefaultBankID
	}
	if bank.BankName == "" {
		bank.BankName = DefaultBankName
	}
	chain := cmd.Blockchain
	if chain.ChainID == 0 {
		chain.ChainID = DefaultChainID
	}
	if chain.Network == "" {
		chain.Network = DefaultNetwork
	}

	lock, err := domain.NewLock(uuid.New().String(), cmd.LockID, cmd.LockDetails, bank, chain)
	if err != nil {
		return nil, nil, application.NewValidationError(err.Error())
	}

	if err := s.locks.Create(ctx, lock); err != nil {
		if errors.Is(err, domain.ErrDuplicateLockID) {
			return nil, nil, application.NewConflictError(err)
		}
		return nil, nil, application.NewInternalError(err)
	}

	result, err := s.dispatcher.Dispatch(ctx, domain.EventLockCreated, lock)
	if err != nil {
		s.logger.Error("lock.created dispatch errored", "lock_id", lock.LockID, "error", err)
		result = &DispatchResult{Success: false, Error: err.Error()}
	}

	s.record(ctx, "lock.created", map[string]any{
		"lockId": lock.LockID,
		"amount": lock.LockDetails.Amount,
	})

	s.logger.Info("lock created", "lock_id", lock.LockID, "amount", lock.LockDetails.Amount)
	return lock, result, nil
}

// CompleteMinting is the operator path: the mint happened out of band and
// the lock is marked minted directly, then the peer is told.
func (s *LockService) CompleteMinting(ctx context.Context, ref, txHash, contractAddress string) (*domain.Lock, error) {
	if contractAddress == "" {
		contractAddress = DefaultLusdContract
	}

	var updated *domain.Lock
	for attempt := 0; attempt < casRetryLimit; attempt++ {
		lock, err := s.locks.FindByReference(ctx, ref)
		if err != nil {
			if errors.Is(err, domain.ErrLockNotFound) {
				return nil, application.NewNotFoundError("Lock")
			}
			return nil, application.NewInternalError(err)
		}

		lock.CompleteManually(txHash, contractAddress, time.Now().UTC())

		err = s.locks.UpdateVersioned(ctx, lock)
		if err == nil {
			updated = lock
			break
		}
		if errors.Is(err, domain.ErrVersionConflict) {
			continue
		}
		return nil, application.NewInternalError(err)
	}
	if updated == nil {
		return nil, application.NewConflictError(domain.ErrVersionConflict)
	}

	if _, err := s.dispatcher.Dispatch(ctx, domain.EventLockCompleted, updated); err != nil {
		s.logger.Error("lock.completed dispatch errored", "lock_id", updated.LockID, "error", err)
	}

	s.record(ctx, "lock.completed", map[string]any{
		"lockId": updated.LockID,
		"txHash": txHash,
	})
	return updated, nil
}

func (s *LockService) GetLock(ctx context.Context, ref string) (*domain.Lock, error) {
	lock, err := s.locks.FindByReference(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrLockNotFound) {
			return nil, application.NewNotFoundError("Lock")
		}
		return nil, application.NewInternalError(err)
	}
	return lock, nil
}

func (s *LockService) GetLockByCode(ctx context.Context, code string) (*domain.Lock, error) {
	lock, err := s.locks.FindByAuthorizationCode(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrLockNotFound) {
			return nil, application.NewNotFoundError("Lock")
		}
		return nil, application.NewInternalError(err)
	}
	return lock, nil
}

func (s *LockService) ListLocks(ctx context.Context, filter application.LockFilter) ([]*domain.Lock, error) {
	locks, err := s.locks.List(ctx, filter)
	if err != nil {
		return nil, application.NewInternalError(err)
	}
	return locks, nil
}

// ListPending returns locks awaiting peer adjudication.
func (s *LockService) ListPending(ctx context.Context) ([]*domain.Lock, error) {
	locks, err := s.locks.List(ctx, application.LockFilter{Status: string(domain.StatusPendingAuthorization)})
	if err != nil {
		return nil, application.NewInternalError(err)
	}
	pending := locks[:0]
	for _, l := range locks {
		if !l.LemxApprovalReceived {
			pending = append(pending, l)
		}
	}
	return pending, nil
}

// ListApprovedByLemx includes locks whose approval flag is set even when a
// later event moved the status on.
func (s *LockService) ListApprovedByLemx(ctx context.Context) ([]*domain.Lock, error) {
	locks, err := s.locks.List(ctx, application.LockFilter{})
	if err != nil {
		return nil, application.NewInternalError(err)
	}
	approved := locks[:0]
	for _, l := range locks {
		if l.Status == domain.StatusApprovedByLemx || l.LemxApprovalReceived {
			approved = append(approved, l)
		}
	}
	return approved, nil
}

func (s *LockService) ListRejectedByLemx(ctx context.Context) ([]*domain.Lock, error) {
	locks, err := s.locks.List(ctx, application.LockFilter{Status: string(domain.StatusRejectedByLemx)})
	if err != nil {
		return nil, application.NewInternalError(err)
	}
	return locks, nil
}

// ListMinted also sums the minted amounts for the dashboard.
func (s *LockService) ListMinted(ctx context.Context) (*MintedSummary, error) {
	locks, err := s.locks.List(ctx, application.LockFilter{Status: string(domain.StatusMinted)})
	if err != nil {
		return nil, application.NewInternalError(err)
	}

	var total float64
	for _, l := range locks {
		amount := l.LockDetails.Amount
		if l.MintedDetails != nil && l.MintedDetails.MintedAmount != "" {
			amount = l.MintedDetails.MintedAmount
		}
		if v, err := strconv.ParseFloat(amount, 64); err == nil {
			total += v
		}
	}
	return &MintedSummary{Locks: locks, TotalMintedAmount: total}, nil
}

func (s *LockService) ListMintRequests(ctx context.Context, filter application.MintRequestFilter) ([]*domain.MintRequest, error) {
	reqs, err := s.mints.ListMintRequests(ctx, filter)
	if err != nil {
		return nil, application.NewInternalError(err)
	}
	return reqs, nil
}

func (s *LockService) GetMintRequestByCode(ctx context.Context, code string) (*domain.MintRequest, error) {
	req, err := s.mints.FindMintRequestByCode(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrMintReqNotFound) {
			return nil, application.NewNotFoundError("Mint request")
		}
		return nil, application.NewInternalError(err)
	}
	return req, nil
}

func (s *LockService) ListCompletedMints(ctx context.Context) ([]*domain.CompletedMint, error) {
	mints, err := s.mints.ListCompletedMints(ctx)
	if err != nil {
		return nil, application.NewInternalError(err)
	}
	return mints, nil
}

func (s *LockService) GetCompletedMint(ctx context.Context, ref string) (*domain.CompletedMint, error) {
	mint, err := s.mints.FindCompletedMint(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrMintNotFound) {
			return nil, application.NewNotFoundError("Completed mint")
		}
		return nil, application.NewInternalError(err)
	}
	return mint, nil
}

// ClearCounts reports what a bulk clear removed.
type ClearCounts struct {
	Locks int `json:"locks"`
}

// ClearAll wipes locks, mint records and webhook events. Guarded by an
// explicit confirmation at the API layer.
func (s *LockService) ClearAll(ctx context.Context) (*ClearCounts, error) {
	cleared, err := s.locks.Clear(ctx)
	if err != nil {
		return nil, application.NewInternalError(err)
	}
	if err := s.mints.ClearMints(ctx); err != nil {
		return nil, application.NewInternalError(err)
	}
	if err := s.events.ClearEvents(ctx); err != nil {
		return nil, application.NewInternalError(err)
	}

	s.record(ctx, "data.cleared", map[string]any{"locks": cleared})
	s.logger.Info("all platform data cleared", "locks", cleared)
	return &ClearCounts{Locks: cleared}, nil
}

// SyncResult reports a peer reconciliation.
type SyncResult struct {
	Fetched  int `json:"fetched"`
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// SyncWithPeer pulls the peer's completed-mint records and imports the ones
// this side has not seen. Duplicates are skipped by the repository's
// publication-code / tx-hash / lock-id match.
func (s *LockService) SyncWithPeer(ctx context.Context) (*SyncResult, error) {
	snapshot, err := s.peer.FetchSnapshot(ctx)
	if err != nil {
		return nil, application.NewInternalError(err)
	}

	result := &SyncResult{Fetched: len(snapshot.CompletedMints)}
	now := time.Now().UTC()
	for _, mint := range snapshot.CompletedMints {
		if mint.ID == "" {
			mint.ID = uuid.New().String()
		}
		mint.SourceEvent = "peer.sync"
		mint.SyncedAt = &now
		inserted, err := s.mints.InsertCompletedMint(ctx, mint)
		if err != nil {
			return nil, application.NewInternalError(err)
		}
		if inserted {
			result.Imported++
		} else {
			result.Skipped++
		}
	}

	s.record(ctx, "peer.synced", map[string]any{
		"fetched":  result.Fetched,
		"imported": result.Imported,
	})
	s.logger.Info("peer sync complete", "fetched", result.Fetched, "imported", result.Imported)
	return result, nil
}

func (s *LockService) record(ctx context.Context, action string, details map[string]any) {
	if err := s.audit.Record(ctx, action, details, "system"); err != nil {
		s.logger.Error("audit record failed", "action", action, "error", err)
	}
}
