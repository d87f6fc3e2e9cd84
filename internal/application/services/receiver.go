package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/dcb-treasury/certification-gateway/internal/application"
	"github.com/dcb-treasury/certification-gateway/internal/domain"
	"github.com/dcb-treasury/certification-gateway/internal/infrastructure/signature"
	"github.com/google/uuid"
)

// casRetryLimit bounds the optimistic-locking retry loop when two callbacks
// for the same lock race each other.
const casRetryLimit = 3

// ReceiveAck is returned for every accepted inbound event. Delivery
// acknowledgment is decoupled from business resolution: an event that
// matched no lock still gets an ack.
type ReceiveAck struct {
	EventID           string
	ProcessedAt       time.Time
	SignatureVerified bool
}

// WebhookReceiver validates inbound events from the minting platform and
// applies their state-machine effects.
type WebhookReceiver struct {
	locks            application.LockRepository
	mints            application.MintRepository
	events           application.EventRepository
	audit            application.AuditLog
	signer           *signature.Signer
	enforceSignature bool
	logger           *slog.Logger
	now              func() time.Time
}

func NewWebhookReceiver(
	locks application.LockRepository,
	mints application.MintRepository,
	events application.EventRepository,
	audit application.AuditLog,
	signer *signature.Signer,
	enforceSignature bool,
	logger *slog.Logger,
) *WebhookReceiver {
	return &WebhookReceiver{
		locks:            locks,
		mints:            mints,
		events:           events,
		audit:            audit,
		signer:           signer,
		enforceSignature: enforceSignature,
		logger:           logger,
		now:              time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (r *WebhookReceiver) WithClock(now func() time.Time) *WebhookReceiver {
	r.now = now
	return r
}

// Receive runs verify -> persist -> transition -> audit, in that order.
// The declared type from the transport header takes precedence over the
// body's own type field.
func (r *WebhookReceiver) Receive(ctx context.Context, event *domain.WebhookEvent, suppliedSignature, declaredType string) (*ReceiveAck, error) {
	supplied := suppliedSignature
	if supplied == "" {
		supplied = event.Signature
	}

	verified := false
	if r.enforceSignature {
		if !r.signer.Verify(event, supplied) {
			r.logger.Warn("rejecting webhook with invalid signature", "event_id", event.ID, "type", event.Type)
			return nil, application.NewAuthenticationError("Invalid webhook signature")
		}
		verified = true
	} else if supplied != "" {
		verified = r.signer.Verify(event, supplied)
	}

	eventType := declaredType
	if eventType == "" {
		eventType = event.Type
	}

	now := r.now().UTC()
	stored := *event
	stored.Direction = domain.DirectionInbound
	stored.ReceivedAt = &now
	stored.SignatureVerified = verified
	stored.CreatedAt = now
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if err := r.events.Save(ctx, &stored); err != nil {
		return nil, application.NewInternalError(err)
	}

	if err := r.apply(ctx, eventType, &stored); err != nil {
		return nil, err
	}

	return &ReceiveAck{
		EventID:           stored.ID,
		ProcessedAt:       now,
		SignatureVerified: verified,
	}, nil
}

func (r *WebhookReceiver) apply(ctx context.Context, eventType string, event *domain.WebhookEvent) error {
	switch eventType {
	case domain.EventAuthorizationGenerated:
		return r.applyAuthorizationGenerated(ctx, event)
	case domain.EventLockApproved:
		return r.applyLockApproved(ctx, event)
	case domain.EventLockRejected:
		return r.applyLockRejected(ctx, event)
	case domain.EventMintStarted:
		return r.applyMintStarted(ctx, event)
	case domain.EventMintCompleted:
		return r.applyMintCompleted(ctx, event)
	case domain.EventMintFailed:
		return r.applyMintFailed(ctx, event)
	default:
		r.logger.Info("ignoring webhook with unknown type", "type", eventType, "event_id", event.ID)
		return nil
	}
}

func (r *WebhookReceiver) applyAuthorizationGenerated(ctx context.Context, event *domain.WebhookEvent) error {
	var p struct {
		LockID            string     `json:"lockId"`
		AuthorizationCode string     `json:"authorizationCode"`
		Amount            flexString `json:"amount"`
		Beneficiary       string     `json:"beneficiary"`
		GeneratedAt       flexTime   `json:"generatedAt"`
		GeneratedBy       string     `json:"generatedBy"`
		ExpiresAt         flexTime   `json:"expiresAt"`
	}
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return application.NewValidationError("malformed authorization.generated payload")
	}

	generatedAt := p.GeneratedAt.Or(r.now().UTC())
	expiresAt := p.ExpiresAt.Or(r.now().UTC().Add(24 * time.Hour))

	matched, err := r.mutateLock(ctx, p.LockID, "", func(lock *domain.Lock) {
		lock.Authorize(p.AuthorizationCode, p.GeneratedBy, generatedAt, expiresAt)
	})
	if err != nil {
		return err
	}
	if matched {
		r.record(ctx, "lock.authorized", map[string]any{
			"lockId":            p.LockID,
			"authorizationCode": p.AuthorizationCode,
			"generatedBy":       p.GeneratedBy,
		})
	} else {
		r.reportUnmatched(ctx, domain.EventAuthorizationGenerated, p.LockID, event.ID)
	}

	// A mint request is recorded even when the lock is unknown; the code was
	// issued and the explorer must show it.
	req := &domain.MintRequest{
		ID:                uuid.New().String(),
		AuthorizationCode: p.AuthorizationCode,
		LockID:            p.LockID,
		RequestedAmount:   string(p.Amount),
		TokenSymbol:       "VUSD",
		Beneficiary:       p.Beneficiary,
		Status:            domain.MintRequestPending,
		CreatedAt:         generatedAt,
		ExpiresAt:         expiresAt,
		SourceEvent:       event.ID,
	}
	if err := r.mints.UpsertMintRequest(ctx, req); err != nil {
		return application.NewInternalError(err)
	}
	return nil
}

func (r *WebhookReceiver) applyLockApproved(ctx context.Context, event *domain.WebhookEvent) error {
	var p struct {
		LockID     string   `json:"lockId"`
		ApprovedAt flexTime `json:"approvedAt"`
		ApprovedBy string   `json:"approvedBy"`
	}
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return application.NewValidationError("malformed lock.approved payload")
	}

	matched, err := r.mutateLock(ctx, p.LockID, "", func(lock *domain.Lock) {
		lock.ApproveByLemx(p.ApprovedBy, p.ApprovedAt.Or(r.now().UTC()))
	})
	if err != nil {
		return err
	}
	if matched {
		r.record(ctx, "lock.approved_by_lemx", map[string]any{
			"lockId":     p.LockID,
			"approvedBy": p.ApprovedBy,
		})
	} else {
		r.reportUnmatched(ctx, domain.EventLockApproved, p.LockID, event.ID)
	}
	return nil
}

func (r *WebhookReceiver) applyLockRejected(ctx context.Context, event *domain.WebhookEvent) error {
	var p struct {
		LockID     string   `json:"lockId"`
		RejectedAt flexTime `json:"rejectedAt"`
		RejectedBy string   `json:"rejectedBy"`
		Reason     string   `json:"reason"`
	}
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return application.NewValidationError("malformed lock.rejected payload")
	}

	matched, err := r.mutateLock(ctx, p.LockID, "", func(lock *domain.Lock) {
		lock.RejectByLemx(p.RejectedBy, p.Reason, p.RejectedAt.Or(r.now().UTC()))
	})
	if err != nil {
		return err
	}
	if matched {
		r.record(ctx, "lock.rejected_by_lemx", map[string]any{
			"lockId":     p.LockID,
			"rejectedBy": p.RejectedBy,
			"reason":     p.Reason,
		})
	} else {
		r.reportUnmatched(ctx, domain.EventLockRejected, p.LockID, event.ID)
	}
	return nil
}

func (r *WebhookReceiver) applyMintStarted(ctx context.Context, event *domain.WebhookEvent) error {
	var p struct {
		LockID            string   `json:"lockId"`
		AuthorizationCode string   `json:"authorizationCode"`
		StartedAt         flexTime `json:"startedAt"`
		StartedBy         string   `json:"startedBy"`
	}
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return application.NewValidationError("malformed mint.started payload")
	}

	matched, err := r.mutateLock(ctx, p.LockID, p.AuthorizationCode, func(lock *domain.Lock) {
		lock.StartMinting(p.StartedAt.Or(r.now().UTC()))
	})
	if err != nil {
		return err
	}
	if !matched {
		r.reportUnmatched(ctx, domain.EventMintStarted, p.LockID, event.ID)
	}
	return nil
}

func (r *WebhookReceiver) applyMintCompleted(ctx context.Context, event *domain.WebhookEvent) error {
	var p struct {
		LockID              string     `json:"lockId"`
		AuthorizationCode   string     `json:"authorizationCode"`
		PublicationCode     string     `json:"publicationCode"`
		TxHash              string     `json:"txHash"`
		MintedAmount        flexString `json:"mintedAmount"`
		MintedAt            flexTime   `json:"mintedAt"`
		LusdContractAddress string     `json:"lusdContractAddress"`
		BlockNumber         *int64     `json:"blockNumber"`
		GasUsed             flexString `json:"gasUsed"`
		MintedBy            string     `json:"mintedBy"`
		SourceOfFunds       string     `json:"sourceOfFunds"`
		BankName            string     `json:"bankName"`
		Currency            string     `json:"currency"`
		Beneficiary         string     `json:"beneficiary"`
	}
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return application.NewValidationError("malformed mint.completed payload")
	}

	mintedAt := p.MintedAt.Or(r.now().UTC())
	details := domain.MintedDetails{
		TxHash:              p.TxHash,
		PublicationCode:     p.PublicationCode,
		MintedAmount:        string(p.MintedAmount),
		LusdContractAddress: p.LusdContractAddress,
		MintedBy:            p.MintedBy,
		MintedAt:            &mintedAt,
		BlockNumber:         p.BlockNumber,
	}

	resolvedLockID := p.LockID
	matched, err := r.mutateLock(ctx, p.LockID, p.AuthorizationCode, func(lock *domain.Lock) {
		lock.CompleteMint(details, string(p.GasUsed))
		resolvedLockID = lock.LockID
	})
	if err != nil {
		return err
	}
	if !matched {
		r.reportUnmatched(ctx, domain.EventMintCompleted, p.LockID, event.ID)
	}

	if p.AuthorizationCode != "" {
		if err := r.mints.CompleteMintRequest(ctx, p.AuthorizationCode, p.TxHash, p.PublicationCode, mintedAt); err != nil {
			r.logger.Error("failed to complete mint request", "authorization_code", p.AuthorizationCode, "error", err)
		}
	}

	currency := p.Currency
	if currency == "" {
		currency = "USD"
	}
	inserted, err := r.mints.InsertCompletedMint(ctx, &domain.CompletedMint{
		ID:                  uuid.New().String(),
		AuthorizationCode:   p.AuthorizationCode,
		PublicationCode:     p.PublicationCode,
		TxHash:              p.TxHash,
		BlockNumber:         p.BlockNumber,
		MintedAmount:        string(p.MintedAmount),
		MintedAt:            &mintedAt,
		LusdContractAddress: p.LusdContractAddress,
		GasUsed:             optional(string(p.GasUsed)),
		MintedBy:            p.MintedBy,
		LockID:              resolvedLockID,
		SourceOfFunds:       p.SourceOfFunds,
		BankName:            p.BankName,
		Currency:            currency,
		Beneficiary:         p.Beneficiary,
		SourceEvent:         event.ID,
		CreatedAt:           r.now().UTC(),
	})
	if err != nil {
		return application.NewInternalError(err)
	}
	if !inserted {
		r.logger.Info("completed mint already recorded", "publication_code", p.PublicationCode)
	}

	r.record(ctx, "mint.completed", map[string]any{
		"lockId":            resolvedLockID,
		"authorizationCode": p.AuthorizationCode,
		"publicationCode":   p.PublicationCode,
		"txHash":            p.TxHash,
		"mintedAmount":      string(p.MintedAmount),
	})
	return nil
}

func (r *WebhookReceiver) applyMintFailed(ctx context.Context, event *domain.WebhookEvent) error {
	var p struct {
		LockID            string   `json:"lockId"`
		AuthorizationCode string   `json:"authorizationCode"`
		Error             string   `json:"error"`
		FailedAt          flexTime `json:"failedAt"`
	}
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return application.NewValidationError("malformed mint.failed payload")
	}

	matched, err := r.mutateLock(ctx, p.LockID, p.AuthorizationCode, func(lock *domain.Lock) {
		lock.FailMint(p.Error, p.FailedAt.Or(r.now().UTC()))
	})
	if err != nil {
		return err
	}
	if !matched {
		r.reportUnmatched(ctx, domain.EventMintFailed, p.LockID, event.ID)
	}

	r.record(ctx, "mint.failed", map[string]any{
		"lockId":            p.LockID,
		"authorizationCode": p.AuthorizationCode,
		"error":             p.Error,
	})
	return nil
}

// mutateLock resolves the lock by lockId (falling back to authorization
// code), applies the mutation and writes with compare-and-swap, retrying a
// bounded number of times on version conflict. A missing lock returns
// (false, nil): report-only, never fatal.
func (r *WebhookReceiver) mutateLock(ctx context.Context, ref, authCode string, mutate func(*domain.Lock)) (bool, error) {
	for attempt := 0; attempt < casRetryLimit; attempt++ {
		lock, err := r.findLock(ctx, ref, authCode)
		if err != nil {
			return false, application.NewInternalError(err)
		}
		if lock == nil {
			return false, nil
		}

		mutate(lock)

		err = r.locks.UpdateVersioned(ctx, lock)
		if err == nil {
			return true, nil
		}
		if errorsIsConflict(err) {
			r.logger.Warn("lock version conflict, retrying", "lock_id", lock.LockID, "attempt", attempt+1)
			continue
		}
		return false, application.NewInternalError(err)
	}
	return false, application.NewConflictError(domain.ErrVersionConflict)
}

func (r *WebhookReceiver) findLock(ctx context.Context, ref, authCode string) (*domain.Lock, error) {
	if ref != "" {
		lock, err := r.locks.FindByReference(ctx, ref)
		if err == nil {
			return lock, nil
		}
		if !errorsIsNotFound(err) {
			return nil, err
		}
	}
	if authCode != "" {
		lock, err := r.locks.FindByAuthorizationCode(ctx, authCode)
		if err == nil {
			return lock, nil
		}
		if !errorsIsNotFound(err) {
			return nil, err
		}
	}
	return nil, nil
}

func (r *WebhookReceiver) reportUnmatched(ctx context.Context, eventType, lockID, eventID string) {
	r.logger.Warn("webhook references unknown lock", "type", eventType, "lock_id", lockID, "event_id", eventID)
	r.record(ctx, "webhook.unmatched", map[string]any{
		"eventType": eventType,
		"lockId":    lockID,
		"eventId":   eventID,
	})
}

func (r *WebhookReceiver) record(ctx context.Context, action string, details map[string]any) {
	if err := r.audit.Record(ctx, action, details, "system"); err != nil {
		r.logger.Error("audit record failed", "action", action, "error", err)
	}
}

// flexString accepts JSON strings and numbers; amounts arrive both ways.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexTime accepts RFC 3339 strings and unix epoch numbers, tolerating
// absent values.
type flexTime struct {
	t  time.Time
	ok bool
}

func (f *flexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			ts, err = time.Parse(time.RFC3339, s)
		}
		if err != nil {
			return nil
		}
		f.t, f.ok = ts, true
		return nil
	}
	epoch, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return nil
	}
	if epoch > 1e12 {
		f.t = time.UnixMilli(epoch)
	} else {
		f.t = time.Unix(epoch, 0)
	}
	f.ok = true
	return nil
}

// Or returns the parsed time or the fallback when the field was absent.
func (f flexTime) Or(fallback time.Time) time.Time {
	if f.ok {
		return f.t
	}
	return fallback
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, domain.ErrLockNotFound)
}

func errorsIsConflict(err error) bool {
	return errors.Is(err, domain.ErrVersionConflict)
}
