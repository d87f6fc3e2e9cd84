package services

import (
	"context"
	"strings"
	"time"

	"github.com/dcb-treasury/certification-gateway/internal/application"
	"github.com/dcb-treasury/certification-gateway/internal/domain"
)

// MockLockRepository
type MockLockRepository struct {
	locks map[string]*domain.Lock

	CreateFn                  func(ctx context.Context, lock *domain.Lock) error
	FindByReferenceFn         func(ctx context.Context, ref string) (*domain.Lock, error)
	FindByAuthorizationCodeFn func(ctx context.Context, code string) (*domain.Lock, error)
	ListFn                    func(ctx context.Context, filter application.LockFilter) ([]*domain.Lock, error)
	UpdateVersionedFn         func(ctx context.Context, lock *domain.Lock) error
	ClearFn                   func(ctx context.Context) (int, error)
}

func NewMockLockRepository() *MockLockRepository {
	return &MockLockRepository{locks: make(map[string]*domain.Lock)}
}

func (m *MockLockRepository) Put(lock *domain.Lock) {
	c := *lock
	m.locks[lock.ID] = &c
}

func (m *MockLockRepository) Create(ctx context.Context, lock *domain.Lock) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, lock)
	}
	for _, l := range m.locks {
		if l.LockID == lock.LockID {
			return domain.ErrDuplicateLockID
		}
	}
	m.Put(lock)
	return nil
}

func (m *MockLockRepository) FindByReference(ctx context.Context, ref string) (*domain.Lock, error) {
	if m.FindByReferenceFn != nil {
		return m.FindByReferenceFn(ctx, ref)
	}
	for _, l := range m.locks {
		if l.ID == ref || l.LockID == ref {
			c := *l
			return &c, nil
		}
	}
	return nil, domain.ErrLockNotFound
}

func (m *MockLockRepository) FindByAuthorizationCode(ctx context.Context, code string) (*domain.Lock, error) {
	if m.FindByAuthorizationCodeFn != nil {
		return m.FindByAuthorizationCodeFn(ctx, code)
	}
	for _, l := range m.locks {
		if l.AuthorizationCode != nil && *l.AuthorizationCode == code {
			c := *l
			return &c, nil
		}
	}
	return nil, domain.ErrLockNotFound
}

func (m *MockLockRepository) List(ctx context.Context, filter application.LockFilter) ([]*domain.Lock, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, filter)
	}
	out := make([]*domain.Lock, 0, len(m.locks))
	for _, l := range m.locks {
		if filter.Status != "" && string(l.Status) != filter.Status {
			continue
		}
		if filter.AuthorizationCode != "" &&
			(l.AuthorizationCode == nil || *l.AuthorizationCode != filter.AuthorizationCode) {
			continue
		}
		c := *l
		out = append(out, &c)
	}
	return out, nil
}

func (m *MockLockRepository) UpdateVersioned(ctx context.Context, lock *domain.Lock) error {
	if m.UpdateVersionedFn != nil {
		return m.UpdateVersionedFn(ctx, lock)
	}
	stored, ok := m.locks[lock.ID]
	if !ok {
		return domain.ErrLockNotFound
	}
	if stored.Version != lock.Version {
		return domain.ErrVersionConflict
	}
	lock.Version++
	m.Put(lock)
	return nil
}

func (m *MockLockRepository) Clear(ctx context.Context) (int, error) {
	if m.ClearFn != nil {
		return m.ClearFn(ctx)
	}
	n := len(m.locks)
	m.locks = make(map[string]*domain.Lock)
	return n, nil
}

// MockMintRepository
type MockMintRepository struct {
	requests  map[string]*domain.MintRequest
	completed []*domain.CompletedMint

	UpsertMintRequestFn   func(ctx context.Context, req *domain.MintRequest) error
	InsertCompletedMintFn func(ctx context.Context, mint *domain.CompletedMint) (bool, error)
}

func NewMockMintRepository() *MockMintRepository {
	return &MockMintRepository{requests: make(map[string]*domain.MintRequest)}
}

func (m *MockMintRepository) UpsertMintRequest(ctx context.Context, req *domain.MintRequest) error {
	if m.UpsertMintRequestFn != nil {
		return m.UpsertMintRequestFn(ctx, req)
	}
	if _, ok := m.requests[req.AuthorizationCode]; ok {
		return nil
	}
	m.requests[req.AuthorizationCode] = req
	return nil
}

func (m *MockMintRepository) CompleteMintRequest(ctx context.Context, authorizationCode, txHash, publicationCode string, completedAt time.Time) error {
	req, ok := m.requests[authorizationCode]
	if !ok {
		return domain.ErrMintReqNotFound
	}
	req.Status = domain.MintRequestCompleted
	req.MintTxHash = &txHash
	req.PublicationCode = &publicationCode
	req.CompletedAt = &completedAt
	return nil
}

func (m *MockMintRepository) ListMintRequests(ctx context.Context, filter application.MintRequestFilter) ([]*domain.MintRequest, error) {
	out := make([]*domain.MintRequest, 0, len(m.requests))
	for _, r := range m.requests {
		if filter.Status != "" && string(r.Status) != filter.Status {
			continue
		}
		if filter.AuthorizationCode != "" && r.AuthorizationCode != filter.AuthorizationCode {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *MockMintRepository) FindMintRequestByCode(ctx context.Context, code string) (*domain.MintRequest, error) {
	if r, ok := m.requests[code]; ok {
		return r, nil
	}
	return nil, domain.ErrMintReqNotFound
}

func (m *MockMintRepository) InsertCompletedMint(ctx context.Context, mint *domain.CompletedMint) (bool, error) {
	if m.InsertCompletedMintFn != nil {
		return m.InsertCompletedMintFn(ctx, mint)
	}
	for _, existing := range m.completed {
		if (mint.PublicationCode != "" && existing.PublicationCode == mint.PublicationCode) ||
			(mint.TxHash != "" && existing.TxHash == mint.TxHash) ||
			(mint.LockID != "" && existing.LockID == mint.LockID) {
			return false, nil
		}
	}
	m.completed = append(m.completed, mint)
	return true, nil
}

func (m *MockMintRepository) ListCompletedMints(ctx context.Context) ([]*domain.CompletedMint, error) {
	return m.completed, nil
}

func (m *MockMintRepository) FindCompletedMint(ctx context.Context, ref string) (*domain.CompletedMint, error) {
	for _, c := range m.completed {
		if c.PublicationCode == ref || c.TxHash == ref || c.ID == ref || c.AuthorizationCode == ref {
			return c, nil
		}
	}
	return nil, domain.ErrMintNotFound
}

func (m *MockMintRepository) ClearMints(ctx context.Context) error {
	m.requests = make(map[string]*domain.MintRequest)
	m.completed = nil
	return nil
}

// MockEventRepository
type MockEventRepository struct {
	events []*domain.WebhookEvent

	SaveFn                  func(ctx context.Context, event *domain.WebhookEvent) error
	MarkDeliveredFn         func(ctx context.Context, eventID string, status int, at time.Time) error
	RecordDeliveryFailureFn func(ctx context.Context, eventID string, deliveryErr string) error
	FindUndeliveredFn       func(ctx context.Context, maxAttempts, limit int) ([]*domain.WebhookEvent, error)
}

func NewMockEventRepository() *MockEventRepository {
	return &MockEventRepository{}
}

func (m *MockEventRepository) Save(ctx context.Context, event *domain.WebhookEvent) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, event)
	}
	m.events = append(m.events, event)
	return nil
}

func (m *MockEventRepository) MarkDelivered(ctx context.Context, eventID string, status int, at time.Time) error {
	if m.MarkDeliveredFn != nil {
		return m.MarkDeliveredFn(ctx, eventID, status, at)
	}
	for _, e := range m.events {
		if e.ID == eventID {
			e.Delivered = true
			e.LastStatus = &status
			e.DeliveredAt = &at
			e.Attempts++
		}
	}
	return nil
}

func (m *MockEventRepository) RecordDeliveryFailure(ctx context.Context, eventID string, deliveryErr string) error {
	if m.RecordDeliveryFailureFn != nil {
		return m.RecordDeliveryFailureFn(ctx, eventID, deliveryErr)
	}
	for _, e := range m.events {
		if e.ID == eventID {
			e.Attempts++
			e.LastError = &deliveryErr
		}
	}
	return nil
}

func (m *MockEventRepository) ListRecent(ctx context.Context, limit int) ([]*domain.WebhookEvent, error) {
	if limit > 0 && len(m.events) > limit {
		return m.events[len(m.events)-limit:], nil
	}
	return m.events, nil
}

func (m *MockEventRepository) FindUndelivered(ctx context.Context, maxAttempts, limit int) ([]*domain.WebhookEvent, error) {
	if m.FindUndeliveredFn != nil {
		return m.FindUndeliveredFn(ctx, maxAttempts, limit)
	}
	var out []*domain.WebhookEvent
	for _, e := range m.events {
		if e.Direction == domain.DirectionOutbound && !e.Delivered && e.Attempts < maxAttempts {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MockEventRepository) ClearEvents(ctx context.Context) error {
	m.events = nil
	return nil
}

// MockEndpointRepository
type MockEndpointRepository struct {
	endpoints map[string]*domain.WebhookEndpoint
}

func NewMockEndpointRepository() *MockEndpointRepository {
	return &MockEndpointRepository{endpoints: make(map[string]*domain.WebhookEndpoint)}
}

func (m *MockEndpointRepository) Upsert(ctx context.Context, endpoint *domain.WebhookEndpoint) (*domain.WebhookEndpoint, bool, error) {
	for _, e := range m.endpoints {
		if e.URL == endpoint.URL {
			e.Name = endpoint.Name
			e.Events = endpoint.Events
			e.Active = true
			return e, false, nil
		}
	}
	m.endpoints[endpoint.ID] = endpoint
	return endpoint, true, nil
}

func (m *MockEndpointRepository) List(ctx context.Context) ([]*domain.WebhookEndpoint, error) {
	out := make([]*domain.WebhookEndpoint, 0, len(m.endpoints))
	for _, e := range m.endpoints {
		out = append(out, e)
	}
	return out, nil
}

func (m *MockEndpointRepository) FindByID(ctx context.Context, id string) (*domain.WebhookEndpoint, error) {
	if e, ok := m.endpoints[id]; ok {
		return e, nil
	}
	return nil, domain.ErrEndpointNotFound
}

func (m *MockEndpointRepository) Delete(ctx context.Context, id string) (*domain.WebhookEndpoint, error) {
	e, ok := m.endpoints[id]
	if !ok {
		return nil, domain.ErrEndpointNotFound
	}
	delete(m.endpoints, id)
	return e, nil
}

// MockAPIKeyRepository
type MockAPIKeyRepository struct {
	keys map[string]*domain.APIKey
}

func NewMockAPIKeyRepository() *MockAPIKeyRepository {
	return &MockAPIKeyRepository{keys: make(map[string]*domain.APIKey)}
}

func (m *MockAPIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	c := *key
	m.keys[key.ID] = &c
	return nil
}

func (m *MockAPIKeyRepository) List(ctx context.Context) ([]*domain.APIKey, error) {
	out := make([]*domain.APIKey, 0, len(m.keys))
	for _, k := range m.keys {
		c := *k
		out = append(out, &c)
	}
	return out, nil
}

func (m *MockAPIKeyRepository) FindByKey(ctx context.Context, key string) (*domain.APIKey, error) {
	for _, k := range m.keys {
		if k.Key == key {
			c := *k
			return &c, nil
		}
	}
	return nil, domain.ErrAPIKeyNotFound
}

func (m *MockAPIKeyRepository) Update(ctx context.Context, key *domain.APIKey) error {
	if _, ok := m.keys[key.ID]; !ok {
		return domain.ErrAPIKeyNotFound
	}
	c := *key
	m.keys[key.ID] = &c
	return nil
}

func (m *MockAPIKeyRepository) FindByID(ctx context.Context, id string) (*domain.APIKey, error) {
	k, ok := m.keys[id]
	if !ok {
		return nil, domain.ErrAPIKeyNotFound
	}
	c := *k
	return &c, nil
}

func (m *MockAPIKeyRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	if k, ok := m.keys[id]; ok {
		k.LastUsed = &at
	}
	return nil
}

// MockAuditLog
type MockAuditLog struct {
	entries []*domain.AuditLogEntry
}

func NewMockAuditLog() *MockAuditLog {
	return &MockAuditLog{}
}

func (m *MockAuditLog) Record(ctx context.Context, action string, details map[string]any, userID string) error {
	m.entries = append(m.entries, &domain.AuditLogEntry{
		Action:    action,
		Details:   details,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

func (m *MockAuditLog) List(ctx context.Context, limit int) ([]*domain.AuditLogEntry, error) {
	if limit > 0 && len(m.entries) > limit {
		return m.entries[len(m.entries)-limit:], nil
	}
	return m.entries, nil
}

func (m *MockAuditLog) Count(ctx context.Context) (int, error) {
	return len(m.entries), nil
}

// Actions returns the recorded action names in order, for assertions.
func (m *MockAuditLog) Actions() []string {
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

func (m *MockAuditLog) Has(action string) bool {
	for _, e := range m.entries {
		if e.Action == action || strings.HasPrefix(e.Action, action) {
			return true
		}
	}
	return false
}

// MockPeerClient
type MockPeerClient struct {
	Deliveries []application.PeerDelivery

	DeliverFn          func(ctx context.Context, delivery application.PeerDelivery) (int, error)
	FetchSnapshotFn    func(ctx context.Context) (*application.PeerSnapshot, error)
	RegisterEndpointFn func(ctx context.Context, name, callbackURL string, events []string) error
}

func NewMockPeerClient() *MockPeerClient {
	return &MockPeerClient{}
}

func (m *MockPeerClient) Deliver(ctx context.Context, delivery application.PeerDelivery) (int, error) {
	m.Deliveries = append(m.Deliveries, delivery)
	if m.DeliverFn != nil {
		return m.DeliverFn(ctx, delivery)
	}
	return 200, nil
}

func (m *MockPeerClient) FetchSnapshot(ctx context.Context) (*application.PeerSnapshot, error) {
	if m.FetchSnapshotFn != nil {
		return m.FetchSnapshotFn(ctx)
	}
	return &application.PeerSnapshot{}, nil
}

func (m *MockPeerClient) RegisterEndpoint(ctx context.Context, name, callbackURL string, events []string) error {
	if m.RegisterEndpointFn != nil {
		return m.RegisterEndpointFn(ctx, name, callbackURL, events)
	}
	return nil
}
