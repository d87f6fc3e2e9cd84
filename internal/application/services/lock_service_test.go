package services

import (
	"context"
	"testing"
	"time"

	"github.com/dcb-treasury/certification-gateway/internal/application"
	"github.com/dcb-treasury/certification-gateway/internal/domain"
	"github.com/dcb-treasury/certification-gateway/internal/infrastructure/signature"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockServiceFixture struct {
	service *LockService
	locks   *MockLockRepository
	mints   *MockMintRepository
	events  *MockEventRepository
	peer    *MockPeerClient
	audit   *MockAuditLog
}

func newLockServiceFixture() *lockServiceFixture {
	locks := NewMockLockRepository()
	mints := NewMockMintRepository()
	events := NewMockEventRepository()
	peerClient := NewMockPeerClient()
	audit := NewMockAuditLog()
	signer := signature.NewSigner(testSecret, 5*time.Minute)
	dispatcher := NewWebhookDispatcher(locks, events, peerClient, audit, signer, testWebhookConfig(), testLogger())
	return &lockServiceFixture{
		service: NewLockService(locks, mints, events, dispatcher, peerClient, audit, testLogger()),
		locks:   locks,
		mints:   mints,
		events:  events,
		peer:    peerClient,
		audit:   audit,
	}
}

func TestCreateLock_AppliesIssuerDefaultsAndNotifiesPeer(t *testing.T) {
	f := newLockServiceFixture()

	lock, result, err := f.service.CreateLock(context.Background(), CreateLockCommand{
		LockDetails: domain.LockDetails{
			Amount:      "1000000",
			Beneficiary: "0x742d35Cc6634C0532925a3b844Bc9e7595f2bD4e",
		},
	})

	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, domain.StatusPendingAuthorization, lock.Status)
	assert.NotEmpty(t, lock.LockID)
	assert.Equal(t, "DCB-001", lock.BankInfo.BankID)
	assert.Equal(t, "Digital Commercial Bank Ltd.", lock.BankInfo.BankName)
	assert.EqualValues(t, 8866, lock.Blockchain.ChainID)
	assert.Equal(t, "LemonChain", lock.Blockchain.Network)
	assert.Equal(t, "USD", lock.LockDetails.Currency)
	assert.EqualValues(t, 1, lock.Version)

	require.NotNil(t, result)
	assert.True(t, result.Success)
	require.Len(t, f.peer.Deliveries, 1)
	assert.Equal(t, domain.EventLockCreated, f.peer.Deliveries[0].Event.Type)
	assert.True(t, f.audit.Has("lock.created"))
}

func TestCreateLock_DuplicateLockIDConflicts(t *testing.T) {
	f := newLockServiceFixture()

	_, _, err := f.service.CreateLock(context.Background(), CreateLockCommand{LockID: "LOCK-DUP"})
	require.NoError(t, err)

	_, _, err = f.service.CreateLock(context.Background(), CreateLockCommand{LockID: "LOCK-DUP"})
	require.Error(t, err)
	assert.Equal(t, 409, application.ToHTTPStatus(err))
}

func TestCreateLock_DeliveryFailureStillCreates(t *testing.T) {
	f := newLockServiceFixture()
	f.peer.DeliverFn = func(ctx context.Context, d application.PeerDelivery) (int, error) {
		return 0, assertableErr("peer down")
	}

	lock, result, err := f.service.CreateLock(context.Background(), CreateLockCommand{LockID: "LOCK-OFFLINE"})

	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.False(t, result.Success)

	stored, err := f.locks.FindByReference(context.Background(), "LOCK-OFFLINE")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingAuthorization, stored.Status)
}

func TestCompleteMinting_MarksMintedAndDispatches(t *testing.T) {
	f := newLockServiceFixture()
	lock := newTestLock("LOCK-MANUAL")
	f.locks.Put(lock)

	updated, err := f.service.CompleteMinting(context.Background(), "LOCK-MANUAL", "0xmanual", "")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusMinted, updated.Status)
	require.NotNil(t, updated.MintTxHash)
	assert.Equal(t, "0xmanual", *updated.MintTxHash)
	require.NotNil(t, updated.LusdContractAddress)
	assert.Equal(t, DefaultLusdContract, *updated.LusdContractAddress)

	require.Len(t, f.peer.Deliveries, 1)
	assert.Equal(t, domain.EventLockCompleted, f.peer.Deliveries[0].Event.Type)
	assert.True(t, f.audit.Has("lock.completed"))
}

func TestCompleteMinting_UnknownLock(t *testing.T) {
	f := newLockServiceFixture()

	_, err := f.service.CompleteMinting(context.Background(), "LOCK-GHOST", "0x1", "")

	require.Error(t, err)
	assert.Equal(t, 404, application.ToHTTPStatus(err))
}

func TestListPending_ExcludesAdjudicatedLocks(t *testing.T) {
	f := newLockServiceFixture()

	pending := newTestLock("LOCK-P1")
	f.locks.Put(pending)

	adjudicated := newTestLock("LOCK-P2")
	adjudicated.LemxApprovalReceived = true
	f.locks.Put(adjudicated)

	locks, err := f.service.ListPending(context.Background())

	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, "LOCK-P1", locks[0].LockID)
}

func TestListApprovedByLemx_IncludesFlaggedLocksPastApproval(t *testing.T) {
	f := newLockServiceFixture()

	approved := newTestLock("LOCK-A1")
	approved.ApproveByLemx("lemx-admin", time.Now().UTC())
	f.locks.Put(approved)

	// Approval flag survives the move to minted.
	minted := newTestLock("LOCK-A2")
	minted.ApproveByLemx("lemx-admin", time.Now().UTC())
	now := time.Now().UTC()
	minted.CompleteMint(domain.MintedDetails{TxHash: "0x1", MintedAt: &now}, "")
	f.locks.Put(minted)

	plain := newTestLock("LOCK-A3")
	f.locks.Put(plain)

	locks, err := f.service.ListApprovedByLemx(context.Background())

	require.NoError(t, err)
	assert.Len(t, locks, 2)
}

func TestListMinted_SumsMintedAmounts(t *testing.T) {
	f := newLockServiceFixture()

	first := newTestLock("LOCK-M1")
	now := time.Now().UTC()
	first.CompleteMint(domain.MintedDetails{TxHash: "0x1", MintedAmount: "1000000", MintedAt: &now}, "")
	f.locks.Put(first)

	second := newTestLock("LOCK-M2")
	second.CompleteMint(domain.MintedDetails{TxHash: "0x2", MintedAmount: "250000.5", MintedAt: &now}, "")
	f.locks.Put(second)

	summary, err := f.service.ListMinted(context.Background())

	require.NoError(t, err)
	assert.Len(t, summary.Locks, 2)
	assert.InDelta(t, 1250000.5, summary.TotalMintedAmount, 0.001)
}

func TestClearAll_WipesLocksMintsAndEvents(t *testing.T) {
	f := newLockServiceFixture()
	f.locks.Put(newTestLock("LOCK-C1"))
	f.locks.Put(newTestLock("LOCK-C2"))
	require.NoError(t, f.events.Save(context.Background(), &domain.WebhookEvent{ID: uuid.New().String()}))

	counts, err := f.service.ClearAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, counts.Locks)

	locks, err := f.service.ListLocks(context.Background(), application.LockFilter{})
	require.NoError(t, err)
	assert.Empty(t, locks)
	assert.Empty(t, f.events.events)
	assert.True(t, f.audit.Has("data.cleared"))
}

func TestSyncWithPeer_ImportsOnlyUnseenMints(t *testing.T) {
	f := newLockServiceFixture()

	known := &domain.CompletedMint{
		ID:              uuid.New().String(),
		PublicationCode: "PUB-KNOWN",
		TxHash:          "0xknown",
		LockID:          "LOCK-S1",
	}
	_, err := f.mints.InsertCompletedMint(context.Background(), known)
	require.NoError(t, err)

	f.peer.FetchSnapshotFn = func(ctx context.Context) (*application.PeerSnapshot, error) {
		return &application.PeerSnapshot{CompletedMints: []*domain.CompletedMint{
			{PublicationCode: "PUB-KNOWN", TxHash: "0xknown", LockID: "LOCK-S1"},
			{PublicationCode: "PUB-NEW", TxHash: "0xnew", LockID: "LOCK-S2"},
		}}, nil
	}

	result, err := f.service.SyncWithPeer(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Skipped)

	mints, err := f.mints.ListCompletedMints(context.Background())
	require.NoError(t, err)
	require.Len(t, mints, 2)
	assert.True(t, f.audit.Has("peer.synced"))

	imported, err := f.mints.FindCompletedMint(context.Background(), "PUB-NEW")
	require.NoError(t, err)
	assert.Equal(t, "peer.sync", imported.SourceEvent)
	assert.NotNil(t, imported.SyncedAt)
}

// assertableErr is a trivial error for stubbing transport failures.
type assertableErr string

func (e assertableErr) Error() string { return string(e) }
