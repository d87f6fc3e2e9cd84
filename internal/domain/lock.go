// Package domain encodes the lock entity, its lifecycle and the records
// produced while a lock moves toward a completed mint.
package domain

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LockStatus represents the current state of a lock in its lifecycle.
type LockStatus string

const (
	StatusPendingAuthorization LockStatus = "pending_authorization"
	StatusAuthorized           LockStatus = "authorized"
	StatusApprovedByLemx       LockStatus = "approved_by_lemx"
	StatusRejectedByLemx       LockStatus = "rejected_by_lemx"
	StatusMinted               LockStatus = "minted"
	StatusMintFailed           LockStatus = "mint_failed"
)

// LockDetails holds the certified fund-lock terms. Amounts are decimal
// strings as carried on the wire; the gateway never does arithmetic on them.
type LockDetails struct {
	Amount       string    `json:"amount"`
	Currency     string    `json:"currency"`
	Beneficiary  string    `json:"beneficiary"`
	CustodyVault string    `json:"custodyVault"`
	Expiry       time.Time `json:"expiry"`
}

type BankInfo struct {
	BankID        string `json:"bankId"`
	BankName      string `json:"bankName"`
	SignerAddress string `json:"signerAddress"`
}

type Blockchain struct {
	ChainID int64  `json:"chainId"`
	Network string `json:"network"`
}

// MintedDetails is the summary of a completed mint as reported by the peer.
type MintedDetails struct {
	TxHash              string     `json:"txHash"`
	PublicationCode     string     `json:"publicationCode"`
	MintedAmount        string     `json:"mintedAmount"`
	LusdContractAddress string     `json:"lusdContractAddress"`
	MintedBy            string     `json:"mintedBy"`
	MintedAt            *time.Time `json:"mintedAt,omitempty"`
	BlockNumber         *int64     `json:"blockNumber,omitempty"`
}

// Lock is a bank-certified hold against which a minting authorization may
// later be issued. Version is a monotonic counter used for compare-and-swap
// writes; concurrent webhook callbacks for the same lock retry on conflict.
type Lock struct {
	ID      string     `json:"id"`
	LockID  string     `json:"lockId"`
	Status  LockStatus `json:"status"`
	Version int64      `json:"-"`

	LockDetails LockDetails `json:"lockDetails"`
	BankInfo    BankInfo    `json:"bankInfo"`
	Blockchain  Blockchain  `json:"blockchain"`

	AuthorizationCode      *string    `json:"authorizationCode,omitempty"`
	AuthorizedAt           *time.Time `json:"authorizedAt,omitempty"`
	AuthorizedBy           *string    `json:"authorizedBy,omitempty"`
	AuthorizationExpiresAt *time.Time `json:"authorizationExpiresAt,omitempty"`

	LemxApprovalReceived bool       `json:"lemxApprovalReceived"`
	ApprovedByLemxAt     *time.Time `json:"approvedByLemxAt,omitempty"`
	ApprovedByLemx       *string    `json:"approvedByLemx,omitempty"`

	RejectedByLemxAt *time.Time `json:"rejectedByLemxAt,omitempty"`
	RejectedByLemx   *string    `json:"rejectedByLemx,omitempty"`
	RejectionReason  *string    `json:"rejectionReason,omitempty"`

	MintingStarted   bool       `json:"mintingStarted"`
	MintingStartedAt *time.Time `json:"mintingStartedAt,omitempty"`

	MintTxHash          *string        `json:"mintTxHash,omitempty"`
	PublicationCode     *string        `json:"publicationCode,omitempty"`
	LusdContractAddress *string        `json:"lusdContractAddress,omitempty"`
	MintedAt            *time.Time     `json:"mintedAt,omitempty"`
	BlockNumber         *int64         `json:"blockNumber,omitempty"`
	GasUsed             *string        `json:"gasUsed,omitempty"`
	MintedBy            *string        `json:"mintedBy,omitempty"`
	MintedDetails       *MintedDetails `json:"mintedDetails,omitempty"`

	MintError   *string    `json:"mintError,omitempty"`
	FailedAt    *time.Time `json:"failedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	CreatedAt time.Time `json:"timestamp"`
}

// NewLock creates a lock in pending_authorization. An empty lockID gets a
// server-generated one.
func NewLock(id, lockID string, details LockDetails, bank BankInfo, chain Blockchain) (*Lock, error) {
	if id == "" {
		return nil, errors.New("lock record ID is required")
	}
	if lockID == "" {
		lockID = NewLockID()
	}
	if details.Currency == "" {
		details.Currency = "USD"
	}
	if details.Amount == "" {
		details.Amount = "0"
	}
	if details.Expiry.IsZero() {
		details.Expiry = time.Now().Add(24 * time.Hour)
	}

	return &Lock{
		ID:          id,
		LockID:      lockID,
		Status:      StatusPendingAuthorization,
		Version:     1,
		LockDetails: details,
		BankInfo:    bank,
		Blockchain:  chain,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// NewLockID generates a caller-visible lock identifier.
func NewLockID() string {
	buf := make([]byte, 3)
	rand.Read(buf) //nolint:errcheck // crypto/rand.Read never fails on supported platforms
	return fmt.Sprintf("LOCK-%s-%s",
		strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36)),
		strings.ToUpper(hex.EncodeToString(buf)),
	)
}

// Authorize records the authorization code issued by the peer. The effect is
// applied regardless of the current status: the peer is authoritative for
// this edge and duplicate deliveries simply overwrite the same fields.
func (l *Lock) Authorize(code, by string, at, expiresAt time.Time) {
	l.Status = StatusAuthorized
	l.AuthorizationCode = &code
	l.AuthorizedAt = &at
	l.AuthorizedBy = &by
	l.AuthorizationExpiresAt = &expiresAt
}

// ApproveByLemx marks the lock as adjudicated by the peer. Once set, no
// further lock.created dispatch is sent for this lock.
func (l *Lock) ApproveByLemx(by string, at time.Time) {
	l.Status = StatusApprovedByLemx
	l.ApprovedByLemxAt = &at
	l.ApprovedByLemx = &by
	l.LemxApprovalReceived = true
}

func (l *Lock) RejectByLemx(by, reason string, at time.Time) {
	l.Status = StatusRejectedByLemx
	l.RejectedByLemxAt = &at
	l.RejectedByLemx = &by
	l.RejectionReason = &reason
}

// StartMinting flags that the peer began minting. Status is unchanged.
func (l *Lock) StartMinting(at time.Time) {
	l.MintingStarted = true
	l.MintingStartedAt = &at
}

// CompleteMint applies a mint.completed event. A mint_failed lock is allowed
// to move to minted here: the peer retries after failure and the completed
// event wins.
func (l *Lock) CompleteMint(d MintedDetails, gasUsed string) {
	l.Status = StatusMinted
	l.MintTxHash = &d.TxHash
	l.PublicationCode = &d.PublicationCode
	l.LusdContractAddress = &d.LusdContractAddress
	l.MintedAt = d.MintedAt
	l.BlockNumber = d.BlockNumber
	l.MintedBy = &d.MintedBy
	if gasUsed != "" {
		l.GasUsed = &gasUsed
	}
	details := d
	l.MintedDetails = &details
}

func (l *Lock) FailMint(mintErr string, at time.Time) {
	l.Status = StatusMintFailed
	l.MintError = &mintErr
	l.FailedAt = &at
}

// CompleteManually applies the complete-minting API call made by an operator
// after an out-of-band mint.
func (l *Lock) CompleteManually(txHash, contractAddress string, at time.Time) {
	l.Status = StatusMinted
	l.MintTxHash = &txHash
	l.LusdContractAddress = &contractAddress
	l.CompletedAt = &at
}

// TerminalForDispatch reports whether the peer has already adjudicated this
// lock, in which case lock.created must not be sent again.
func (l *Lock) TerminalForDispatch() bool {
	if l.LemxApprovalReceived {
		return true
	}
	switch l.Status {
	case StatusApprovedByLemx, StatusRejectedByLemx, StatusMinted, StatusMintFailed:
		return true
	default:
		return false
	}
}
