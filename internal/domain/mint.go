package domain

import "time"

// MintRequestStatus is the state of an issued authorization code.
type MintRequestStatus string

const (
	MintRequestPending   MintRequestStatus = "pending"
	MintRequestCompleted MintRequestStatus = "completed"
)

// MintRequest tracks one issued authorization code. Unique key:
// AuthorizationCode; creating a second request for the same code is a no-op.
type MintRequest struct {
	ID                string            `json:"id"`
	AuthorizationCode string            `json:"authorizationCode"`
	LockID            string            `json:"lockId"`
	RequestedAmount   string            `json:"requestedAmount"`
	TokenSymbol       string            `json:"tokenSymbol"`
	Beneficiary       string            `json:"beneficiary"`
	Status            MintRequestStatus `json:"status"`
	MintTxHash        *string           `json:"mintTxHash,omitempty"`
	PublicationCode   *string           `json:"publicationCode,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	ExpiresAt         time.Time         `json:"expiresAt"`
	CompletedAt       *time.Time        `json:"completedAt,omitempty"`
	SourceEvent       string            `json:"sourceEvent"`
}

// CompletedMint is one publicly recorded mint. Insertion is a no-op when the
// publication code, tx hash or lock id already matches an existing record.
type CompletedMint struct {
	ID                  string     `json:"id"`
	AuthorizationCode   string     `json:"authorizationCode"`
	PublicationCode     string     `json:"publicationCode"`
	TxHash              string     `json:"txHash"`
	BlockNumber         *int64     `json:"blockNumber,omitempty"`
	MintedAmount        string     `json:"mintedAmount"`
	MintedAt            *time.Time `json:"mintedAt,omitempty"`
	LusdContractAddress string     `json:"lusdContractAddress"`
	GasUsed             *string    `json:"gasUsed,omitempty"`
	MintedBy            string     `json:"mintedBy"`
	LockID              string     `json:"lockId"`
	SourceOfFunds       string     `json:"sourceOfFunds,omitempty"`
	BankName            string     `json:"bankName,omitempty"`
	Currency            string     `json:"currency"`
	Beneficiary         string     `json:"beneficiary,omitempty"`
	SourceEvent         string     `json:"sourceEvent"`
	SyncedAt            *time.Time `json:"syncedAt,omitempty"`
	CreatedAt           time.Time  `json:"-"`
}
