// Package ledger defines the domain types shared by the chain scanner
// and the payment settlement service.
package ledger

import (
	"errors"
	"time"
)

// Not-found sentinels shared by store implementations and their callers.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrDepositNotFound = errors.New("deposit not found")
)

// DepositStatus represents the settlement state of an on-chain deposit
type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "pending"
	DepositStatusConfirmed DepositStatus = "confirmed"
)

// PaymentStatus represents the state of an external payment
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Deposit is one observed ERC-20 transfer to the receiving address.
// Identity is (TxHash, LogIndex); only Confirmations, Status and
// UpdatedAt change after creation.
type Deposit struct {
	TxHash        string
	LogIndex      int64
	ChainID       int64
	Network       string
	TokenSymbol   string
	TokenAddress  string
	Sender        string
	Receiver      string
	AmountRaw     string
	Amount        string
	BlockNumber   int64
	Confirmations int64
	Status        DepositStatus
	ObservedAt    time.Time
	UpdatedAt     time.Time
}

// EventID returns the stable identifier used to deduplicate a deposit
// across scan cycles and to tag its credit grant.
func (d *Deposit) EventID() string {
	return DepositEventID(d.TxHash, d.LogIndex)
}

// Payment is one external payment event keyed by its provider-namespaced
// id. A second observation of the same id updates the record in place.
type Payment struct {
	ID         string
	UserID     string
	Provider   string
	Status     PaymentStatus
	Amount     string
	Currency   string
	Credits    int64
	RawPayload []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Entry is one immutable credit ledger mutation. Balance holds the
// user's balance after applying Delta.
type Entry struct {
	ID          string
	UserID      string
	Delta       int64
	Balance     int64
	Reason      string
	ReferenceID string
	CreatedAt   time.Time
}

// Reason codes recorded on ledger entries.
const (
	ReasonCardPurchase       = "card_purchase"
	ReasonStablecoinPurchase = "stablecoin_purchase"
	ReasonChainDeposit       = "chain_deposit"
)

// User is a credit balance owner. WalletAddress links on-chain deposit
// senders back to an account.
type User struct {
	ID            string
	WalletAddress string
	Credits       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
