package ledgerstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/lumenpay/credits-middleware/pkg/ledger"
)

// UserDao is a data access object that maps directly to the 'users' table in PostgreSQL.
type UserDao struct {
	bun.BaseModel `bun:"table:users,alias:u"`
	ID            string    `bun:"id,pk,type:varchar(64)"`
	WalletAddress *string   `bun:"wallet_address,unique,type:varchar(42)"`
	Credits       int64     `bun:"credits,notnull,default:0"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

// DepositDao is a data access object that maps directly to the 'deposits' table in PostgreSQL.
// The (tx_hash, log_index) primary key is what makes re-observing the same
// transfer log an update instead of a duplicate row.
type DepositDao struct {
	bun.BaseModel `bun:"table:deposits,alias:d"`
	TxHash        string    `bun:"tx_hash,pk,type:varchar(66)"`
	LogIndex      int64     `bun:"log_index,pk"`
	ChainID       int64     `bun:"chain_id,notnull"`
	Network       string    `bun:"network,notnull,type:varchar(32)"`
	TokenSymbol   string    `bun:"token_symbol,notnull,type:varchar(16)"`
	TokenAddress  string    `bun:"token_address,notnull,type:varchar(42)"`
	Sender        string    `bun:"sender,notnull,type:varchar(42)"`
	Receiver      string    `bun:"receiver,notnull,type:varchar(42)"`
	AmountRaw     string    `bun:"amount_raw,notnull,type:numeric(78,0)"`
	Amount        string    `bun:"amount,notnull,type:varchar(64)"`
	BlockNumber   int64     `bun:"block_number,notnull"`
	Confirmations int64     `bun:"confirmations,notnull,default:0"`
	Status        string    `bun:"status,notnull,type:varchar(16)"`
	ObservedAt    time.Time `bun:"observed_at,nullzero,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

// PaymentDao is a data access object that maps directly to the 'payments' table in PostgreSQL.
type PaymentDao struct {
	bun.BaseModel `bun:"table:payments,alias:p"`
	ID            string    `bun:"id,pk,type:varchar(191)"`
	UserID        string    `bun:"user_id,notnull,type:varchar(64)"`
	Provider      string    `bun:"provider,notnull,type:varchar(32)"`
	Status        string    `bun:"status,notnull,type:varchar(16)"`
	Amount        string    `bun:"amount,notnull,type:varchar(64)"`
	Currency      string    `bun:"currency,notnull,type:varchar(16)"`
	Credits       int64     `bun:"credits,notnull,default:0"`
	RawPayload    []byte    `bun:"raw_payload,type:jsonb"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

// CreditLedgerDao is a data access object that maps directly to the 'credit_ledger' table in PostgreSQL.
// reference_id carries a unique constraint so the database itself rejects a
// second grant for the same external event.
type CreditLedgerDao struct {
	bun.BaseModel `bun:"table:credit_ledger,alias:cl"`
	ID            string    `bun:"id,pk,type:varchar(36)"`
	UserID        string    `bun:"user_id,notnull,type:varchar(64)"`
	Delta         int64     `bun:"delta,notnull"`
	Balance       int64     `bun:"balance,notnull"`
	Reason        string    `bun:"reason,notnull,type:varchar(32)"`
	ReferenceID   string    `bun:"reference_id,unique,notnull,type:varchar(191)"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

// WatcherCursorDao is a data access object that maps directly to the 'watcher_cursor' table in PostgreSQL.
type WatcherCursorDao struct {
	bun.BaseModel   `bun:"table:watcher_cursor,alias:wc"`
	ChainID         int64     `bun:"chain_id,pk"`
	ReceiverAddress string    `bun:"receiver_address,pk,type:varchar(42)"`
	LastBlock       int64     `bun:"last_block,notnull"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

func toDepositDao(dep *ledger.Deposit) *DepositDao {
	return &DepositDao{
		TxHash:        dep.TxHash,
		LogIndex:      dep.LogIndex,
		ChainID:       dep.ChainID,
		Network:       dep.Network,
		TokenSymbol:   dep.TokenSymbol,
		TokenAddress:  dep.TokenAddress,
		Sender:        dep.Sender,
		Receiver:      dep.Receiver,
		AmountRaw:     dep.AmountRaw,
		Amount:        dep.Amount,
		BlockNumber:   dep.BlockNumber,
		Confirmations: dep.Confirmations,
		Status:        string(dep.Status),
	}
}

func toDeposit(dao *DepositDao) *ledger.Deposit {
	return &ledger.Deposit{
		TxHash:        dao.TxHash,
		LogIndex:      dao.LogIndex,
		ChainID:       dao.ChainID,
		Network:       dao.Network,
		TokenSymbol:   dao.TokenSymbol,
		TokenAddress:  dao.TokenAddress,
		Sender:        dao.Sender,
		Receiver:      dao.Receiver,
		AmountRaw:     dao.AmountRaw,
		Amount:        dao.Amount,
		BlockNumber:   dao.BlockNumber,
		Confirmations: dao.Confirmations,
		Status:        ledger.DepositStatus(dao.Status),
		ObservedAt:    dao.ObservedAt,
		UpdatedAt:     dao.UpdatedAt,
	}
}

func toPaymentDao(p *ledger.Payment) *PaymentDao {
	return &PaymentDao{
		ID:         p.ID,
		UserID:     p.UserID,
		Provider:   p.Provider,
		Status:     string(p.Status),
		Amount:     p.Amount,
		Currency:   p.Currency,
		Credits:    p.Credits,
		RawPayload: p.RawPayload,
	}
}

func toPayment(dao *PaymentDao) *ledger.Payment {
	return &ledger.Payment{
		ID:         dao.ID,
		UserID:     dao.UserID,
		Provider:   dao.Provider,
		Status:     ledger.PaymentStatus(dao.Status),
		Amount:     dao.Amount,
		Currency:   dao.Currency,
		Credits:    dao.Credits,
		RawPayload: dao.RawPayload,
		CreatedAt:  dao.CreatedAt,
		UpdatedAt:  dao.UpdatedAt,
	}
}

func toUserDao(usr *ledger.User) *UserDao {
	dao := &UserDao{
		ID:      usr.ID,
		Credits: usr.Credits,
	}
	if usr.WalletAddress != "" {
		dao.WalletAddress = &usr.WalletAddress
	}
	return dao
}

func toUser(dao *UserDao) *ledger.User {
	usr := &ledger.User{
		ID:        dao.ID,
		Credits:   dao.Credits,
		CreatedAt: dao.CreatedAt,
		UpdatedAt: dao.UpdatedAt,
	}
	if dao.WalletAddress != nil {
		usr.WalletAddress = *dao.WalletAddress
	}
	return usr
}

func toEntry(dao *CreditLedgerDao) *ledger.Entry {
	return &ledger.Entry{
		ID:          dao.ID,
		UserID:      dao.UserID,
		Delta:       dao.Delta,
		Balance:     dao.Balance,
		Reason:      dao.Reason,
		ReferenceID: dao.ReferenceID,
		CreatedAt:   dao.CreatedAt,
	}
}
