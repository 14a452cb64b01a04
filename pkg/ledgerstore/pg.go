package ledgerstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/lumenpay/credits-middleware/pkg/ledger"
)

// Not-found sentinels live in pkg/ledger so callers of the store
// interfaces can match them without importing this package.
var (
	ErrUserNotFound    = ledger.ErrUserNotFound
	ErrPaymentNotFound = ledger.ErrPaymentNotFound
	ErrDepositNotFound = ledger.ErrDepositNotFound
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the ledger store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

// normalizeAddr lowercases hex addresses so lookups are case-insensitive
// regardless of how the RPC node checksums them.
func normalizeAddr(addr string) string {
	return strings.ToLower(addr)
}

// =============================================================================
// Watcher cursor
// =============================================================================

// GetCursor returns the last fully scanned block for a watcher key.
// The second return value is false when no cursor exists yet.
func (s *pgStore) GetCursor(ctx context.Context, chainID int64, receiver string) (int64, bool, error) {
	dao := new(WatcherCursorDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("chain_id = ?", chainID).
		Where("receiver_address = ?", normalizeAddr(receiver)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get cursor: %w", err)
	}
	return dao.LastBlock, true, nil
}

// SetCursor upserts the cursor. GREATEST keeps the value monotonic even if
// a stale writer ever raced the row.
func (s *pgStore) SetCursor(ctx context.Context, chainID int64, receiver string, height int64) error {
	dao := &WatcherCursorDao{
		ChainID:         chainID,
		ReceiverAddress: normalizeAddr(receiver),
		LastBlock:       height,
	}
	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (chain_id, receiver_address) DO UPDATE").
		Set("last_block = GREATEST(wc.last_block, EXCLUDED.last_block)").
		Set("updated_at = now()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set cursor: %w", err)
	}
	return nil
}

// =============================================================================
// Deposits
// =============================================================================

// UpsertDeposit inserts a newly observed transfer or, when the
// (tx_hash, log_index) identity already exists, updates only the mutable
// fields. Retries and replays therefore never duplicate a row.
func (s *pgStore) UpsertDeposit(ctx context.Context, dep *ledger.Deposit) error {
	dao := toDepositDao(dep)
	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (tx_hash, log_index) DO UPDATE").
		Set("confirmations = EXCLUDED.confirmations").
		Set("status = EXCLUDED.status").
		Set("updated_at = now()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert deposit: %w", err)
	}
	return nil
}

// GetDeposit retrieves one deposit by its identity.
func (s *pgStore) GetDeposit(ctx context.Context, txHash string, logIndex int64) (*ledger.Deposit, error) {
	dao := new(DepositDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("tx_hash = ?", txHash).
		Where("log_index = ?", logIndex).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDepositNotFound
		}
		return nil, fmt.Errorf("failed to get deposit: %w", err)
	}
	return toDeposit(dao), nil
}

// ListPendingDeposits returns pending deposits whose block is at or below
// maxBlock, oldest first.
func (s *pgStore) ListPendingDeposits(ctx context.Context, maxBlock int64) ([]*ledger.Deposit, error) {
	var daos []DepositDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("status = ?", string(ledger.DepositStatusPending)).
		Where("block_number <= ?", maxBlock).
		Order("block_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deposits: %w", err)
	}
	deposits := make([]*ledger.Deposit, len(daos))
	for i := range daos {
		deposits[i] = toDeposit(&daos[i])
	}
	return deposits, nil
}

// UpdateDepositState writes back a recomputed confirmation count and status.
func (s *pgStore) UpdateDepositState(ctx context.Context, txHash string, logIndex int64, confirmations int64, status ledger.DepositStatus) error {
	res, err := s.db.NewUpdate().
		Model((*DepositDao)(nil)).
		Set("confirmations = ?", confirmations).
		Set("status = ?", string(status)).
		Set("updated_at = ?", time.Now()).
		Where("tx_hash = ?", txHash).
		Where("log_index = ?", logIndex).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update deposit state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDepositNotFound
	}
	return nil
}

// ListDeposits retrieves the most recently observed deposits.
func (s *pgStore) ListDeposits(ctx context.Context, limit int) ([]*ledger.Deposit, error) {
	var daos []DepositDao
	err := s.db.NewSelect().
		Model(&daos).
		Order("observed_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list deposits: %w", err)
	}
	deposits := make([]*ledger.Deposit, len(daos))
	for i := range daos {
		deposits[i] = toDeposit(&daos[i])
	}
	return deposits, nil
}

// =============================================================================
// Payments
// =============================================================================

// GetPayment retrieves a payment by its canonical id.
func (s *pgStore) GetPayment(ctx context.Context, id string) (*ledger.Payment, error) {
	dao := new(PaymentDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return toPayment(dao), nil
}

// UpsertPayment records a payment or, when its canonical id is already
// known, updates status, payload snapshot and credits in place.
func (s *pgStore) UpsertPayment(ctx context.Context, p *ledger.Payment) error {
	dao := toPaymentDao(p)
	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("raw_payload = EXCLUDED.raw_payload").
		Set("credits = EXCLUDED.credits").
		Set("updated_at = now()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert payment: %w", err)
	}
	return nil
}

// ListPayments retrieves the most recent payments.
func (s *pgStore) ListPayments(ctx context.Context, limit int) ([]*ledger.Payment, error) {
	var daos []PaymentDao
	err := s.db.NewSelect().
		Model(&daos).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	payments := make([]*ledger.Payment, len(daos))
	for i := range daos {
		payments[i] = toPayment(&daos[i])
	}
	return payments, nil
}

// =============================================================================
// Credit grants
// =============================================================================

// GrantCredits atomically appends one ledger entry and increments the
// user's balance, within a single transaction. When an entry tagged with
// referenceID already exists the call is a no-op returning (nil, nil):
// re-delivery of the triggering event must never double-credit.
func (s *pgStore) GrantCredits(ctx context.Context, userID string, delta int64, reason, referenceID string) (*ledger.Entry, error) {
	var entry *ledger.Entry

	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*CreditLedgerDao)(nil)).
			Where("reference_id = ?", referenceID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("failed to check grant reference: %w", err)
		}
		if exists {
			return nil // already granted, skip
		}

		var balance int64
		err = tx.NewUpdate().
			Model((*UserDao)(nil)).
			Set("credits = credits + ?", delta).
			Set("updated_at = now()").
			Where("id = ?", userID).
			Returning("credits").
			Scan(ctx, &balance)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("failed to update balance: %w", err)
		}

		dao := &CreditLedgerDao{
			ID:          uuid.NewString(),
			UserID:      userID,
			Delta:       delta,
			Balance:     balance,
			Reason:      reason,
			ReferenceID: referenceID,
		}
		if _, err := tx.NewInsert().Model(dao).Exec(ctx); err != nil {
			return fmt.Errorf("failed to append ledger entry: %w", err)
		}

		entry = toEntry(dao)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListEntries returns a user's ledger entries, newest first.
func (s *pgStore) ListEntries(ctx context.Context, userID string) ([]*ledger.Entry, error) {
	var daos []CreditLedgerDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	entries := make([]*ledger.Entry, len(daos))
	for i := range daos {
		entries[i] = toEntry(&daos[i])
	}
	return entries, nil
}

// =============================================================================
// Users
// =============================================================================

// CreateUser inserts a new credit balance owner.
func (s *pgStore) CreateUser(ctx context.Context, usr *ledger.User) error {
	dao := toUserDao(usr)
	if dao.WalletAddress != nil {
		normalized := normalizeAddr(*dao.WalletAddress)
		dao.WalletAddress = &normalized
	}
	if _, err := s.db.NewInsert().Model(dao).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by id.
func (s *pgStore) GetUser(ctx context.Context, id string) (*ledger.User, error) {
	dao := new(UserDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return toUser(dao), nil
}

// GetUserByWallet resolves a user from an on-chain sender address.
func (s *pgStore) GetUserByWallet(ctx context.Context, addr string) (*ledger.User, error) {
	dao := new(UserDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("wallet_address = ?", normalizeAddr(addr)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by wallet: %w", err)
	}
	return toUser(dao), nil
}
