// Package scanner implements the resumable deposit confirmation pipeline:
// a polling loop that detects ERC-20 transfers to the receiving address,
// tracks their confirmation depth and flips them to confirmed exactly once.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lumenpay/credits-middleware/internal/metrics"
	"github.com/lumenpay/credits-middleware/pkg/chain"
	"github.com/lumenpay/credits-middleware/pkg/ledger"
)

// ChainClient defines the interface for chain RPC interactions
type ChainClient interface {
	HeadBlock(ctx context.Context) (uint64, error)
	FilterTransfers(ctx context.Context, token common.Address, fromBlock, toBlock uint64, receiver common.Address) ([]chain.TransferLog, error)
}

// DepositStore defines the interface for watcher database operations
type DepositStore interface {
	GetCursor(ctx context.Context, chainID int64, receiver string) (int64, bool, error)
	SetCursor(ctx context.Context, chainID int64, receiver string, height int64) error
	GetDeposit(ctx context.Context, txHash string, logIndex int64) (*ledger.Deposit, error)
	UpsertDeposit(ctx context.Context, dep *ledger.Deposit) error
	ListPendingDeposits(ctx context.Context, maxBlock int64) ([]*ledger.Deposit, error)
	UpdateDepositState(ctx context.Context, txHash string, logIndex int64, confirmations int64, status ledger.DepositStatus) error
}

// ConfirmHook is invoked when a deposit transitions to confirmed. It must
// be idempotent: crash/restart between the status write and the hook can
// replay the call.
type ConfirmHook func(ctx context.Context, dep *ledger.Deposit) error

// TrackedToken is one token contract watched for inbound transfers.
type TrackedToken struct {
	Address  string
	Symbol   string
	Decimals int
}

// Config holds the scanner settings for one (chain, receiver) pair.
type Config struct {
	ChainID          int64
	Network          string
	ReceiverAddress  string
	Tokens           []TrackedToken
	MinConfirmations int
	PollInterval     time.Duration
	// StartBlock is the first block to scan when no cursor exists yet.
	// Zero means no historical backfill: start at the current head.
	StartBlock uint64
	// RPCTimeout bounds each individual chain RPC call so a stalled node
	// fails the cycle instead of starving it.
	RPCTimeout time.Duration
}

// Engine drives the poll cycles for one chain/receiver pair. It is the
// only writer of the watcher cursor and of deposit records.
type Engine struct {
	cfg    Config
	client ChainClient
	store  DepositStore
	logger *zap.Logger

	onConfirm ConfirmHook

	running atomic.Bool
	ready   atomic.Bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewEngine validates the configuration and creates a scanner engine.
// A watcher with nothing to watch is a deployment mistake, so zero tracked
// tokens or a missing receiver address fails here rather than at runtime.
func NewEngine(cfg Config, client ChainClient, store DepositStore, logger *zap.Logger) (*Engine, error) {
	if len(cfg.Tokens) == 0 {
		return nil, errors.New("no tracked token addresses configured")
	}
	if cfg.ReceiverAddress == "" {
		return nil, errors.New("receiver address is required")
	}
	if cfg.MinConfirmations <= 0 {
		return nil, errors.New("min confirmations must be positive")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.RPCTimeout <= 0 {
		cfg.RPCTimeout = 30 * time.Second
	}
	return &Engine{
		cfg:    cfg,
		client: client,
		store:  store,
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

// SetConfirmHook registers the callback fired on pending->confirmed
// transitions. Must be called before Start.
func (e *Engine) SetConfirmHook(hook ConfirmHook) {
	e.onConfirm = hook
}

// IsReady reports whether at least one full cycle has completed.
func (e *Engine) IsReady() bool {
	return e.ready.Load()
}

// Start launches the poll loop.
func (e *Engine) Start(ctx context.Context) {
	e.logger.Info("Starting deposit scanner",
		zap.Int64("chain_id", e.cfg.ChainID),
		zap.String("receiver", e.cfg.ReceiverAddress),
		zap.Int("tokens", len(e.cfg.Tokens)),
		zap.Duration("poll_interval", e.cfg.PollInterval))

	e.wg.Add(1)
	go e.loop(ctx)
}

// Stop stops the poll loop and waits for an in-flight cycle to finish.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
	e.logger.Info("Deposit scanner stopped")
}

func (e *Engine) loop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	// Run one cycle immediately instead of waiting a full interval.
	e.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick runs one cycle unless a previous one is still in flight; an
// overlapping tick is dropped, not queued, so a slow RPC node throttles
// the effective poll rate instead of stacking scans.
func (e *Engine) tick(ctx context.Context) {
	if !e.running.CompareAndSwap(false, true) {
		e.logger.Debug("Scan cycle still in flight, skipping tick")
		return
	}
	defer e.running.Store(false)

	if err := e.runCycle(ctx); err != nil {
		metrics.ScanCyclesTotal.WithLabelValues("failed").Inc()
		e.logger.Error("Scan cycle failed", zap.Error(err))
		return
	}
	metrics.ScanCyclesTotal.WithLabelValues("ok").Inc()
	e.ready.Store(true)
}

// runCycle executes one full scan: resolve head, scan new transfer logs,
// advance the cursor, then reconcile pending deposits against the head.
// Any error aborts before the cursor is advanced, so the next cycle
// rescans the same range.
func (e *Engine) runCycle(ctx context.Context) error {
	head, err := e.headBlock(ctx)
	if err != nil {
		return fmt.Errorf("resolve head block: %w", err)
	}
	metrics.LastScannedBlock.WithLabelValues(e.cfg.Network).Set(float64(head))

	fromBlock, err := e.resolveFromBlock(ctx, head)
	if err != nil {
		return err
	}

	if fromBlock <= head {
		if err := e.scanRange(ctx, fromBlock, head); err != nil {
			return err
		}
		if err := e.store.SetCursor(ctx, e.cfg.ChainID, e.cfg.ReceiverAddress, int64(head)); err != nil {
			return fmt.Errorf("advance cursor: %w", err)
		}
	}

	return e.reconcilePending(ctx, head)
}

func (e *Engine) headBlock(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RPCTimeout)
	defer cancel()
	return e.client.HeadBlock(ctx)
}

// resolveFromBlock picks the first block of the scan range: cursor+1 when
// a cursor exists, else the configured start block, else the current head.
func (e *Engine) resolveFromBlock(ctx context.Context, head uint64) (uint64, error) {
	cursor, ok, err := e.store.GetCursor(ctx, e.cfg.ChainID, e.cfg.ReceiverAddress)
	if err != nil {
		return 0, fmt.Errorf("load cursor: %w", err)
	}
	if ok {
		return uint64(cursor) + 1, nil
	}
	if e.cfg.StartBlock > 0 {
		return e.cfg.StartBlock, nil
	}
	return head, nil
}

// scanRange fetches and records transfer logs for every tracked token.
func (e *Engine) scanRange(ctx context.Context, fromBlock, head uint64) error {
	receiver := common.HexToAddress(e.cfg.ReceiverAddress)

	for _, token := range e.cfg.Tokens {
		logs, err := e.filterTransfers(ctx, common.HexToAddress(token.Address), fromBlock, head, receiver)
		if err != nil {
			return fmt.Errorf("scan token %s [%d, %d]: %w", token.Symbol, fromBlock, head, err)
		}

		for i := range logs {
			if err := e.recordTransfer(ctx, token, &logs[i], head); err != nil {
				return fmt.Errorf("record transfer %s: %w",
					ledger.DepositEventID(logs[i].TxHash.Hex(), int64(logs[i].LogIndex)), err)
			}
		}

		if len(logs) > 0 {
			metrics.TransferLogsObserved.WithLabelValues(token.Symbol).Add(float64(len(logs)))
			e.logger.Info("Observed transfer logs",
				zap.String("token", token.Symbol),
				zap.Int("count", len(logs)),
				zap.Uint64("from_block", fromBlock),
				zap.Uint64("to_block", head))
		}
	}
	return nil
}

func (e *Engine) filterTransfers(ctx context.Context, token common.Address, fromBlock, toBlock uint64, receiver common.Address) ([]chain.TransferLog, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RPCTimeout)
	defer cancel()
	return e.client.FilterTransfers(ctx, token, fromBlock, toBlock, receiver)
}

// recordTransfer upserts one observed transfer log. The (tx_hash, log_index)
// identity makes replays idempotent; only confirmations/status ever change
// for a known log. The confirm hook fires when a log is confirmed on first
// observation or crosses the threshold on re-observation.
func (e *Engine) recordTransfer(ctx context.Context, token TrackedToken, lg *chain.TransferLog, head uint64) error {
	confirmations := Confirmations(lg.BlockNumber, head)
	status := StatusFor(confirmations, e.cfg.MinConfirmations)

	existing, err := e.store.GetDeposit(ctx, lg.TxHash.Hex(), int64(lg.LogIndex))
	if err != nil && !errors.Is(err, ledger.ErrDepositNotFound) {
		return err
	}
	if existing != nil && existing.Status == ledger.DepositStatusConfirmed {
		// Identity is immutable and confirmed never reverts; nothing to do.
		return nil
	}

	dep := &ledger.Deposit{
		TxHash:        lg.TxHash.Hex(),
		LogIndex:      int64(lg.LogIndex),
		ChainID:       e.cfg.ChainID,
		Network:       e.cfg.Network,
		TokenSymbol:   token.Symbol,
		TokenAddress:  token.Address,
		Sender:        lg.From.Hex(),
		Receiver:      lg.To.Hex(),
		AmountRaw:     lg.Amount.String(),
		Amount:        decimal.NewFromBigInt(lg.Amount, -int32(token.Decimals)).String(),
		BlockNumber:   int64(lg.BlockNumber),
		Confirmations: confirmations,
		Status:        status,
	}

	// Hook before the status write: if the process dies in between, the
	// next cycle re-observes the log and the grant dedups to a no-op.
	if status == ledger.DepositStatusConfirmed {
		if err := e.fireConfirmHook(ctx, dep); err != nil {
			return err
		}
		metrics.DepositsConfirmed.WithLabelValues(token.Symbol).Inc()
	}

	return e.store.UpsertDeposit(ctx, dep)
}

// reconcilePending recomputes confirmation counts of pending deposits
// against the new head. This is what flips a deposit to confirmed purely
// from elapsed block time, with no new logs in the cycle.
func (e *Engine) reconcilePending(ctx context.Context, head uint64) error {
	pending, err := e.store.ListPendingDeposits(ctx, int64(head))
	if err != nil {
		return fmt.Errorf("list pending deposits: %w", err)
	}

	for _, dep := range pending {
		confirmations := Confirmations(uint64(dep.BlockNumber), head)
		status := StatusFor(confirmations, e.cfg.MinConfirmations)
		if confirmations == dep.Confirmations && status == dep.Status {
			continue
		}

		if status == ledger.DepositStatusConfirmed {
			dep.Confirmations = confirmations
			dep.Status = status
			// Hook first, durable write second: a crash in between leaves
			// the deposit pending and the retried grant dedups.
			if err := e.fireConfirmHook(ctx, dep); err != nil {
				return err
			}
			metrics.DepositsConfirmed.WithLabelValues(dep.TokenSymbol).Inc()
			e.logger.Info("Deposit confirmed",
				zap.String("tx_hash", dep.TxHash),
				zap.Int64("log_index", dep.LogIndex),
				zap.Int64("confirmations", confirmations))
		}

		if err := e.store.UpdateDepositState(ctx, dep.TxHash, dep.LogIndex, confirmations, status); err != nil {
			return fmt.Errorf("update deposit %s: %w", dep.EventID(), err)
		}
	}
	return nil
}

// fireConfirmHook invokes the confirmation callback, if any. Hook errors
// fail the cycle so the idempotent grant is retried next tick.
func (e *Engine) fireConfirmHook(ctx context.Context, dep *ledger.Deposit) error {
	if e.onConfirm == nil {
		return nil
	}
	if err := e.onConfirm(ctx, dep); err != nil {
		return fmt.Errorf("confirm hook for %s: %w", dep.EventID(), err)
	}
	return nil
}
