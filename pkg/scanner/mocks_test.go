package scanner

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lumenpay/credits-middleware/pkg/chain"
	"github.com/lumenpay/credits-middleware/pkg/ledger"
)

// MockChainClient is a mock implementation of ChainClient
type MockChainClient struct {
	HeadBlockFunc       func(ctx context.Context) (uint64, error)
	FilterTransfersFunc func(ctx context.Context, token common.Address, fromBlock, toBlock uint64, receiver common.Address) ([]chain.TransferLog, error)
}

func (m *MockChainClient) HeadBlock(ctx context.Context) (uint64, error) {
	if m.HeadBlockFunc != nil {
		return m.HeadBlockFunc(ctx)
	}
	return 0, nil
}

func (m *MockChainClient) FilterTransfers(ctx context.Context, token common.Address, fromBlock, toBlock uint64, receiver common.Address) ([]chain.TransferLog, error) {
	if m.FilterTransfersFunc != nil {
		return m.FilterTransfersFunc(ctx, token, fromBlock, toBlock, receiver)
	}
	return nil, nil
}

// MockDepositStore is a mock implementation of DepositStore
type MockDepositStore struct {
	GetCursorFunc           func(ctx context.Context, chainID int64, receiver string) (int64, bool, error)
	SetCursorFunc           func(ctx context.Context, chainID int64, receiver string, height int64) error
	GetDepositFunc          func(ctx context.Context, txHash string, logIndex int64) (*ledger.Deposit, error)
	UpsertDepositFunc       func(ctx context.Context, dep *ledger.Deposit) error
	ListPendingDepositsFunc func(ctx context.Context, maxBlock int64) ([]*ledger.Deposit, error)
	UpdateDepositStateFunc  func(ctx context.Context, txHash string, logIndex int64, confirmations int64, status ledger.DepositStatus) error
}

func (m *MockDepositStore) GetCursor(ctx context.Context, chainID int64, receiver string) (int64, bool, error) {
	if m.GetCursorFunc != nil {
		return m.GetCursorFunc(ctx, chainID, receiver)
	}
	return 0, false, nil
}

func (m *MockDepositStore) SetCursor(ctx context.Context, chainID int64, receiver string, height int64) error {
	if m.SetCursorFunc != nil {
		return m.SetCursorFunc(ctx, chainID, receiver, height)
	}
	return nil
}

func (m *MockDepositStore) GetDeposit(ctx context.Context, txHash string, logIndex int64) (*ledger.Deposit, error) {
	if m.GetDepositFunc != nil {
		return m.GetDepositFunc(ctx, txHash, logIndex)
	}
	return nil, ledger.ErrDepositNotFound
}

func (m *MockDepositStore) UpsertDeposit(ctx context.Context, dep *ledger.Deposit) error {
	if m.UpsertDepositFunc != nil {
		return m.UpsertDepositFunc(ctx, dep)
	}
	return nil
}

func (m *MockDepositStore) ListPendingDeposits(ctx context.Context, maxBlock int64) ([]*ledger.Deposit, error) {
	if m.ListPendingDepositsFunc != nil {
		return m.ListPendingDepositsFunc(ctx, maxBlock)
	}
	return nil, nil
}

func (m *MockDepositStore) UpdateDepositState(ctx context.Context, txHash string, logIndex int64, confirmations int64, status ledger.DepositStatus) error {
	if m.UpdateDepositStateFunc != nil {
		return m.UpdateDepositStateFunc(ctx, txHash, logIndex, confirmations, status)
	}
	return nil
}
