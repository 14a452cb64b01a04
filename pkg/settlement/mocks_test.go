package settlement

import (
	"context"

	"github.com/lumenpay/credits-middleware/pkg/ledger"
)

// MockStore is a mock implementation of Store
type MockStore struct {
	GetPaymentFunc      func(ctx context.Context, id string) (*ledger.Payment, error)
	UpsertPaymentFunc   func(ctx context.Context, p *ledger.Payment) error
	GrantCreditsFunc    func(ctx context.Context, userID string, delta int64, reason, referenceID string) (*ledger.Entry, error)
	GetUserByWalletFunc func(ctx context.Context, addr string) (*ledger.User, error)
}

func (m *MockStore) GetPayment(ctx context.Context, id string) (*ledger.Payment, error) {
	if m.GetPaymentFunc != nil {
		return m.GetPaymentFunc(ctx, id)
	}
	return nil, ledger.ErrPaymentNotFound
}

func (m *MockStore) UpsertPayment(ctx context.Context, p *ledger.Payment) error {
	if m.UpsertPaymentFunc != nil {
		return m.UpsertPaymentFunc(ctx, p)
	}
	return nil
}

func (m *MockStore) GrantCredits(ctx context.Context, userID string, delta int64, reason, referenceID string) (*ledger.Entry, error) {
	if m.GrantCreditsFunc != nil {
		return m.GrantCreditsFunc(ctx, userID, delta, reason, referenceID)
	}
	return &ledger.Entry{UserID: userID, Delta: delta, Balance: delta, Reason: reason, ReferenceID: referenceID}, nil
}

func (m *MockStore) GetUserByWallet(ctx context.Context, addr string) (*ledger.User, error) {
	if m.GetUserByWalletFunc != nil {
		return m.GetUserByWalletFunc(ctx, addr)
	}
	return nil, ledger.ErrUserNotFound
}
