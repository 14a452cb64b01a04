package settlement

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lumenpay/credits-middleware/pkg/ledger"
)

func testService(t *testing.T, store Store) *Service {
	t.Helper()
	svc, err := NewService(Config{
		CardProvider:               "stripe",
		StablecoinProvider:         "base-usdc",
		StablecoinMinConfirmations: 6,
		StablecoinRate:             100,
		DepositRate:                decimal.NewFromInt(1),
	}, store, zap.NewNop())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func TestHandleCheckoutCompleted_GrantsOnce(t *testing.T) {
	var recorded *ledger.Payment
	grants := 0

	mockStore := &MockStore{
		UpsertPaymentFunc: func(ctx context.Context, p *ledger.Payment) error {
			recorded = p
			return nil
		},
		GrantCreditsFunc: func(ctx context.Context, userID string, delta int64, reason, referenceID string) (*ledger.Entry, error) {
			grants++
			if userID != "user-1" {
				t.Errorf("Expected user-1, got %s", userID)
			}
			if delta != 50 {
				t.Errorf("Expected 50 credits, got %d", delta)
			}
			if reason != ledger.ReasonCardPurchase {
				t.Errorf("Expected reason card_purchase, got %s", reason)
			}
			if referenceID != "stripe_cs_123" {
				t.Errorf("Expected reference stripe_cs_123, got %s", referenceID)
			}
			return &ledger.Entry{UserID: userID, Delta: delta, Balance: delta}, nil
		},
	}

	svc := testService(t, mockStore)
	ev := &CardEvent{SessionID: "cs_123", UserID: "user-1", Credits: 50, AmountMinor: 500, Currency: "usd"}

	if err := svc.HandleCheckoutCompleted(context.Background(), ev); err != nil {
		t.Fatalf("HandleCheckoutCompleted failed: %v", err)
	}
	if grants != 1 {
		t.Fatalf("Expected one grant, got %d", grants)
	}
	if recorded == nil {
		t.Fatal("payment was not recorded")
	}
	if recorded.ID != "stripe_cs_123" {
		t.Errorf("Expected payment id stripe_cs_123, got %s", recorded.ID)
	}
	if recorded.Status != ledger.PaymentStatusSucceeded {
		t.Errorf("Expected status succeeded, got %s", recorded.Status)
	}
	if recorded.Amount != "5" {
		t.Errorf("Expected amount 5, got %s", recorded.Amount)
	}
}

func TestHandleCheckoutCompleted_ReplayIsNoop(t *testing.T) {
	upserts := 0
	grants := 0

	mockStore := &MockStore{
		GetPaymentFunc: func(ctx context.Context, id string) (*ledger.Payment, error) {
			return &ledger.Payment{ID: id, Status: ledger.PaymentStatusSucceeded}, nil
		},
		UpsertPaymentFunc: func(ctx context.Context, p *ledger.Payment) error {
			upserts++
			return nil
		},
		GrantCreditsFunc: func(ctx context.Context, userID string, delta int64, reason, referenceID string) (*ledger.Entry, error) {
			grants++
			return nil, nil
		},
	}

	svc := testService(t, mockStore)
	ev := &CardEvent{SessionID: "cs_123", UserID: "user-1", Credits: 50}

	if err := svc.HandleCheckoutCompleted(context.Background(), ev); err != nil {
		t.Fatalf("HandleCheckoutCompleted failed: %v", err)
	}
	if upserts != 0 || grants != 0 {
		t.Errorf("replayed event must be a no-op, got %d upserts and %d grants", upserts, grants)
	}
}

func TestHandleIntentSucceeded_InvalidEvents(t *testing.T) {
	svc := testService(t, &MockStore{})

	tests := []struct {
		name string
		ev   *CardEvent
	}{
		{"missing intent id", &CardEvent{UserID: "user-1", Credits: 10}},
		{"missing user id", &CardEvent{IntentID: "pi_1", Credits: 10}},
		{"zero credits", &CardEvent{IntentID: "pi_1", UserID: "user-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.HandleIntentSucceeded(context.Background(), tt.ev)
			if !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("Expected ErrInvalidEvent, got %v", err)
			}
		})
	}
}

func TestHandleStablecoinPayment_ConfirmedWithLowConfirmationsStaysPending(t *testing.T) {
	var recorded *ledger.Payment
	grants := 0

	mockStore := &MockStore{
		UpsertPaymentFunc: func(ctx context.Context, p *ledger.Payment) error {
			recorded = p
			return nil
		},
		GrantCreditsFunc: func(ctx context.Context, userID string, delta int64, reason, referenceID string) (*ledger.Entry, error) {
			grants++
			return nil, nil
		},
	}

	svc := testService(t, mockStore)
	p := &StablecoinPayment{
		TransactionID: "0xtx1",
		UserID:        "user-1",
		AmountMinor:   1000,
		Currency:      "usdc",
		Network:       "base",
		Status:        "confirmed",
		Confirmations: 3, // below the threshold of 6
	}

	if err := svc.HandleStablecoinPayment(context.Background(), p); err != nil {
		t.Fatalf("HandleStablecoinPayment failed: %v", err)
	}
	if grants != 0 {
		t.Errorf("under-confirmed payment must not grant, got %d grants", grants)
	}
	if recorded == nil {
		t.Fatal("payment was not recorded")
	}
	if recorded.Status != ledger.PaymentStatusPending {
		t.Errorf("Expected status pending, got %s", recorded.Status)
	}
}

func TestHandleStablecoinPayment_SecondWebhookSettles(t *testing.T) {
	grants := 0
	var lastRecorded *ledger.Payment

	mockStore := &MockStore{
		UpsertPaymentFunc: func(ctx context.Context, p *ledger.Payment) error {
			lastRecorded = p
			return nil
		},
		GrantCreditsFunc: func(ctx context.Context, userID string, delta int64, reason, referenceID string) (*ledger.Entry, error) {
			grants++
			if referenceID != "base-usdc_0xtx1" {
				t.Errorf("Expected reference base-usdc_0xtx1, got %s", referenceID)
			}
			if delta != 10 {
				t.Errorf("Expected 10 credits for 1000 minor units at rate 100, got %d", delta)
			}
			return &ledger.Entry{UserID: userID, Delta: delta, Balance: delta}, nil
		},
	}

	svc := testService(t, mockStore)
	first := &StablecoinPayment{
		TransactionID: "0xtx1", UserID: "user-1", AmountMinor: 1000,
		Currency: "usdc", Network: "base", Status: "pending",
	}
	second := &StablecoinPayment{
		TransactionID: "0xtx1", UserID: "user-1", AmountMinor: 1000,
		Currency: "usdc", Network: "base", Status: "confirmed", Confirmations: 8,
	}

	if err := svc.HandleStablecoinPayment(context.Background(), first); err != nil {
		t.Fatalf("first webhook failed: %v", err)
	}
	if grants != 0 {
		t.Fatalf("pending webhook must not grant, got %d grants", grants)
	}

	if err := svc.HandleStablecoinPayment(context.Background(), second); err != nil {
		t.Fatalf("second webhook failed: %v", err)
	}
	if grants != 1 {
		t.Fatalf("Expected one grant after confirmation, got %d", grants)
	}
	if lastRecorded.Status != ledger.PaymentStatusSucceeded {
		t.Errorf("Expected status succeeded, got %s", lastRecorded.Status)
	}
}

func TestHandleStablecoinPayment_FailedStatusRecordedWithoutGrant(t *testing.T) {
	grants := 0
	var recorded *ledger.Payment

	mockStore := &MockStore{
		UpsertPaymentFunc: func(ctx context.Context, p *ledger.Payment) error {
			recorded = p
			return nil
		},
		GrantCreditsFunc: func(ctx context.Context, userID string, delta int64, reason, referenceID string) (*ledger.Entry, error) {
			grants++
			return nil, nil
		},
	}

	svc := testService(t, mockStore)
	p := &StablecoinPayment{
		TransactionID: "0xtx2", UserID: "user-1", AmountMinor: 1000,
		Currency: "usdc", Network: "base", Status: "failed", Confirmations: 20,
	}

	if err := svc.HandleStablecoinPayment(context.Background(), p); err != nil {
		t.Fatalf("HandleStablecoinPayment failed: %v", err)
	}
	if grants != 0 {
		t.Errorf("failed payment must not grant, got %d grants", grants)
	}
	if recorded.Status != ledger.PaymentStatusFailed {
		t.Errorf("Expected status failed, got %s", recorded.Status)
	}
}

func TestHandleDepositConfirmed_GrantsToRegisteredWallet(t *testing.T) {
	grants := 0

	mockStore := &MockStore{
		GetUserByWalletFunc: func(ctx context.Context, addr string) (*ledger.User, error) {
			return &ledger.User{ID: "user-7", WalletAddress: addr}, nil
		},
		GrantCreditsFunc: func(ctx context.Context, userID string, delta int64, reason, referenceID string) (*ledger.Entry, error) {
			grants++
			if userID != "user-7" {
				t.Errorf("Expected user-7, got %s", userID)
			}
			if delta != 25 {
				t.Errorf("Expected 25 credits, got %d", delta)
			}
			if reason != ledger.ReasonChainDeposit {
				t.Errorf("Expected reason chain_deposit, got %s", reason)
			}
			if referenceID != "1_0xdead_3" {
				t.Errorf("Expected reference 1_0xdead_3, got %s", referenceID)
			}
			return &ledger.Entry{UserID: userID, Delta: delta, Balance: delta}, nil
		},
	}

	svc := testService(t, mockStore)
	dep := &ledger.Deposit{
		TxHash: "0xdead", LogIndex: 3, ChainID: 1,
		Sender: "0x00000000000000000000000000000000000000aa",
		Amount: "25.5",
		Status: ledger.DepositStatusConfirmed,
	}

	if err := svc.HandleDepositConfirmed(context.Background(), dep); err != nil {
		t.Fatalf("HandleDepositConfirmed failed: %v", err)
	}
	if grants != 1 {
		t.Fatalf("Expected one grant, got %d", grants)
	}
}

func TestHandleDepositConfirmed_UnregisteredWalletIsSkipped(t *testing.T) {
	grants := 0

	mockStore := &MockStore{
		GrantCreditsFunc: func(ctx context.Context, userID string, delta int64, reason, referenceID string) (*ledger.Entry, error) {
			grants++
			return nil, nil
		},
	}

	svc := testService(t, mockStore)
	dep := &ledger.Deposit{
		TxHash: "0xdead", LogIndex: 0, ChainID: 1,
		Sender: "0x00000000000000000000000000000000000000bb",
		Amount: "10",
	}

	// Unknown sender must not fail the scan cycle.
	if err := svc.HandleDepositConfirmed(context.Background(), dep); err != nil {
		t.Fatalf("HandleDepositConfirmed failed: %v", err)
	}
	if grants != 0 {
		t.Errorf("unregistered wallet must not grant, got %d grants", grants)
	}
}

func TestHandleDepositConfirmed_DuplicateGrantIsNoop(t *testing.T) {
	mockStore := &MockStore{
		GetUserByWalletFunc: func(ctx context.Context, addr string) (*ledger.User, error) {
			return &ledger.User{ID: "user-7"}, nil
		},
		GrantCreditsFunc: func(ctx context.Context, userID string, delta int64, reason, referenceID string) (*ledger.Entry, error) {
			return nil, nil // reference already granted
		},
	}

	svc := testService(t, mockStore)
	dep := &ledger.Deposit{
		TxHash: "0xdead", LogIndex: 3, ChainID: 1,
		Sender: "0x00000000000000000000000000000000000000aa",
		Amount: "25",
	}

	if err := svc.HandleDepositConfirmed(context.Background(), dep); err != nil {
		t.Fatalf("replayed confirmation must not fail: %v", err)
	}
}

func TestNewService_RejectsBadRates(t *testing.T) {
	_, err := NewService(Config{StablecoinRate: 0, DepositRate: decimal.NewFromInt(1), StablecoinMinConfirmations: 6}, &MockStore{}, zap.NewNop())
	if err == nil {
		t.Error("expected error for zero stablecoin rate")
	}

	_, err = NewService(Config{StablecoinRate: 100, DepositRate: decimal.Zero, StablecoinMinConfirmations: 6}, &MockStore{}, zap.NewNop())
	if err == nil {
		t.Error("expected error for zero deposit rate")
	}
}
