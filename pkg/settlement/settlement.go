// Package settlement converts external payment events of uncertain
// finality into idempotent, exactly-once credit grants. Card checkout and
// payment-intent events, stablecoin payment webhooks and confirmed chain
// deposits all funnel into the same ledger grant primitive.
package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lumenpay/credits-middleware/internal/metrics"
	"github.com/lumenpay/credits-middleware/pkg/ledger"
)

// Store defines the ledger operations the settlement service needs.
type Store interface {
	GetPayment(ctx context.Context, id string) (*ledger.Payment, error)
	UpsertPayment(ctx context.Context, p *ledger.Payment) error
	GrantCredits(ctx context.Context, userID string, delta int64, reason, referenceID string) (*ledger.Entry, error)
	GetUserByWallet(ctx context.Context, addr string) (*ledger.User, error)
}

// Config holds settlement conversion settings.
type Config struct {
	// CardProvider namespaces card payment ids (e.g. "stripe").
	CardProvider string
	// StablecoinProvider namespaces stablecoin webhook payments
	// (e.g. "base-usdc").
	StablecoinProvider string
	// StablecoinMinConfirmations gates stablecoin settlement on top of the
	// provider's own status field.
	StablecoinMinConfirmations int64
	// StablecoinRate is the amount (in minor units) that buys one credit.
	StablecoinRate int64
	// DepositRate is the token amount that buys one credit for direct
	// chain deposits.
	DepositRate decimal.Decimal
}

// ErrInvalidEvent marks events that fail settlement preconditions;
// handlers map it to a client error instead of a retryable one.
var ErrInvalidEvent = errors.New("invalid payment event")

// Service is the payment settlement reconciler.
type Service struct {
	cfg    Config
	store  Store
	logger *zap.Logger
}

// NewService creates a settlement service.
func NewService(cfg Config, store Store, logger *zap.Logger) (*Service, error) {
	if cfg.StablecoinRate <= 0 {
		return nil, errors.New("stablecoin rate must be positive")
	}
	if cfg.DepositRate.Sign() <= 0 {
		return nil, errors.New("deposit rate must be positive")
	}
	if cfg.StablecoinMinConfirmations <= 0 {
		return nil, errors.New("stablecoin min confirmations must be positive")
	}
	return &Service{cfg: cfg, store: store, logger: logger}, nil
}

// CardEvent is a verified card-provider event, already unwrapped from the
// provider's signed envelope by the collaborator that owns that scheme.
type CardEvent struct {
	// Type is the provider event type; only checkout completions and
	// payment-intent successes settle, everything else is ignored upstream.
	SessionID   string
	IntentID    string
	UserID      string
	Credits     int64
	AmountMinor int64
	Currency    string
	RawPayload  []byte
}

// HandleCheckoutCompleted settles a card checkout-session completion.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, ev *CardEvent) error {
	if ev.SessionID == "" {
		return fmt.Errorf("checkout event missing session id: %w", ErrInvalidEvent)
	}
	id := ledger.CheckoutPaymentID(s.cfg.CardProvider, ev.SessionID)
	return s.settleCardPayment(ctx, id, ev)
}

// HandleIntentSucceeded settles a card payment-intent success.
func (s *Service) HandleIntentSucceeded(ctx context.Context, ev *CardEvent) error {
	if ev.IntentID == "" {
		return fmt.Errorf("intent event missing intent id: %w", ErrInvalidEvent)
	}
	id := ledger.IntentPaymentID(s.cfg.CardProvider, ev.IntentID)
	return s.settleCardPayment(ctx, id, ev)
}

// settleCardPayment records the payment as succeeded and grants credits,
// once. A replayed event finds the existing record and no-ops.
func (s *Service) settleCardPayment(ctx context.Context, id string, ev *CardEvent) error {
	if ev.UserID == "" {
		return fmt.Errorf("card event missing user id: %w", ErrInvalidEvent)
	}
	if ev.Credits <= 0 {
		return fmt.Errorf("card event %s has no credits to grant: %w", id, ErrInvalidEvent)
	}

	existing, err := s.store.GetPayment(ctx, id)
	if err != nil && !errors.Is(err, ledger.ErrPaymentNotFound) {
		return fmt.Errorf("look up payment %s: %w", id, err)
	}
	if existing != nil {
		s.logger.Debug("Card payment already recorded", zap.String("payment_id", id))
		return nil
	}

	payment := &ledger.Payment{
		ID:         id,
		UserID:     ev.UserID,
		Provider:   s.cfg.CardProvider,
		Status:     ledger.PaymentStatusSucceeded,
		Amount:     formatMinor(ev.AmountMinor),
		Currency:   ev.Currency,
		Credits:    ev.Credits,
		RawPayload: ev.RawPayload,
	}
	if err := s.store.UpsertPayment(ctx, payment); err != nil {
		return fmt.Errorf("record payment %s: %w", id, err)
	}

	return s.grant(ctx, ev.UserID, ev.Credits, ledger.ReasonCardPurchase, id)
}

// StablecoinPayment is a parsed, signature-verified stablecoin webhook body.
type StablecoinPayment struct {
	TransactionID string `json:"transactionId" validate:"required"`
	UserID        string `json:"userId" validate:"required"`
	AmountMinor   int64  `json:"amountMinor" validate:"gt=0"`
	Currency      string `json:"currency" validate:"required"`
	Network       string `json:"network" validate:"required"`
	Status        string `json:"status" validate:"required,oneof=pending confirmed failed"`
	Confirmations int64  `json:"confirmations" validate:"gte=0"`
	raw           []byte
}

// SetRaw attaches the raw request body snapshot stored with the record.
func (p *StablecoinPayment) SetRaw(body []byte) { p.raw = body }

// HandleStablecoinPayment records or updates the payment identified by
// the webhook transaction id and grants credits when, and only when, the
// payload reports confirmed status with sufficient confirmations. A later
// "more confirmed" webhook for the same transaction updates the record
// but can never grant twice.
func (s *Service) HandleStablecoinPayment(ctx context.Context, p *StablecoinPayment) error {
	id := ledger.StablecoinPaymentID(s.cfg.StablecoinProvider, p.TransactionID)
	credits := p.AmountMinor / s.cfg.StablecoinRate

	status := ledger.PaymentStatusPending
	switch {
	case p.Status == "failed":
		status = ledger.PaymentStatusFailed
	case p.Status == "confirmed" && p.Confirmations >= s.cfg.StablecoinMinConfirmations:
		status = ledger.PaymentStatusSucceeded
	}

	payment := &ledger.Payment{
		ID:         id,
		UserID:     p.UserID,
		Provider:   s.cfg.StablecoinProvider,
		Status:     status,
		Amount:     formatMinor(p.AmountMinor),
		Currency:   p.Currency,
		Credits:    credits,
		RawPayload: p.raw,
	}
	if err := s.store.UpsertPayment(ctx, payment); err != nil {
		return fmt.Errorf("record payment %s: %w", id, err)
	}

	if status != ledger.PaymentStatusSucceeded {
		s.logger.Info("Stablecoin payment not settled yet",
			zap.String("payment_id", id),
			zap.String("status", string(status)),
			zap.Int64("confirmations", p.Confirmations))
		return nil
	}
	if credits <= 0 {
		s.logger.Warn("Stablecoin payment below one credit, nothing to grant",
			zap.String("payment_id", id),
			zap.Int64("amount_minor", p.AmountMinor))
		return nil
	}

	return s.grant(ctx, p.UserID, credits, ledger.ReasonStablecoinPurchase, id)
}

// HandleDepositConfirmed is the scanner's confirmation hook: it credits
// the user whose registered wallet sent the deposit. Deposits from
// unregistered wallets are recorded by the scanner but grant nothing.
func (s *Service) HandleDepositConfirmed(ctx context.Context, dep *ledger.Deposit) error {
	usr, err := s.store.GetUserByWallet(ctx, dep.Sender)
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			s.logger.Warn("Confirmed deposit from unregistered wallet",
				zap.String("sender", dep.Sender),
				zap.String("tx_hash", dep.TxHash))
			return nil
		}
		return fmt.Errorf("resolve deposit sender: %w", err)
	}

	amount, err := decimal.NewFromString(dep.Amount)
	if err != nil {
		return fmt.Errorf("parse deposit amount %q: %w", dep.Amount, err)
	}
	credits := amount.Div(s.cfg.DepositRate).Floor().IntPart()
	if credits <= 0 {
		s.logger.Warn("Confirmed deposit below one credit, nothing to grant",
			zap.String("tx_hash", dep.TxHash),
			zap.String("amount", dep.Amount))
		return nil
	}

	ref := ledger.DepositReferenceID(dep.ChainID, dep.TxHash, dep.LogIndex)
	return s.grant(ctx, usr.ID, credits, ledger.ReasonChainDeposit, ref)
}

func (s *Service) grant(ctx context.Context, userID string, credits int64, reason, referenceID string) error {
	entry, err := s.store.GrantCredits(ctx, userID, credits, reason, referenceID)
	if err != nil {
		return fmt.Errorf("grant credits for %s: %w", referenceID, err)
	}
	if entry == nil {
		s.logger.Debug("Credits already granted", zap.String("reference_id", referenceID))
		return nil
	}

	metrics.CreditGrantsTotal.WithLabelValues(reason).Inc()
	s.logger.Info("Credits granted",
		zap.String("user_id", userID),
		zap.Int64("credits", credits),
		zap.String("reason", reason),
		zap.String("reference_id", referenceID),
		zap.Int64("balance", entry.Balance))
	return nil
}

// formatMinor renders a minor-unit amount as a decimal major-unit string.
func formatMinor(amountMinor int64) string {
	return decimal.New(amountMinor, -2).String()
}
