package settlement

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lumenpay/credits-middleware/internal/metrics"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Webhook-Signature"

// maxWebhookBody bounds request bodies so a hostile sender cannot exhaust
// memory before signature verification.
const maxWebhookBody = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// CardEventType identifies the two card-provider events that settle.
type CardEventType string

const (
	CardEventCheckoutCompleted CardEventType = "checkout.session.completed"
	CardEventIntentSucceeded   CardEventType = "payment_intent.succeeded"
)

// CardVerifier unwraps and verifies the card provider's signed event
// envelope. The provider-native signature scheme lives behind this
// interface; this package only dispatches verified events.
type CardVerifier interface {
	// SignatureHeader names the request header carrying the signature.
	SignatureHeader() string
	VerifyEvent(payload []byte, signatureHeader string) (CardEventType, *CardEvent, error)
}

// VerifyHMAC checks a hex HMAC-SHA256 signature over body in constant time.
func VerifyHMAC(secret, body []byte, signatureHex string) bool {
	if signatureHex == "" {
		return false
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(sig, mac.Sum(nil))
}

// StablecoinWebhookHandler returns the handler for the HMAC-signed
// stablecoin payment webhook. A missing or invalid signature is rejected
// before the body is parsed; validation failures write nothing.
func StablecoinWebhookHandler(svc *Service, secret []byte, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := svc.cfg.StablecoinProvider

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			metrics.WebhooksTotal.WithLabelValues(provider, "read_error").Inc()
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		if !VerifyHMAC(secret, body, r.Header.Get(SignatureHeader)) {
			metrics.WebhooksTotal.WithLabelValues(provider, "bad_signature").Inc()
			logger.Warn("Rejected stablecoin webhook with invalid signature")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		var payment StablecoinPayment
		if err := json.Unmarshal(body, &payment); err != nil {
			metrics.WebhooksTotal.WithLabelValues(provider, "bad_payload").Inc()
			http.Error(w, "malformed payload", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(&payment); err != nil {
			metrics.WebhooksTotal.WithLabelValues(provider, "bad_payload").Inc()
			logger.Warn("Rejected stablecoin webhook payload", zap.Error(err))
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		payment.SetRaw(body)

		if err := svc.HandleStablecoinPayment(r.Context(), &payment); err != nil {
			metrics.WebhooksTotal.WithLabelValues(provider, "error").Inc()
			logger.Error("Failed to settle stablecoin payment",
				zap.String("transaction_id", payment.TransactionID),
				zap.Error(err))
			// 5xx so the sender redelivers; settlement is idempotent.
			http.Error(w, "settlement failed", http.StatusInternalServerError)
			return
		}

		metrics.WebhooksTotal.WithLabelValues(provider, "ok").Inc()
		w.WriteHeader(http.StatusOK)
	}
}

// CardWebhookHandler returns the handler for card-provider events.
// Unknown event types are acknowledged and ignored.
func CardWebhookHandler(svc *Service, verifier CardVerifier, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := svc.cfg.CardProvider

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			metrics.WebhooksTotal.WithLabelValues(provider, "read_error").Inc()
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		eventType, event, err := verifier.VerifyEvent(body, r.Header.Get(verifier.SignatureHeader()))
		if err != nil {
			metrics.WebhooksTotal.WithLabelValues(provider, "bad_signature").Inc()
			logger.Warn("Rejected card webhook", zap.Error(err))
			http.Error(w, "invalid event", http.StatusBadRequest)
			return
		}
		event.RawPayload = body

		switch eventType {
		case CardEventCheckoutCompleted:
			err = svc.HandleCheckoutCompleted(r.Context(), event)
		case CardEventIntentSucceeded:
			err = svc.HandleIntentSucceeded(r.Context(), event)
		default:
			metrics.WebhooksTotal.WithLabelValues(provider, "ignored").Inc()
			w.WriteHeader(http.StatusOK)
			return
		}

		if err != nil {
			if isValidationError(err) {
				metrics.WebhooksTotal.WithLabelValues(provider, "bad_payload").Inc()
				http.Error(w, "invalid event", http.StatusBadRequest)
				return
			}
			metrics.WebhooksTotal.WithLabelValues(provider, "error").Inc()
			logger.Error("Failed to settle card payment", zap.Error(err))
			http.Error(w, "settlement failed", http.StatusInternalServerError)
			return
		}

		metrics.WebhooksTotal.WithLabelValues(provider, "ok").Inc()
		w.WriteHeader(http.StatusOK)
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, ErrInvalidEvent)
}
