package settlement

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// stripeSignatureHeader is the header Stripe sends with every webhook.
const stripeSignatureHeader = "Stripe-Signature"

// defaultSignatureTolerance rejects replayed events whose signed timestamp
// is too old.
const defaultSignatureTolerance = 5 * time.Minute

// StripeVerifier verifies Stripe's webhook signature scheme: the header
// carries "t=<unix>,v1=<hex>" where v1 is HMAC-SHA256 over "<t>.<body>".
type StripeVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewStripeVerifier creates a verifier for the given endpoint secret.
func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{
		secret:    []byte(secret),
		tolerance: defaultSignatureTolerance,
		now:       time.Now,
	}
}

// SignatureHeader implements CardVerifier.
func (v *StripeVerifier) SignatureHeader() string { return stripeSignatureHeader }

// stripeEvent mirrors the subset of Stripe's event envelope we settle on.
type stripeEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID          string `json:"id"`
			AmountTotal int64  `json:"amount_total"`
			Amount      int64  `json:"amount"`
			Currency    string `json:"currency"`
			Metadata    struct {
				UserID       string `json:"userId"`
				CreditsToBuy string `json:"creditsToBuy"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// VerifyEvent implements CardVerifier.
func (v *StripeVerifier) VerifyEvent(payload []byte, signatureHeader string) (CardEventType, *CardEvent, error) {
	if err := v.checkSignature(payload, signatureHeader); err != nil {
		return "", nil, err
	}

	var ev stripeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return "", nil, fmt.Errorf("malformed event payload: %w", err)
	}

	credits, _ := strconv.ParseInt(ev.Data.Object.Metadata.CreditsToBuy, 10, 64)
	amount := ev.Data.Object.AmountTotal
	if amount == 0 {
		amount = ev.Data.Object.Amount
	}

	card := &CardEvent{
		UserID:      ev.Data.Object.Metadata.UserID,
		Credits:     credits,
		AmountMinor: amount,
		Currency:    ev.Data.Object.Currency,
	}

	switch CardEventType(ev.Type) {
	case CardEventCheckoutCompleted:
		card.SessionID = ev.Data.Object.ID
	case CardEventIntentSucceeded:
		card.IntentID = ev.Data.Object.ID
	}

	return CardEventType(ev.Type), card, nil
}

func (v *StripeVerifier) checkSignature(payload []byte, header string) error {
	if header == "" {
		return fmt.Errorf("missing %s header", stripeSignatureHeader)
	}

	var timestamp int64
	var signatures [][]byte
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid signature timestamp: %w", err)
			}
			timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return fmt.Errorf("malformed %s header", stripeSignatureHeader)
	}
	if v.tolerance > 0 {
		age := v.now().Sub(time.Unix(timestamp, 0))
		if age > v.tolerance || age < -v.tolerance {
			return fmt.Errorf("signature timestamp outside tolerance")
		}
	}

	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%d.%s", timestamp, payload)
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		if hmac.Equal(sig, expected) {
			return nil
		}
	}
	return fmt.Errorf("no matching signature")
}
