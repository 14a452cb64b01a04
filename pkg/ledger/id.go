package ledger

import "fmt"

// DepositEventID derives the stable (tx_hash, log_index) identity string.
func DepositEventID(txHash string, logIndex int64) string {
	return fmt.Sprintf("%s_%d", txHash, logIndex)
}

// DepositReferenceID is the dedup key used when a confirmed deposit is
// credited, namespaced by chain so the same tx hash on another chain can
// never collide.
func DepositReferenceID(chainID int64, txHash string, logIndex int64) string {
	return fmt.Sprintf("%d_%s_%d", chainID, txHash, logIndex)
}

// CheckoutPaymentID derives the canonical id for a card checkout-session
// completion event.
func CheckoutPaymentID(provider, sessionID string) string {
	return fmt.Sprintf("%s_%s", provider, sessionID)
}

// IntentPaymentID derives the canonical id for a card payment-intent
// success event.
func IntentPaymentID(provider, intentID string) string {
	return fmt.Sprintf("%s_pi_%s", provider, intentID)
}

// StablecoinPaymentID derives the canonical id for a stablecoin webhook
// transaction, namespaced by the network token label (e.g. "base-usdc").
func StablecoinPaymentID(networkToken, transactionID string) string {
	return fmt.Sprintf("%s_%s", networkToken, transactionID)
}
