package scanner

import (
	"math"

	"github.com/lumenpay/credits-middleware/pkg/ledger"
)

// Confirmations returns the confirmation depth of an event observed at
// observedBlock given the current head, counting the containing block
// itself. A head momentarily behind the observed block (lagging RPC node)
// yields 0. The result is clamped so absurd block numbers cannot overflow.
func Confirmations(observedBlock, headBlock uint64) int64 {
	if headBlock < observedBlock {
		return 0
	}
	diff := headBlock - observedBlock
	if diff >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(diff) + 1
}

// StatusFor maps a confirmation count onto a settlement status.
func StatusFor(confirmations int64, minConfirmations int) ledger.DepositStatus {
	if confirmations >= int64(minConfirmations) {
		return ledger.DepositStatusConfirmed
	}
	return ledger.DepositStatusPending
}
