package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TransferLog represents one ERC-20 Transfer event observed on chain.
type TransferLog struct {
	Token       common.Address
	From        common.Address
	To          common.Address
	Amount      *big.Int
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}
