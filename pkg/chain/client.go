// Package chain wraps the Ethereum JSON-RPC client behind the two calls
// the deposit watcher needs: head block resolution and ERC-20 Transfer
// log filtering.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/creasty/defaults"
	gethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// transferTopic is the keccak256 of the canonical ERC-20 Transfer event
// signature. Topics[1] is the sender, Topics[2] the recipient.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Options tune the client beyond the RPC endpoint itself.
type Options struct {
	// MaxLogRange caps the block span of a single eth_getLogs call; most
	// public RPC providers reject unbounded ranges.
	MaxLogRange uint64 `default:"10000"`
}

// Client represents an Ethereum RPC client scoped to transfer scanning
type Client struct {
	client  *ethclient.Client
	chainID int64
	opts    Options
	logger  *zap.Logger
}

// NewClient connects to the configured RPC endpoint.
func NewClient(rpcURL string, chainID int64, opts Options, logger *zap.Logger) (*Client, error) {
	if err := defaults.Set(&opts); err != nil {
		return nil, fmt.Errorf("failed to apply client defaults: %w", err)
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum RPC: %w", err)
	}

	logger.Info("Connected to Ethereum RPC",
		zap.Int64("chain_id", chainID),
		zap.String("rpc_url", rpcURL))

	return &Client{
		client:  client,
		chainID: chainID,
		opts:    opts,
		logger:  logger,
	}, nil
}

// Close closes the underlying RPC connection
func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// HeadBlock returns the latest block number seen by the RPC node.
func (c *Client) HeadBlock(ctx context.Context) (uint64, error) {
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return header.Number.Uint64(), nil
}

// FilterTransfers returns Transfer logs emitted by the token contract in
// [fromBlock, toBlock] whose recipient is receiver. Large ranges are
// split according to MaxLogRange.
func (c *Client) FilterTransfers(ctx context.Context, token common.Address, fromBlock, toBlock uint64, receiver common.Address) ([]TransferLog, error) {
	if fromBlock > toBlock {
		return nil, nil
	}

	var out []TransferLog
	for start := fromBlock; start <= toBlock; {
		end := toBlock
		if c.opts.MaxLogRange > 0 && end-start >= c.opts.MaxLogRange {
			end = start + c.opts.MaxLogRange - 1
		}

		query := gethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{token},
			Topics: [][]common.Hash{
				{transferTopic},
				nil,
				{common.BytesToHash(receiver.Bytes())},
			},
		}

		logs, err := c.client.FilterLogs(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to filter transfer logs [%d, %d]: %w", start, end, err)
		}

		for _, lg := range logs {
			transfer, ok := decodeTransfer(lg)
			if !ok {
				continue
			}
			out = append(out, transfer)
		}

		if end == toBlock {
			break
		}
		start = end + 1
	}

	return out, nil
}

// decodeTransfer unpacks one raw Transfer log. Removed (reorged-out) logs
// and logs without indexed from/to topics are dropped.
func decodeTransfer(lg types.Log) (TransferLog, bool) {
	if lg.Removed || len(lg.Topics) < 3 {
		return TransferLog{}, false
	}
	return TransferLog{
		Token:       lg.Address,
		From:        common.BytesToAddress(lg.Topics[1].Bytes()),
		To:          common.BytesToAddress(lg.Topics[2].Bytes()),
		Amount:      new(big.Int).SetBytes(lg.Data),
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash,
		LogIndex:    lg.Index,
	}, true
}
