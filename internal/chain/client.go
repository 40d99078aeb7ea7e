// Package chain is the RPC client used to fork live pools and fetch their history.
package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

// Client is an ethclient whose every request first takes a token from a shared limiter.
type Client struct {
	raw     *rpc.Client
	eth     *ethclient.Client
	limiter *rate.Limiter

	mu         sync.RWMutex
	timestamps map[uint64]uint64
}

// NewClient dials rpcURL. requestsPerSecond <= 0 disables rate limiting.
func NewClient(ctx context.Context, rpcURL string, requestsPerSecond int) (*Client, error) {
	raw, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
	return &Client{
		raw:        raw,
		eth:        ethclient.NewClient(raw),
		limiter:    limiter,
		timestamps: make(map[uint64]uint64),
	}, nil
}

func (c *Client) Close() {
	if c.raw != nil {
		c.raw.Close()
	}
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.eth.ChainID(ctx)
}

func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return c.eth.BlockNumber(ctx)
}

// BlockTimestamp returns a block's timestamp. Headers are fetched once per block.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	cached, ok := c.timestamps[number]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	header, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.timestamps[number] = header.Time
	c.mu.Unlock()
	return header.Time, nil
}

// FilterLogs returns the logs of [fromBlock, toBlock] emitted by addresses whose first
// topic is one of topic0. An empty topic0 matches every event.
func (c *Client) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var topics [][]common.Hash
	if len(topic0) > 0 {
		topics = [][]common.Hash{topic0}
	}
	return c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
		Topics:    topics,
	})
}

// CallContract runs an eth_call at blockNumber, or at the head when it is nil.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.eth.CallContract(ctx, msg, blockNumber)
}
