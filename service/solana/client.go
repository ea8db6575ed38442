package solana

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/pkwallet/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real nodes.
type RPCClient interface {
	GetBalance(
		ctx context.Context,
		account solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetBalanceResult, error)
}

// Client provides balance reads against a Solana node.
// It wraps the RPC client with logging and metrics.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics (e.g., "mainnet", "devnet", rpc host)
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling.
// If m is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:      rpcClient,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
	}
}

// GetBalance returns the lamport balance for the given base-58 address at
// confirmed commitment.
func (c *Client) GetBalance(ctx context.Context, address string) (uint64, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", address, err)
	}

	start := time.Now()
	result, err := c.rpc.GetBalance(ctx, pubkey, rpc.CommitmentConfirmed)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		c.logger.ErrorContext(ctx, "failed to get balance",
			"address", address,
			"error", err,
		)
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall("GetBalance", status, c.endpoint, duration)
	}

	if err != nil {
		return 0, err
	}

	c.logger.DebugContext(ctx, "fetched balance",
		"address", address,
		"lamports", result.Value,
	)

	return result.Value, nil
}

// IsValidAddress reports whether the candidate decodes as a 32-byte base-58
// public key.
func IsValidAddress(candidate string) bool {
	_, err := solana.PublicKeyFromBase58(candidate)
	return err == nil
}
