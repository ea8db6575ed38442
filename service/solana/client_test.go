package solana

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRPCClient implements RPCClient with function fields so each test can
// control responses without a real node.
type mockRPCClient struct {
	getBalanceFunc func(
		ctx context.Context,
		account solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetBalanceResult, error)
}

func (m *mockRPCClient) GetBalance(
	ctx context.Context,
	account solana.PublicKey,
	commitment rpc.CommitmentType,
) (*rpc.GetBalanceResult, error) {
	return m.getBalanceFunc(ctx, account, commitment)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testAddress = "BPFLoaderUpgradeab1e11111111111111111111111"

func TestGetBalance_Success(t *testing.T) {
	mock := &mockRPCClient{
		getBalanceFunc: func(
			_ context.Context,
			account solana.PublicKey,
			commitment rpc.CommitmentType,
		) (*rpc.GetBalanceResult, error) {
			assert.Equal(t, testAddress, account.String())
			assert.Equal(t, rpc.CommitmentConfirmed, commitment)
			return &rpc.GetBalanceResult{Value: 2_500_000_000}, nil
		},
	}

	client := NewClient(mock, "devnet", nil, testLogger())
	lamports, err := client.GetBalance(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_500_000_000), lamports)
}

func TestGetBalance_InvalidAddress(t *testing.T) {
	mock := &mockRPCClient{
		getBalanceFunc: func(
			_ context.Context,
			_ solana.PublicKey,
			_ rpc.CommitmentType,
		) (*rpc.GetBalanceResult, error) {
			t.Fatal("RPC should not be called for an invalid address")
			return nil, nil
		},
	}

	client := NewClient(mock, "devnet", nil, testLogger())
	_, err := client.GetBalance(context.Background(), "not-a-real-address")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid address")
}

func TestGetBalance_RPCError(t *testing.T) {
	mock := &mockRPCClient{
		getBalanceFunc: func(
			_ context.Context,
			_ solana.PublicKey,
			_ rpc.CommitmentType,
		) (*rpc.GetBalanceResult, error) {
			return nil, errors.New("rpc unavailable")
		},
	}

	client := NewClient(mock, "devnet", nil, testLogger())
	_, err := client.GetBalance(context.Background(), testAddress)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc unavailable")
}

func TestIsValidAddress(t *testing.T) {
	assert.True(t, IsValidAddress(testAddress))
	assert.True(t, IsValidAddress(solana.SystemProgramID.String()))

	assert.False(t, IsValidAddress(""))
	assert.False(t, IsValidAddress("0x52908400098527886E0F7030069857D2E4169EE7")) // EVM, not base58
	assert.False(t, IsValidAddress("too-short"))
	assert.False(t, IsValidAddress("O0Il")) // characters outside the base58 alphabet
}
