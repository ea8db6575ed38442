package wallet

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// WalletRecord is the external store's view of an active wallet: the passkey
// credential and the smart-wallet address derived from it.
type WalletRecord struct {
	CredentialID string
	SmartWallet  string
}

// StoreState is a snapshot of the external wallet store. The store mutates
// asynchronously (the credential ceremony completes on its own schedule), so
// consumers observe it only through Subscribe callbacks and State reads.
type StoreState struct {
	Wallet       *WalletRecord
	IsLoading    bool
	IsConnecting bool
	Err          error
}

// StoreConfig carries the service endpoints the store needs before any
// operation can run.
type StoreConfig struct {
	RPCEndpoint       string
	PortalEndpoint    string
	PaymasterEndpoint string
}

// Store is the external wallet SDK contract. Implementations must deliver
// Subscribe callbacks in the order state changes are applied.
type Store interface {
	// State returns the current store snapshot.
	State() StoreState

	// Subscribe registers a callback invoked on every state change.
	Subscribe(fn func(StoreState))

	// Connect runs the credential ceremony (create or assert, decided by
	// the portal) and populates the wallet record on success.
	Connect(ctx context.Context) error

	// Disconnect clears the active wallet record.
	Disconnect(ctx context.Context) error

	// SignAndSendTransaction signs the instructions with the passkey
	// credential and submits them via the paymaster.
	SignAndSendTransaction(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error)

	// SetConfig installs service endpoints. Must be called once before any
	// other operation.
	SetConfig(ctx context.Context, cfg StoreConfig) error
}

// CredentialCache is the persisted client-side credential state cleared on
// explicit new-wallet creation.
type CredentialCache interface {
	ClearCredentials(ctx context.Context) error
}
