package nats

import (
	"time"
)

// Event types published to the wallet event stream.
const (
	EventSessionConnected    = "session_connected"
	EventSessionDisconnected = "session_disconnected"
	EventBalanceChanged      = "balance_changed"
	EventTransferConfirmed   = "transfer_confirmed"
	EventTransferFailed      = "transfer_failed"
)

// WalletEvent represents a wallet lifecycle event published to NATS.
// Events are published to the subject "wallet.events.{address}" in JetStream.
type WalletEvent struct {
	// Event identity
	Type          string `json:"type"`
	WalletAddress string `json:"wallet_address"`

	// Balance events
	Lamports *uint64 `json:"lamports,omitempty"`

	// Transfer events
	Signature string `json:"signature,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Amount    uint64 `json:"amount,omitempty"` // lamports

	// Failure events carry the normalized user-facing message plus a
	// stable classification code for consumers that aggregate.
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}
