package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/pkwallet/service/faults"
	"github.com/brojonat/pkwallet/service/metrics"
	"github.com/brojonat/pkwallet/service/nats"
	"github.com/brojonat/pkwallet/service/solana"
	"github.com/brojonat/pkwallet/service/wallet"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// Status is the transfer lifecycle state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// State is a transfer attempt's published state. Transitions assign the
// whole struct, never individual fields, which keeps the invariant that at
// most one of Signature and Err is set and that it agrees with Status.
type State struct {
	Status    Status
	Signature string
	Err       string // normalized user-facing message
}

// AddressSource reports the currently connected wallet. *wallet.Session
// satisfies this.
type AddressSource interface {
	Snapshot() wallet.State
}

// Sender orchestrates SOL transfers through the wallet store's passkey
// sign-and-send path.
type Sender struct {
	session AddressSource
	store   wallet.Store
	events  nats.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu        sync.Mutex
	state     State
	listeners []func(State)
}

// NewSender creates a sender. events may be nil; metrics may be nil.
func NewSender(
	session AddressSource,
	store wallet.Store,
	events nats.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Sender {
	return &Sender{
		session: session,
		store:   store,
		events:  events,
		metrics: m,
		logger:  logger,
		state:   State{Status: StatusIdle},
	}
}

// State returns the current transfer state.
func (s *Sender) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Notify registers a listener invoked on every state transition.
func (s *Sender) Notify(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Reset returns the sender to idle so the caller can start another attempt.
func (s *Sender) Reset() {
	s.setState(State{Status: StatusIdle})
}

// Send transfers amountSOL to recipient. The three validation checks are
// synchronous and fail without ever entering the pending state; only a
// validated request is submitted. The amount is floored to lamports so the
// transfer can never exceed what the caller authorized.
func (s *Sender) Send(ctx context.Context, recipient string, amountSOL float64) error {
	snap := s.session.Snapshot()
	if !snap.Connected || snap.Address == "" {
		return s.reject(ctx, errors.New("wallet not connected"))
	}

	toPubkey, err := solanago.PublicKeyFromBase58(recipient)
	if err != nil {
		return s.reject(ctx, fmt.Errorf("invalid recipient %q: %w", recipient, err))
	}

	if amountSOL <= 0 {
		return s.reject(ctx, errors.New("amount must be greater than 0"))
	}

	fromPubkey, err := solanago.PublicKeyFromBase58(snap.Address)
	if err != nil {
		return s.reject(ctx, fmt.Errorf("invalid wallet address %q: %w", snap.Address, err))
	}

	s.setState(State{Status: StatusPending})

	lamports := solana.ToLamports(amountSOL)
	instruction := system.NewTransferInstruction(lamports, fromPubkey, toPubkey).Build()

	sig, err := s.store.SignAndSendTransaction(ctx, []solanago.Instruction{instruction})
	if err != nil {
		code, msg := faults.Classify(err)
		s.logger.ErrorContext(ctx, "transfer failed",
			"recipient", recipient,
			"lamports", lamports,
			"error", err,
			"code", code,
		)
		s.setState(State{Status: StatusFailed, Err: msg})
		s.metrics.RecordTransfer("failed")
		s.publishTransferEvent(&nats.WalletEvent{
			Type:          nats.EventTransferFailed,
			WalletAddress: snap.Address,
			Recipient:     recipient,
			Amount:        lamports,
			Error:         msg,
			ErrorCode:     code,
		})
		return err
	}

	s.logger.InfoContext(ctx, "transfer confirmed",
		"recipient", recipient,
		"lamports", lamports,
		"signature", sig.String(),
	)
	s.setState(State{Status: StatusConfirmed, Signature: sig.String()})
	s.metrics.RecordTransfer("confirmed")
	s.publishTransferEvent(&nats.WalletEvent{
		Type:          nats.EventTransferConfirmed,
		WalletAddress: snap.Address,
		Recipient:     recipient,
		Amount:        lamports,
		Signature:     sig.String(),
	})
	return nil
}

// reject handles a synchronous validation failure: the state moves straight
// to failed with a normalized message, skipping pending entirely.
func (s *Sender) reject(ctx context.Context, err error) error {
	code, msg := faults.Classify(err)
	s.logger.WarnContext(ctx, "transfer rejected",
		"error", err,
		"code", code,
	)
	s.setState(State{Status: StatusFailed, Err: msg})
	s.metrics.RecordTransfer("rejected")
	return err
}

func (s *Sender) setState(st State) {
	s.mu.Lock()
	s.state = st
	fns := make([]func(State), len(s.listeners))
	copy(fns, s.listeners)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

func (s *Sender) publishTransferEvent(event *nats.WalletEvent) {
	if s.events == nil {
		return
	}
	event.PublishedAt = time.Now().UTC()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.events.PublishEvent(ctx, event); err != nil {
			s.logger.Warn("failed to publish transfer event",
				"type", event.Type,
				"error", err,
			)
		}
	}()
}
