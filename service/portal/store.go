package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/brojonat/pkwallet/service/keystore"
	"github.com/brojonat/pkwallet/service/wallet"
	solanago "github.com/gagliardetto/solana-go"
)

// KeyStore is the persisted credential state the store reads on connect and
// writes after a successful ceremony. *keystore.Store satisfies this.
type KeyStore interface {
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, value string) error
}

// Store is the portal/paymaster-backed implementation of wallet.Store. Its
// state mutates as ceremonies complete, and every mutation is delivered to
// subscribers in application order.
type Store struct {
	keys       KeyStore
	httpClient *http.Client
	logger     *slog.Logger

	dispatchMu sync.Mutex
	mu         sync.Mutex
	client     *Client
	state      wallet.StoreState
	subs       []func(wallet.StoreState)
}

// NewStore creates an unconfigured store. SetConfig must run before any
// operation; keys may be nil, in which case no credential state persists.
func NewStore(keys KeyStore, httpClient *http.Client, logger *slog.Logger) *Store {
	return &Store{
		keys:       keys,
		httpClient: httpClient,
		logger:     logger,
	}
}

// SetConfig installs service endpoints and builds the HTTP client.
func (s *Store) SetConfig(ctx context.Context, cfg wallet.StoreConfig) error {
	if cfg.PortalEndpoint == "" || cfg.PaymasterEndpoint == "" {
		return errors.New("portal and paymaster endpoints are required")
	}
	s.mu.Lock()
	s.client = NewClient(cfg.PortalEndpoint, cfg.PaymasterEndpoint, s.httpClient, s.logger)
	s.mu.Unlock()
	return nil
}

// State returns the current store snapshot.
func (s *Store) State() wallet.StoreState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers a callback invoked on every state change.
func (s *Store) Subscribe(fn func(wallet.StoreState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Connect runs the credential ceremony through the portal, sending the
// cached credential id when one exists, and persists the returned
// identifiers.
func (s *Store) Connect(ctx context.Context) error {
	client, err := s.requireClient()
	if err != nil {
		return err
	}

	s.apply(func(st *wallet.StoreState) {
		st.IsConnecting = true
		st.Err = nil
	})

	cached := ""
	if s.keys != nil {
		cached, err = s.keys.Get(ctx, keystore.KeyCredentialID)
		if err != nil {
			// A broken cache should not block login; the portal can still
			// run a fresh ceremony.
			s.logger.Warn("failed to read cached credential", "error", err)
			cached = ""
		}
	}

	result, err := client.Connect(ctx, cached)
	if err != nil {
		s.apply(func(st *wallet.StoreState) {
			st.IsConnecting = false
			st.Err = err
		})
		return err
	}

	if s.keys != nil {
		s.persistCredential(ctx, result)
	}

	s.apply(func(st *wallet.StoreState) {
		st.IsConnecting = false
		st.Err = nil
		st.Wallet = &wallet.WalletRecord{
			CredentialID: result.CredentialID,
			SmartWallet:  result.SmartWallet,
		}
	})
	return nil
}

// Disconnect ends the credential session and clears the wallet record.
func (s *Store) Disconnect(ctx context.Context) error {
	client, err := s.requireClient()
	if err != nil {
		return err
	}

	s.mu.Lock()
	record := s.state.Wallet
	s.mu.Unlock()
	if record == nil {
		return nil
	}

	s.apply(func(st *wallet.StoreState) {
		st.IsLoading = true
		st.Err = nil
	})

	if err := client.Disconnect(ctx, record.CredentialID); err != nil {
		s.apply(func(st *wallet.StoreState) {
			st.IsLoading = false
			st.Err = err
		})
		return err
	}

	s.apply(func(st *wallet.StoreState) {
		st.IsLoading = false
		st.Wallet = nil
	})
	return nil
}

// SignAndSendTransaction submits instructions through the paymaster using
// the active credential.
func (s *Store) SignAndSendTransaction(ctx context.Context, instructions []solanago.Instruction) (solanago.Signature, error) {
	client, err := s.requireClient()
	if err != nil {
		return solanago.Signature{}, err
	}

	s.mu.Lock()
	record := s.state.Wallet
	s.mu.Unlock()
	if record == nil {
		return solanago.Signature{}, errors.New("wallet not connected")
	}

	encoded, err := EncodeInstructions(instructions)
	if err != nil {
		return solanago.Signature{}, err
	}

	s.apply(func(st *wallet.StoreState) {
		st.IsLoading = true
		st.Err = nil
	})
	defer s.apply(func(st *wallet.StoreState) {
		st.IsLoading = false
	})

	sigStr, err := client.SignAndSend(ctx, &SignAndSendRequest{
		SmartWallet:  record.SmartWallet,
		CredentialID: record.CredentialID,
		Instructions: encoded,
	})
	if err != nil {
		return solanago.Signature{}, err
	}

	sig, err := solanago.SignatureFromBase58(sigStr)
	if err != nil {
		return solanago.Signature{}, fmt.Errorf("paymaster returned invalid signature %q: %w", sigStr, err)
	}
	return sig, nil
}

func (s *Store) requireClient() (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, errors.New("wallet store not configured: call SetConfig first")
	}
	return s.client, nil
}

func (s *Store) persistCredential(ctx context.Context, result *ConnectResult) {
	pairs := map[string]string{
		keystore.KeyCredentialID:        result.CredentialID,
		keystore.KeySmartWallet:         result.SmartWallet,
		keystore.KeyCredentialPublicKey: result.CredentialPublicKey,
	}
	for name, value := range pairs {
		if value == "" {
			continue
		}
		if err := s.keys.Set(ctx, name, value); err != nil {
			s.logger.Warn("failed to persist credential key",
				"key", name,
				"error", err,
			)
		}
	}
}

// apply mutates the state and delivers the new snapshot to subscribers.
// dispatchMu keeps deliveries in application order.
func (s *Store) apply(mutate func(*wallet.StoreState)) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	mutate(&s.state)
	snapshot := s.state
	subs := make([]func(wallet.StoreState), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}
