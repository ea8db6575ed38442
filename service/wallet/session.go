package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/pkwallet/service/faults"
	"github.com/brojonat/pkwallet/service/metrics"
	"github.com/brojonat/pkwallet/service/nats"
)

// State is the simplified wallet state published to consumers. Consumers
// read snapshots and never mutate; the Session is the only writer.
type State struct {
	Address   string
	Connected bool
	Busy      bool
	Err       string // normalized user-facing message, empty when healthy
}

// Session reconciles the externally-owned wallet store into the simplified
// State shape. It subscribes to the store exactly once, republishes
// deduplicated snapshots in order, and brackets every action with a busy
// flag that is guaranteed to reset.
type Session struct {
	store   Store
	cache   CredentialCache
	cfg     StoreConfig
	events  nats.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger

	setupOnce sync.Once
	setupErr  error

	// dispatchMu serializes publication so listeners observe states in the
	// order they were computed. mu alone guards the fields below.
	dispatchMu sync.Mutex
	mu         sync.Mutex
	subscribed bool
	inFlight   int
	localErr   string
	upstream   StoreState
	published  State
	listeners  []func(State)
}

// NewSession creates a session over the given store. cache and events may be
// nil; metrics may be nil to disable recording.
func NewSession(
	store Store,
	cache CredentialCache,
	cfg StoreConfig,
	events nats.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Session {
	return &Session{
		store:   store,
		cache:   cache,
		cfg:     cfg,
		events:  events,
		metrics: m,
		logger:  logger,
	}
}

// Start performs the one-time store setup and subscribes to upstream state.
// Safe to call more than once; later calls return the stored setup result.
// Actions call Start themselves, so calling it eagerly is optional.
func (s *Session) Start(ctx context.Context) error {
	s.setupOnce.Do(func() {
		if err := s.store.SetConfig(ctx, s.cfg); err != nil {
			s.setupErr = fmt.Errorf("failed to configure wallet store: %w", err)
			return
		}
		s.logger.DebugContext(ctx, "wallet store configured",
			"rpc_endpoint", s.cfg.RPCEndpoint,
			"portal_endpoint", s.cfg.PortalEndpoint,
		)
	})
	if s.setupErr != nil {
		return s.setupErr
	}

	s.mu.Lock()
	first := !s.subscribed
	s.subscribed = true
	s.mu.Unlock()

	if first {
		s.store.Subscribe(s.handleUpstream)
		// Fold in whatever state the store already holds.
		s.handleUpstream(s.store.State())
	}
	return nil
}

// Snapshot returns the most recently published state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published
}

// Notify registers a listener invoked with every newly published state.
// Listeners must not synchronously call Session methods that publish state
// (actions, ClearError); read methods are fine.
func (s *Session) Notify(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// ClearError clears the local error field without touching the external
// store.
func (s *Session) ClearError() {
	s.mu.Lock()
	s.localErr = ""
	s.mu.Unlock()
	s.publish()
}

// CreateWallet runs a fresh credential ceremony. Cached credential
// identifiers are cleared first so stale state from a prior device or
// session cannot interfere with creation.
func (s *Session) CreateWallet(ctx context.Context) error {
	return s.runAction(ctx, "create_wallet", func(ctx context.Context) error {
		if s.cache != nil {
			if err := s.cache.ClearCredentials(ctx); err != nil {
				return fmt.Errorf("failed to clear cached credentials: %w", err)
			}
		}
		return s.store.Connect(ctx)
	})
}

// Login connects using the existing passkey credential.
func (s *Session) Login(ctx context.Context) error {
	return s.runAction(ctx, "login", s.store.Connect)
}

// Logout disconnects the active wallet.
func (s *Session) Logout(ctx context.Context) error {
	return s.runAction(ctx, "logout", s.store.Disconnect)
}

// runAction brackets an external operation: clear the local error, raise the
// busy flag, and lower it in every exit path. Failures are logged with the
// original error and republished through the normalizer.
func (s *Session) runAction(ctx context.Context, name string, op func(context.Context) error) error {
	if err := s.Start(ctx); err != nil {
		code, msg := faults.Classify(err)
		s.logger.ErrorContext(ctx, "wallet store setup failed",
			"action", name,
			"error", err,
			"code", code,
		)
		s.setError(msg)
		s.metrics.RecordSessionAction(name, "setup_error")
		return err
	}

	s.beginOp()
	defer s.endOp()

	if err := op(ctx); err != nil {
		code, msg := faults.Classify(err)
		s.logger.ErrorContext(ctx, "wallet action failed",
			"action", name,
			"error", err,
			"code", code,
		)
		s.setError(msg)
		s.metrics.RecordSessionAction(name, "error")
		return err
	}

	s.metrics.RecordSessionAction(name, "success")
	return nil
}

func (s *Session) beginOp() {
	s.mu.Lock()
	s.localErr = ""
	s.inFlight++
	s.mu.Unlock()
	s.publish()
}

func (s *Session) endOp() {
	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
	s.publish()
}

func (s *Session) setError(msg string) {
	s.mu.Lock()
	s.localErr = msg
	s.mu.Unlock()
	s.publish()
}

// handleUpstream is the single subscription callback. Upstream errors are
// normalized before publication; the original stays in the logs only.
func (s *Session) handleUpstream(st StoreState) {
	s.mu.Lock()
	s.upstream = st
	if st.Err != nil {
		code, msg := faults.Classify(st.Err)
		s.localErr = msg
		s.logger.Error("wallet store reported error",
			"error", st.Err,
			"code", code,
		)
	}
	s.mu.Unlock()
	s.publish()
}

// publish recomputes the simplified state and, when it differs from the last
// published value, delivers it to listeners. dispatchMu keeps deliveries in
// computation order.
func (s *Session) publish() {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	next := s.computeLocked()
	prev := s.published
	if next == prev {
		s.mu.Unlock()
		return
	}
	s.published = next
	fns := make([]func(State), len(s.listeners))
	copy(fns, s.listeners)
	s.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}

	if prev.Connected != next.Connected {
		s.publishSessionEvent(prev, next)
	}
}

// computeLocked derives the simplified state. The local in-flight counter
// takes precedence over a lagging upstream "not loading" read, so a fast
// user action can never be unmasked by a stale subscription delivery.
func (s *Session) computeLocked() State {
	st := State{
		Connected: s.upstream.Wallet != nil,
		Busy:      s.upstream.IsLoading || s.upstream.IsConnecting || s.inFlight > 0,
		Err:       s.localErr,
	}
	if s.upstream.Wallet != nil {
		st.Address = s.upstream.Wallet.SmartWallet
	}
	return st
}

func (s *Session) publishSessionEvent(prev, next State) {
	if s.events == nil {
		return
	}

	event := &nats.WalletEvent{
		Type:          nats.EventSessionConnected,
		WalletAddress: next.Address,
		PublishedAt:   time.Now().UTC(),
	}
	if !next.Connected {
		event.Type = nats.EventSessionDisconnected
		event.WalletAddress = prev.Address
	}

	// Publish off the dispatch path so a slow broker cannot delay state
	// delivery.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.events.PublishEvent(ctx, event); err != nil {
			s.logger.Warn("failed to publish session event",
				"type", event.Type,
				"error", err,
			)
		}
	}()
}
