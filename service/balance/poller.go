package balance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/pkwallet/service/faults"
	"github.com/brojonat/pkwallet/service/metrics"
	"github.com/brojonat/pkwallet/service/nats"
	"github.com/brojonat/pkwallet/service/solana"
)

// DefaultInterval is how often the poller refetches while an address is set.
const DefaultInterval = 30 * time.Second

// Reader fetches the lamport balance for an address.
type Reader interface {
	GetBalance(ctx context.Context, address string) (uint64, error)
}

// State is the published balance snapshot for the current address.
type State struct {
	Lamports *uint64
	SOL      *float64
	Loading  bool
	Err      string // normalized user-facing message
}

// Poller maintains the balance for whatever address is current. Every fetch
// is keyed to the (address, generation) pair captured at dispatch time;
// results arriving after the address changed are discarded, never merged.
type Poller struct {
	reader   Reader
	interval time.Duration
	events   nats.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger

	// dispatchMu keeps listener deliveries in state order, as in the
	// session reconciler. mu guards the fields below.
	dispatchMu sync.Mutex
	mu         sync.Mutex
	address    string
	gen        uint64
	stop       chan struct{}
	closed     bool
	state      State
	listeners  []func(State)
}

// NewPoller creates a poller. events may be nil; metrics may be nil.
// interval <= 0 selects DefaultInterval.
func NewPoller(reader Reader, interval time.Duration, events nats.Publisher, m *metrics.Metrics, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		reader:   reader,
		interval: interval,
		events:   events,
		metrics:  m,
		logger:   logger,
	}
}

// Snapshot returns a copy of the current balance state.
func (p *Poller) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneState(p.state)
}

// Notify registers a listener invoked with every newly published state.
func (p *Poller) Notify(fn func(State)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// SetAddress switches the poller to a new address. The old polling loop is
// cancelled before the state resets; an empty address stops polling
// entirely. Setting the same address again is a no-op.
func (p *Poller) SetAddress(address string) {
	p.mu.Lock()
	if p.closed || address == p.address {
		p.mu.Unlock()
		return
	}

	p.gen++
	gen := p.gen
	p.address = address
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
	p.state = State{}

	var stop chan struct{}
	if address != "" {
		stop = make(chan struct{})
		p.stop = stop
	}
	p.mu.Unlock()

	p.publish()

	if address != "" {
		go p.loop(address, gen, stop)
	}
}

// Refresh fetches the current address's balance on demand, independent of
// the timer. A no-op when no address is set.
func (p *Poller) Refresh(ctx context.Context) {
	p.mu.Lock()
	address, gen, closed := p.address, p.gen, p.closed
	p.mu.Unlock()
	if closed || address == "" {
		return
	}
	p.fetch(ctx, address, gen, "refresh")
}

// Close stops polling permanently. Timer fires after Close are no-ops.
func (p *Poller) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.gen++
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
}

// loop fetches immediately, then on every tick until cancelled. The address
// and generation are captured once so every fetch carries its dispatch-time
// key.
func (p *Poller) loop(address string, gen uint64, stop chan struct{}) {
	p.fetch(context.Background(), address, gen, "address_change")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.fetch(context.Background(), address, gen, "interval")
		}
	}
}

// fetch performs one balance read. The generation check on completion is the
// stale guard: a result keyed to an old address is dropped, never merged.
func (p *Poller) fetch(ctx context.Context, address string, gen uint64, trigger string) {
	p.mu.Lock()
	if p.closed || gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.state.Loading = true
	p.mu.Unlock()
	p.publish()

	start := time.Now()
	lamports, err := p.reader.GetBalance(ctx, address)
	duration := time.Since(start).Seconds()

	p.mu.Lock()
	if p.closed || gen != p.gen {
		p.mu.Unlock()
		p.metrics.RecordStaleBalanceDrop(trigger)
		p.logger.Debug("discarding stale balance result",
			"address", address,
			"trigger", trigger,
		)
		return
	}

	var changed bool
	if err != nil {
		p.metrics.RecordBalancePoll("error", trigger, duration)
		p.logger.Warn("balance fetch failed",
			"address", address,
			"trigger", trigger,
			"error", err,
		)
		// Keep the last good balance on screen; only the error changes.
		p.state.Loading = false
		p.state.Err = faults.Normalize(err)
	} else {
		p.metrics.RecordBalancePoll("success", trigger, duration)
		changed = p.state.Lamports == nil || *p.state.Lamports != lamports
		sol := solana.LamportsToSOL(lamports)
		p.state = State{Lamports: &lamports, SOL: &sol}
	}
	p.mu.Unlock()
	p.publish()

	if changed {
		p.publishBalanceEvent(address, lamports)
	}
}

// publish delivers the current state to listeners, in order.
func (p *Poller) publish() {
	p.dispatchMu.Lock()
	defer p.dispatchMu.Unlock()

	p.mu.Lock()
	st := cloneState(p.state)
	fns := make([]func(State), len(p.listeners))
	copy(fns, p.listeners)
	p.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

func (p *Poller) publishBalanceEvent(address string, lamports uint64) {
	if p.events == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		event := &nats.WalletEvent{
			Type:          nats.EventBalanceChanged,
			WalletAddress: address,
			Lamports:      &lamports,
			PublishedAt:   time.Now().UTC(),
		}
		if err := p.events.PublishEvent(ctx, event); err != nil {
			p.logger.Warn("failed to publish balance event",
				"address", address,
				"error", err,
			)
		}
	}()
}

func cloneState(st State) State {
	out := State{Loading: st.Loading, Err: st.Err}
	if st.Lamports != nil {
		v := *st.Lamports
		out.Lamports = &v
	}
	if st.SOL != nil {
		v := *st.SOL
		out.SOL = &v
	}
	return out
}
