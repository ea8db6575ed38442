package balance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/pkwallet/service/nats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingReader returns configured balances per address, optionally gating
// a call until the test releases it.
type blockingReader struct {
	mu      sync.Mutex
	gates   map[string]chan struct{}
	results map[string]uint64
	errs    map[string]error
	calls   []string
}

func newBlockingReader() *blockingReader {
	return &blockingReader{
		gates:   make(map[string]chan struct{}),
		results: make(map[string]uint64),
		errs:    make(map[string]error),
	}
}

func (r *blockingReader) GetBalance(ctx context.Context, address string) (uint64, error) {
	r.mu.Lock()
	r.calls = append(r.calls, address)
	gate := r.gates[address]
	r.mu.Unlock()

	if gate != nil {
		<-gate
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errs[address]; err != nil {
		return 0, err
	}
	return r.results[address], nil
}

func (r *blockingReader) callCount(address string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.calls {
		if a == address {
			n++
		}
	}
	return n
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPoller_ImmediateFetchOnAddress(t *testing.T) {
	reader := newBlockingReader()
	reader.results["A"] = 1_500_000_000

	p := NewPoller(reader, time.Hour, nil, nil, testLogger())
	defer p.Close()

	p.SetAddress("A")

	require.Eventually(t, func() bool {
		st := p.Snapshot()
		return st.Lamports != nil && *st.Lamports == 1_500_000_000
	}, 2*time.Second, 5*time.Millisecond)

	st := p.Snapshot()
	require.NotNil(t, st.SOL)
	assert.Equal(t, 1.5, *st.SOL)
	assert.False(t, st.Loading)
	assert.Empty(t, st.Err)
}

func TestPoller_StaleResultDiscarded(t *testing.T) {
	reader := newBlockingReader()
	gateA := make(chan struct{})
	reader.gates["A"] = gateA
	reader.results["A"] = 111
	reader.results["B"] = 222

	p := NewPoller(reader, time.Hour, nil, nil, testLogger())
	defer p.Close()

	// Dispatch a fetch for A that stays in flight.
	p.SetAddress("A")
	require.Eventually(t, func() bool {
		return reader.callCount("A") == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Switch to B; B's fetch resolves first.
	p.SetAddress("B")
	require.Eventually(t, func() bool {
		st := p.Snapshot()
		return st.Lamports != nil && *st.Lamports == 222
	}, 2*time.Second, 5*time.Millisecond)

	// Now let A's stale fetch complete. It must be dropped.
	close(gateA)
	time.Sleep(50 * time.Millisecond)

	st := p.Snapshot()
	require.NotNil(t, st.Lamports)
	assert.Equal(t, uint64(222), *st.Lamports, "stale result for A must not overwrite B's balance")
}

func TestPoller_IntervalRefetch(t *testing.T) {
	reader := newBlockingReader()
	reader.results["A"] = 42

	p := NewPoller(reader, 15*time.Millisecond, nil, nil, testLogger())
	defer p.Close()

	p.SetAddress("A")

	require.Eventually(t, func() bool {
		return reader.callCount("A") >= 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPoller_EmptyAddressStopsPolling(t *testing.T) {
	reader := newBlockingReader()
	reader.results["A"] = 42

	p := NewPoller(reader, 15*time.Millisecond, nil, nil, testLogger())
	defer p.Close()

	p.SetAddress("A")
	require.Eventually(t, func() bool {
		return p.Snapshot().Lamports != nil
	}, 2*time.Second, 5*time.Millisecond)

	p.SetAddress("")

	st := p.Snapshot()
	assert.Nil(t, st.Lamports, "balance must clear when the address clears")
	assert.Nil(t, st.SOL)
	assert.Empty(t, st.Err)

	// The old loop must be cancelled: call count settles.
	time.Sleep(60 * time.Millisecond)
	n := reader.callCount("A")
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, n, reader.callCount("A"), "no fetches after the address clears")
}

func TestPoller_ManualRefresh(t *testing.T) {
	reader := newBlockingReader()
	reader.results["A"] = 42

	p := NewPoller(reader, time.Hour, nil, nil, testLogger())
	defer p.Close()

	p.SetAddress("A")
	require.Eventually(t, func() bool {
		return reader.callCount("A") == 1
	}, 2*time.Second, 5*time.Millisecond)

	p.Refresh(context.Background())
	assert.Equal(t, 2, reader.callCount("A"))
}

func TestPoller_RefreshWithoutAddressIsNoOp(t *testing.T) {
	reader := newBlockingReader()
	p := NewPoller(reader, time.Hour, nil, nil, testLogger())
	defer p.Close()

	p.Refresh(context.Background())
	assert.Empty(t, reader.calls)
}

func TestPoller_FetchErrorKeepsLastBalance(t *testing.T) {
	reader := newBlockingReader()
	reader.results["A"] = 42

	p := NewPoller(reader, time.Hour, nil, nil, testLogger())
	defer p.Close()

	p.SetAddress("A")
	require.Eventually(t, func() bool {
		return p.Snapshot().Lamports != nil
	}, 2*time.Second, 5*time.Millisecond)

	reader.mu.Lock()
	reader.errs["A"] = errors.New("dial tcp: connection refused")
	reader.mu.Unlock()

	p.Refresh(context.Background())

	st := p.Snapshot()
	assert.Equal(t, "A network error occurred. Check your connection and try again.", st.Err)
	require.NotNil(t, st.Lamports, "last good balance survives a failed refresh")
	assert.Equal(t, uint64(42), *st.Lamports)
	assert.False(t, st.Loading)
}

func TestPoller_CloseIsTerminal(t *testing.T) {
	reader := newBlockingReader()
	reader.results["A"] = 42

	p := NewPoller(reader, 15*time.Millisecond, nil, nil, testLogger())
	p.SetAddress("A")
	require.Eventually(t, func() bool {
		return reader.callCount("A") >= 1
	}, 2*time.Second, 5*time.Millisecond)

	p.Close()
	n := reader.callCount("A")
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, n, reader.callCount("A"), "no fetches after Close")

	p.SetAddress("B")
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, reader.callCount("B"), "SetAddress after Close is a no-op")
}

func TestPoller_BalanceChangeEvent(t *testing.T) {
	reader := newBlockingReader()
	reader.results["A"] = 42

	pub := nats.NewMockPublisher()
	p := NewPoller(reader, time.Hour, pub, nil, testLogger())
	defer p.Close()

	p.SetAddress("A")
	require.Eventually(t, func() bool {
		events := pub.GetPublishedEventsOfType(nats.EventBalanceChanged)
		return len(events) == 1
	}, 2*time.Second, 5*time.Millisecond)

	events := pub.GetPublishedEventsOfType(nats.EventBalanceChanged)
	require.Len(t, events, 1)
	assert.Equal(t, "A", events[0].WalletAddress)
	require.NotNil(t, events[0].Lamports)
	assert.Equal(t, uint64(42), *events[0].Lamports)

	// An unchanged balance publishes no further events.
	p.Refresh(context.Background())
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, pub.GetPublishedEventsOfType(nats.EventBalanceChanged), 1)
}
