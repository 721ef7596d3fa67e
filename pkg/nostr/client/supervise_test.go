package client

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Hubmakerlabs/feedr/pkg/context"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/interfaces/relay"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/subscription"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/subscriptionid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDoublesWithinBounds(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second)
	want := []time.Duration{100, 200, 400, 800, 1000, 1000}
	for i, w := range want {
		w *= time.Millisecond
		d := b.Next()
		assert.LessOrEqual(t, d, w, "attempt %d", i)
		assert.GreaterOrEqual(t, d, w-w/4, "attempt %d", i)
	}
	b.Reset()
	assert.LessOrEqual(t, b.Next(), 100*time.Millisecond)
}

func TestNewBackoffDefaults(t *testing.T) {
	b := NewBackoff(0, 0)
	assert.Equal(t, DefaultBackoffMin, b.Min)
	assert.Equal(t, DefaultBackoffMax, b.Max)
}

// flakyRelay fails its first connection attempts and can be dropped on
// demand.
type flakyRelay struct {
	mx       sync.Mutex
	failures int
	attempts int
	done     chan struct{}
	closed   bool
}

func newFlakyRelay(failures int) *flakyRelay {
	return &flakyRelay{failures: failures, done: closedChan}
}

func (f *flakyRelay) URL() string { return "wss://flaky.example.com" }

func (f *flakyRelay) IsConnected() bool {
	f.mx.Lock()
	defer f.mx.Unlock()
	select {
	case <-f.done:
		return false
	default:
		return true
	}
}

func (f *flakyRelay) Connect(c context.T) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.attempts++
	if f.attempts <= f.failures {
		return errors.New("connection refused")
	}
	f.done = make(chan struct{})
	return nil
}

func (f *flakyRelay) Done() <-chan struct{} {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.done
}

func (f *flakyRelay) drop() {
	f.mx.Lock()
	defer f.mx.Unlock()
	select {
	case <-f.done:
	default:
		close(f.done)
	}
}

func (f *flakyRelay) Subscribe(context.T, subscriptionid.T,
	filters.T) (*subscription.T, error) {
	return nil, ErrNetwork
}

func (f *flakyRelay) Unsubscribe(subscriptionid.T) {}

func (f *flakyRelay) Publish(context.T, *event.T) error { return ErrNetwork }

func (f *flakyRelay) Close() error {
	f.drop()
	f.mx.Lock()
	f.closed = true
	f.mx.Unlock()
	return nil
}

var _ relay.I = (*flakyRelay)(nil)

func TestSuperviseReconnects(t *testing.T) {
	rl := newFlakyRelay(2)
	statuses := make(chan relay.Status, 64)
	connects := make(chan struct{}, 8)
	c, cancel := context.Cancel(context.Bg())
	finished := make(chan struct{})
	go func() {
		Supervise(c, rl, NewBackoff(time.Millisecond, 4*time.Millisecond),
			Hooks{
				OnStatus:  func(s relay.Status) { statuses <- s },
				OnConnect: func(context.T, relay.I) { connects <- struct{}{} },
			})
		close(finished)
	}()
	waitSignal(t, connects)
	rl.drop()
	waitSignal(t, connects)
	cancel()
	select {
	case <-finished:
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor did not stop")
	}
	rl.mx.Lock()
	assert.True(t, rl.closed)
	assert.Equal(t, 4, rl.attempts)
	rl.mx.Unlock()

	close(statuses)
	var seen []relay.Status
	for s := range statuses {
		seen = append(seen, s)
	}
	require.NotEmpty(t, seen)
	assert.Equal(t, []relay.Status{
		relay.Connecting, relay.BackingOff,
		relay.Connecting, relay.BackingOff,
		relay.Connecting, relay.Connected, relay.BackingOff,
		relay.Connecting, relay.Connected,
	}, seen[:9])
	assert.Equal(t, relay.Disconnected, seen[len(seen)-1])
}

func waitSignal(t *testing.T, c chan struct{}) {
	t.Helper()
	select {
	case <-c:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for signal")
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "backing-off", relay.BackingOff.String())
	assert.Equal(t, "connected", relay.Connected.String())
	assert.Equal(t, "unknown", relay.Status(42).String())
}
