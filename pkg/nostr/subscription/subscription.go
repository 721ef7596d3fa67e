package subscription

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/Hubmakerlabs/feedr/pkg/context"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/subscriptionid"
	"github.com/Hubmakerlabs/feedr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

// EventBuffer is the capacity of the Events channel.
const EventBuffer = 64

// T is a REQ open on one relay connection. It lives no longer than the
// connection it was opened on.
type T struct {
	ID      subscriptionid.T
	Filters filters.T

	// Events emits every EVENT that arrives for the subscription in the
	// order received. It is closed when the subscription ends.
	Events chan *event.T

	// EndOfStoredEvents is closed when the relay sends EOSE.
	EndOfStoredEvents chan struct{}

	// ClosedReason receives the reason when the relay sends CLOSED.
	ClosedReason chan string

	// Context is done when the subscription ends.
	Context context.T
	cancel  context.F

	mu     sync.Mutex
	ended  bool
	eosed  atomic.Bool
	closed atomic.Bool
}

// New creates a subscription that ends when c is done or Close is called.
func New(c context.T, id subscriptionid.T, ff filters.T) (sub *T) {
	sub = &T{
		ID:                id,
		Filters:           ff,
		Events:            make(chan *event.T, EventBuffer),
		EndOfStoredEvents: make(chan struct{}),
		ClosedReason:      make(chan string, 1),
	}
	sub.Context, sub.cancel = context.Cancel(c)
	go func() {
		<-sub.Context.Done()
		sub.end()
	}()
	return
}

// DispatchEvent delivers ev, blocking until the reader takes it or the
// subscription ends.
func (sub *T) DispatchEvent(ev *event.T) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.ended {
		return
	}
	select {
	case sub.Events <- ev:
	case <-sub.Context.Done():
	}
}

// DispatchEose closes EndOfStoredEvents. Only the first call has an effect.
func (sub *T) DispatchEose() {
	if sub.eosed.CompareAndSwap(false, true) {
		close(sub.EndOfStoredEvents)
	}
}

// DispatchClosed records the relay's reason and ends the subscription.
func (sub *T) DispatchClosed(reason string) {
	if sub.closed.CompareAndSwap(false, true) {
		sub.ClosedReason <- reason
		log.D.F("subscription %s closed by relay: %s", sub.ID, reason)
	}
	sub.Close()
}

// Close ends the subscription locally. It does not send CLOSE to the relay;
// the relay connection does that on Unsubscribe.
func (sub *T) Close() { sub.cancel() }

// EOSE reports whether the relay has signalled end of stored events.
func (sub *T) EOSE() bool { return sub.eosed.Load() }

func (sub *T) end() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.ended {
		sub.ended = true
		close(sub.Events)
	}
}
