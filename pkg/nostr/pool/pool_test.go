package pool_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Hubmakerlabs/feedr/pkg/context"
	"github.com/Hubmakerlabs/feedr/pkg/feed"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/client"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/event/eventest"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/interfaces/relay"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/pool"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/subscription"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/subscriptionid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRelay is an in-memory relay.I. It serves the events it holds to new
// subscriptions, followed by EOSE, and keeps what is published to it.
type fakeRelay struct {
	url string

	mx         sync.Mutex
	reachable  bool
	reject     string
	ctx        context.T
	cancel     context.F
	done       chan struct{}
	stored     []*event.T
	subs       map[subscriptionid.T]*subscription.T
	subscribed int
	closed     int
}

func newFakeRelay(url string, reachable bool) *fakeRelay {
	done := make(chan struct{})
	close(done)
	return &fakeRelay{url: url, reachable: reachable, done: done,
		subs: make(map[subscriptionid.T]*subscription.T)}
}

func (f *fakeRelay) URL() string { return f.url }

func (f *fakeRelay) IsConnected() bool {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.ctx != nil && f.ctx.Err() == nil
}

func (f *fakeRelay) Connect(c context.T) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	if !f.reachable {
		return errors.New("connection refused")
	}
	if f.ctx != nil && f.ctx.Err() == nil {
		return nil
	}
	f.ctx, f.cancel = context.Cancel(context.Bg())
	f.done = make(chan struct{})
	return nil
}

func (f *fakeRelay) Done() <-chan struct{} {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.done
}

func (f *fakeRelay) Subscribe(c context.T, id subscriptionid.T,
	ff filters.T) (*subscription.T, error) {

	f.mx.Lock()
	defer f.mx.Unlock()
	if f.ctx == nil || f.ctx.Err() != nil {
		return nil, client.ErrNetwork
	}
	sub := subscription.New(f.ctx, id, ff)
	f.subs[id] = sub
	f.subscribed++
	context.AfterFunc(c, sub.Close)
	stored := append([]*event.T{}, f.stored...)
	go func() {
		for _, ev := range stored {
			if ff.Match(ev) {
				sub.DispatchEvent(ev)
			}
		}
		sub.DispatchEose()
	}()
	return sub, nil
}

func (f *fakeRelay) Unsubscribe(id subscriptionid.T) {
	f.mx.Lock()
	defer f.mx.Unlock()
	if sub, ok := f.subs[id]; ok {
		sub.Close()
		delete(f.subs, id)
	}
}

func (f *fakeRelay) Publish(c context.T, ev *event.T) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	if f.ctx == nil || f.ctx.Err() != nil {
		return client.ErrNetwork
	}
	if f.reject != "" {
		return &client.RejectedError{Relay: f.url, Reason: f.reject}
	}
	f.stored = append(f.stored, ev)
	return nil
}

// deliver pushes a live event to every open subscription.
func (f *fakeRelay) deliver(ev *event.T) {
	f.mx.Lock()
	var subs []*subscription.T
	for _, sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mx.Unlock()
	for _, sub := range subs {
		if sub.Filters.Match(ev) {
			sub.DispatchEvent(ev)
		}
	}
}

func (f *fakeRelay) drop() {
	f.mx.Lock()
	defer f.mx.Unlock()
	if f.cancel != nil {
		f.cancel()
		close(f.done)
		f.cancel = nil
		f.subs = make(map[subscriptionid.T]*subscription.T)
	}
}

func (f *fakeRelay) setReachable(b bool) {
	f.mx.Lock()
	f.reachable = b
	f.mx.Unlock()
}

func (f *fakeRelay) Close() error {
	f.drop()
	f.mx.Lock()
	f.closed++
	f.mx.Unlock()
	return nil
}

var _ relay.I = (*fakeRelay)(nil)

// fakes makes a pool whose dialer hands out the given relays by URL.
func fakes(t *testing.T, relays ...*fakeRelay) *pool.T {
	t.Helper()
	byURL := make(map[string]*fakeRelay)
	for _, r := range relays {
		byURL[r.url] = r
	}
	p := pool.New(context.Bg(),
		pool.WithDialer(func(url string) relay.I {
			if r, ok := byURL[url]; ok {
				return r
			}
			return newFakeRelay(url, false)
		}),
		pool.WithBackoff{Min: time.Millisecond, Max: 5 * time.Millisecond},
		pool.WithConnectTimeout(time.Second),
	)
	t.Cleanup(p.Close)
	return p
}

func ready(t *testing.T, p *pool.T) int {
	t.Helper()
	c, cancel := context.Timeout(context.Bg(), 3*time.Second)
	defer cancel()
	return p.WaitReady(c)
}

func TestAddRemoveList(t *testing.T) {
	a := newFakeRelay("wss://a.example.com", true)
	b := newFakeRelay("wss://b.example.com", false)
	p := fakes(t, a, b)

	assert.True(t, p.Add("wss://b.example.com"))
	assert.True(t, p.Add("a.example.com/"))
	// adding again under a different spelling is a no-op
	assert.False(t, p.Add("wss://A.example.com"))
	assert.False(t, p.Add(""))
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, 1, ready(t, p))

	list := p.List()
	require.Len(t, list, 2)
	assert.Equal(t, "wss://a.example.com", list[0].URL)
	assert.Equal(t, relay.Connected, list[0].Status)
	assert.Equal(t, "wss://b.example.com", list[1].URL)
	assert.NotEqual(t, relay.Connected, list[1].Status)

	s, err := p.Status("wss://a.example.com")
	require.NoError(t, err)
	assert.Equal(t, relay.Connected, s)
	_, err = p.Status("wss://nowhere.example.com")
	assert.ErrorIs(t, err, pool.ErrNotFound)

	// removal closes the connection before returning
	assert.True(t, p.Remove("wss://a.example.com"))
	a.mx.Lock()
	assert.Positive(t, a.closed)
	a.mx.Unlock()
	assert.False(t, a.IsConnected())
	assert.False(t, p.Remove("wss://a.example.com"))
	assert.Equal(t, 1, p.Len())
}

func TestConcurrentAddRemove(t *testing.T) {
	p := fakes(t, newFakeRelay("wss://a.example.com", true))
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.Add("wss://a.example.com")
		}()
		go func() {
			defer wg.Done()
			p.Remove("wss://a.example.com")
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, p.Len(), 1)
}

func TestPublishAllPartialSuccess(t *testing.T) {
	a := newFakeRelay("wss://a.example.com", true)
	b := newFakeRelay("wss://b.example.com", false)
	c := newFakeRelay("wss://c.example.com", true)
	c.reject = "blocked: not on the list"
	p := fakes(t, a, b, c)
	for _, r := range []*fakeRelay{a, b, c} {
		p.Add(r.url)
	}
	require.Equal(t, 2, ready(t, p))

	note := eventest.Note(t, eventest.Keypair(t), 1700000000, "hello")
	res := p.PublishAll(context.Bg(), note)
	require.Len(t, res, 3)
	assert.Equal(t, 1, res.Accepted())
	assert.Equal(t, pool.Accepted, res[0].Outcome)
	assert.Equal(t, pool.Unreachable, res[1].Outcome)
	assert.ErrorIs(t, res[1].Err, client.ErrNetwork)
	assert.Equal(t, pool.Rejected, res[2].Outcome)
	assert.Equal(t, "blocked: not on the list", res[2].Reason)
	assert.Equal(t, "rejected", res[2].Outcome.String())
}

func TestPublishThenFetchHoldsOneCopy(t *testing.T) {
	a := newFakeRelay("wss://a.example.com", true)
	b := newFakeRelay("wss://b.example.com", false)
	p := fakes(t, a, b)
	p.Add(a.url)
	p.Add(b.url)
	require.Equal(t, 1, ready(t, p))

	kp := eventest.Keypair(t)
	note := eventest.Note(t, kp, 1700000000, "hello")
	res := p.PublishAll(context.Bg(), note)
	assert.Equal(t, 1, res.Accepted())

	// b comes up later already holding the note, as if it got it elsewhere
	b.mx.Lock()
	b.stored = append(b.stored, note)
	b.mx.Unlock()
	b.setReachable(true)
	require.Eventually(t, b.IsConnected, 3*time.Second, time.Millisecond)

	agg := feed.New()
	sub := p.SubscribeAll(context.Bg(),
		filters.T{{Authors: []string{kp.PubKey()}}})
	eose := map[string]bool{}
	events := 0
	for len(eose) < 2 {
		select {
		case in := <-sub.Events:
			if in.EOSE {
				eose[in.Relay] = true
				continue
			}
			events++
			_, err := agg.Ingest(in.Event, in.Relay)
			require.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for EOSE from both relays")
		}
	}
	sub.Close()
	assert.Equal(t, 2, events)
	snap := agg.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, note.ID(), snap[0].ID())
}

func TestEventsPrecedeTheirEOSE(t *testing.T) {
	a := newFakeRelay("wss://a.example.com", true)
	kp := eventest.Keypair(t)
	a.stored = eventest.RandomNotes(t, kp, 30)
	p := fakes(t, a)
	p.Add(a.url)
	require.Equal(t, 1, ready(t, p))
	sub := p.SubscribeAll(context.Bg(), filters.T{{Kinds: []kind.T{kind.TextNote}}})
	defer sub.Close()
	n := 0
	for {
		select {
		case in := <-sub.Events:
			if in.EOSE {
				assert.Equal(t, 30, n)
				return
			}
			n++
		case <-time.After(3 * time.Second):
			t.Fatal("no EOSE")
		}
	}
}

func TestSubscriptionReissuedOnReconnect(t *testing.T) {
	a := newFakeRelay("wss://a.example.com", true)
	p := fakes(t, a)
	p.Add(a.url)
	require.Equal(t, 1, ready(t, p))
	kp := eventest.Keypair(t)
	sub := p.SubscribeAll(context.Bg(), filters.T{{Authors: []string{kp.PubKey()}}})
	defer sub.Close()
	expectEOSE(t, sub)
	require.Eventually(t, func() bool {
		return len(p.List()[0].Subscriptions) == 1
	}, 3*time.Second, time.Millisecond)
	assert.Equal(t, sub.ID.String(), p.List()[0].Subscriptions[0])

	a.drop()
	// the pool reconnects and subscribes again, so live events flow
	expectEOSE(t, sub)
	a.mx.Lock()
	assert.Equal(t, 2, a.subscribed)
	a.mx.Unlock()
	live := eventest.Note(t, kp, 1700000000, "live")
	a.deliver(live)
	select {
	case in := <-sub.Events:
		require.False(t, in.EOSE)
		assert.Equal(t, live.ID(), in.Event.ID())
		assert.Equal(t, a.url, in.Relay)
	case <-time.After(3 * time.Second):
		t.Fatal("live event not forwarded after reconnect")
	}
}

func expectEOSE(t *testing.T, sub *pool.Subscription) {
	t.Helper()
	select {
	case in := <-sub.Events:
		assert.True(t, in.EOSE)
	case <-time.After(3 * time.Second):
		t.Fatal("no EOSE")
	}
}

func TestCloseStopsEverything(t *testing.T) {
	a := newFakeRelay("wss://a.example.com", true)
	b := newFakeRelay("wss://b.example.com", true)
	p := pool.New(context.Bg(), pool.WithDialer(func(url string) relay.I {
		if url == a.url {
			return a
		}
		return b
	}))
	p.Add(a.url)
	p.Add(b.url)
	require.Equal(t, 2, ready(t, p))
	sub := p.SubscribeAll(context.Bg(), filters.T{{}})
	p.Close()
	// the subscription channel is closed once drained
	for range sub.Events {
	}
	for _, r := range []*fakeRelay{a, b} {
		assert.False(t, r.IsConnected())
		r.mx.Lock()
		assert.Positive(t, r.closed)
		r.mx.Unlock()
	}
	assert.False(t, p.Add("wss://c.example.com"))
}

func TestAddRacingClose(t *testing.T) {
	var (
		mx      sync.Mutex
		dialled []*fakeRelay
	)
	p := pool.New(context.Bg(),
		pool.WithDialer(func(url string) relay.I {
			r := newFakeRelay(url, true)
			mx.Lock()
			dialled = append(dialled, r)
			mx.Unlock()
			return r
		}),
		pool.WithBackoff{Min: time.Millisecond, Max: 5 * time.Millisecond},
	)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.Add(fmt.Sprintf("wss://r%d.example.com", i))
		}(i)
	}
	p.Close()
	wg.Wait()
	assert.False(t, p.Add("wss://late.example.com"))
	// every relay the pool started was stopped by Close
	mx.Lock()
	defer mx.Unlock()
	for _, r := range dialled {
		assert.False(t, r.IsConnected(), r.url)
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	a := newFakeRelay("wss://a.example.com", true)
	p := fakes(t, a)
	p.Add(a.url)
	require.Equal(t, 1, ready(t, p))
	c, cancel := context.Cancel(context.Bg())
	sub := p.SubscribeAll(c, filters.T{{}})
	cancel()
	done := make(chan struct{})
	go func() {
		for range sub.Events {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("subscription channel not closed")
	}
}
