// Package pool keeps a set of relays connected and fans publishes out to
// them and subscription results in from them.
package pool

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hubmakerlabs/feedr/pkg/context"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/client"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/interfaces/relay"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/normalize"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/subscription"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/subscriptionid"
	"github.com/Hubmakerlabs/feedr/pkg/slog"
	"github.com/fiatjaf/generic-ristretto/z"
	"github.com/puzpuzpuz/xsync/v2"
)

var log, chk = slog.New(os.Stderr)

// ErrNotFound is returned for a relay URL the pool does not hold.
var ErrNotFound = errors.New("relay not found")

const MAX_LOCKS = 50

var namedMutexPool = make([]sync.Mutex, MAX_LOCKS)

// namedLock serializes operations on one relay URL without holding a lock
// over the whole pool.
func namedLock(name string) (unlock func()) {
	idx := z.MemHashString(name) % MAX_LOCKS
	namedMutexPool[idx].Lock()
	return namedMutexPool[idx].Unlock
}

// Dialer makes the relay.I for a normalized URL. It must not connect.
type Dialer func(url string) relay.I

type Option interface {
	IsPoolOption()
	Apply(*T)
}

// WithDialer replaces the websocket relay factory, for test doubles and
// other transports.
type WithDialer Dialer

func (_ WithDialer) IsPoolOption() {}
func (o WithDialer) Apply(p *T)    { p.dial = Dialer(o) }

// WithConnectTimeout bounds each connection attempt.
type WithConnectTimeout time.Duration

func (_ WithConnectTimeout) IsPoolOption() {}
func (o WithConnectTimeout) Apply(p *T)    { p.connectTimeout = time.Duration(o) }

// WithPublishTimeout bounds the wait for each relay's OK.
type WithPublishTimeout time.Duration

func (_ WithPublishTimeout) IsPoolOption() {}
func (o WithPublishTimeout) Apply(p *T)    { p.publishTimeout = time.Duration(o) }

// WithBackoff sets the reconnect delay bounds.
type WithBackoff struct{ Min, Max time.Duration }

func (_ WithBackoff) IsPoolOption() {}
func (o WithBackoff) Apply(p *T)    { p.backoffMin, p.backoffMax = o.Min, o.Max }

var (
	_ Option = WithDialer(nil)
	_ Option = WithConnectTimeout(0)
	_ Option = WithPublishTimeout(0)
	_ Option = WithBackoff{}
)

// T is a pool of relays. The record set is only changed through Add and
// Remove.
type T struct {
	Context context.T
	cancel  context.F
	records *xsync.MapOf[string, *record]
	subs    *xsync.MapOf[string, *Subscription]
	wg      sync.WaitGroup
	// closeMx orders wg.Add in Add against wg.Wait in Close.
	closeMx sync.Mutex
	closed  bool

	dial           Dialer
	connectTimeout time.Duration
	publishTimeout time.Duration
	backoffMin     time.Duration
	backoffMax     time.Duration
}

// record is the pool's state for one relay.
type record struct {
	url     string
	rl      relay.I
	status  atomic.Int32
	cancel  context.F
	done    chan struct{} // closed when the supervisor has exited
	settled chan struct{} // closed after the first connection attempt
	settle  sync.Once
	mx      sync.Mutex
	subs    map[subscriptionid.T]*subscription.T
}

func (r *record) Status() relay.Status { return relay.Status(r.status.Load()) }

// removeSub forgets rs unless a newer subscription on a later connection
// has already replaced it.
func (r *record) removeSub(rs *subscription.T) {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.subs[rs.ID] == rs {
		delete(r.subs, rs.ID)
	}
}

func (r *record) subIDs() (ids []string) {
	r.mx.Lock()
	defer r.mx.Unlock()
	for id := range r.subs {
		ids = append(ids, id.String())
	}
	sort.Strings(ids)
	return
}

// Record is a snapshot of one relay's state.
type Record struct {
	URL           string
	Status        relay.Status
	Subscriptions []string
}

// New creates an empty pool. Relays are stopped when c is done or Close is
// called.
func New(c context.T, opts ...Option) (p *T) {
	p = &T{
		records:        xsync.NewMapOf[*record](),
		subs:           xsync.NewMapOf[*Subscription](),
		connectTimeout: client.DefaultConnectTimeout,
		publishTimeout: client.DefaultPublishTimeout,
		backoffMin:     client.DefaultBackoffMin,
		backoffMax:     client.DefaultBackoffMax,
	}
	p.Context, p.cancel = context.Cancel(c)
	for _, opt := range opts {
		opt.Apply(p)
	}
	if p.dial == nil {
		timeout := p.publishTimeout
		p.dial = func(url string) relay.I {
			return client.New(url, client.WithPublishTimeout(timeout))
		}
	}
	return
}

// Add starts maintaining a connection to url. It returns false if the relay
// is already in the pool or the URL is not usable.
func (p *T) Add(url string) bool {
	nm := normalize.URL(url)
	if nm == "" {
		log.W.F("not adding invalid relay URL '%s'", url)
		return false
	}
	defer namedLock(nm)()
	if _, ok := p.records.Load(nm); ok {
		return false
	}
	p.closeMx.Lock()
	if p.closed || p.Context.Err() != nil {
		p.closeMx.Unlock()
		return false
	}
	p.wg.Add(1)
	p.closeMx.Unlock()
	c, cancel := context.Cancel(p.Context)
	rec := &record{
		url:     nm,
		rl:      p.dial(nm),
		cancel:  cancel,
		done:    make(chan struct{}),
		settled: make(chan struct{}),
		subs:    make(map[subscriptionid.T]*subscription.T),
	}
	p.records.Store(nm, rec)
	go func() {
		defer p.wg.Done()
		defer close(rec.done)
		defer rec.settle.Do(func() { close(rec.settled) })
		client.Supervise(c, rec.rl, client.NewBackoff(p.backoffMin,
			p.backoffMax), client.Hooks{
			ConnectTimeout: p.connectTimeout,
			OnStatus: func(s relay.Status) {
				rec.status.Store(int32(s))
				log.D.F("relay %s %s", nm, s)
				if s == relay.Connected || s == relay.BackingOff {
					rec.settle.Do(func() { close(rec.settled) })
				}
			},
			OnConnect: func(c context.T, rl relay.I) {
				p.subs.Range(func(_ string, sub *Subscription) bool {
					sub.attach(rec)
					return true
				})
			},
		})
	}()
	log.I.Ln("added relay", nm)
	return true
}

// Remove stops the relay's connection and forgets it. It returns once the
// connection is closed, or immediately with false if url is not in the pool.
func (p *T) Remove(url string) bool {
	nm := normalize.URL(url)
	defer namedLock(nm)()
	rec, ok := p.records.LoadAndDelete(nm)
	if !ok {
		return false
	}
	rec.cancel()
	<-rec.done
	log.I.Ln("removed relay", nm)
	return true
}

// List returns the state of every relay, sorted by URL.
func (p *T) List() (records []Record) {
	p.records.Range(func(url string, rec *record) bool {
		records = append(records, Record{
			URL:           url,
			Status:        rec.Status(),
			Subscriptions: rec.subIDs(),
		})
		return true
	})
	sort.Slice(records, func(i, j int) bool {
		return records[i].URL < records[j].URL
	})
	return
}

// Status returns the connection state of one relay.
func (p *T) Status(url string) (s relay.Status, err error) {
	rec, ok := p.records.Load(normalize.URL(url))
	if !ok {
		return relay.Disconnected, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	return rec.Status(), nil
}

// Len is the number of relays in the pool.
func (p *T) Len() int { return p.records.Size() }

// WaitReady waits until every relay has finished its first connection
// attempt, or c is done, and returns how many are connected.
func (p *T) WaitReady(c context.T) (connected int) {
	var recs []*record
	p.records.Range(func(_ string, rec *record) bool {
		recs = append(recs, rec)
		return true
	})
	for _, rec := range recs {
		select {
		case <-rec.settled:
		case <-c.Done():
		}
	}
	for _, rec := range recs {
		if rec.rl.IsConnected() {
			connected++
		}
	}
	return
}

// Close ends all subscriptions, stops every relay and waits for their
// goroutines to exit. Add fails once Close has begun.
func (p *T) Close() {
	p.closeMx.Lock()
	p.closed = true
	p.closeMx.Unlock()
	p.subs.Range(func(_ string, sub *Subscription) bool {
		sub.Close()
		return true
	})
	p.cancel()
	p.wg.Wait()
	log.D.Ln("pool closed")
}
