// Package feed merges events arriving from many relays into one verified,
// deduplicated, newest first list of bounded length.
package feed

import (
	"os"
	"sort"
	"sync"

	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/feedr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

// DefaultCapacity is the number of events retained when no capacity is
// given.
const DefaultCapacity = 500

// Verifier checks an event before it is admitted.
type Verifier func(ev *event.T) error

type Option func(a *Aggregator)

// WithCapacity bounds the number of retained events; the oldest are evicted
// first.
func WithCapacity(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.capacity = n
		}
	}
}

// WithVerifier replaces event.Verify as the admission check.
func WithVerifier(v Verifier) Option {
	return func(a *Aggregator) { a.verify = v }
}

// WithOnAdd registers a function called, outside the lock, for every newly
// added event.
func WithOnAdd(fn func(ev *event.T, from string)) Option {
	return func(a *Aggregator) { a.onAdd = fn }
}

// Stats counts what the aggregator has done with the events given to it.
type Stats struct {
	Retained   int
	Ingested   int
	Duplicates int
	Rejected   int
	Evicted    int
}

// Aggregator is safe for concurrent Ingest calls from every relay.
type Aggregator struct {
	mx       sync.RWMutex
	capacity int
	verify   Verifier
	onAdd    func(ev *event.T, from string)
	seen     map[eventid.T]struct{}
	events   []*event.T // newest first
	stats    Stats
}

func New(opts ...Option) (a *Aggregator) {
	a = &Aggregator{
		capacity: DefaultCapacity,
		verify:   event.Verify,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.seen = make(map[eventid.T]struct{}, a.capacity)
	a.events = make([]*event.T, 0, a.capacity)
	return
}

// Ingest verifies ev and, if it is new, inserts it in order. Invalid events
// are counted and their error returned; the caller is expected to log and
// drop them. Ingesting an event already held is a no-op. from names the
// relay the event came from and is only used for logging.
func (a *Aggregator) Ingest(ev *event.T, from string) (added bool, err error) {
	// verification is the expensive part and needs no shared state
	if err = a.verify(ev); err != nil {
		a.mx.Lock()
		a.stats.Rejected++
		a.mx.Unlock()
		log.W.F("dropping event from %s: %v", from, err)
		return false, err
	}
	added = a.insert(ev)
	if added && a.onAdd != nil {
		a.onAdd(ev, from)
	}
	return
}

func (a *Aggregator) insert(ev *event.T) (added bool) {
	a.mx.Lock()
	defer a.mx.Unlock()
	if _, ok := a.seen[ev.ID()]; ok {
		a.stats.Duplicates++
		return false
	}
	a.stats.Ingested++
	pos := sort.Search(len(a.events), func(i int) bool {
		return event.Before(ev, a.events[i])
	})
	if pos >= a.capacity {
		// older than everything retained in a full feed
		a.stats.Evicted++
		return false
	}
	a.events = append(a.events, nil)
	copy(a.events[pos+1:], a.events[pos:])
	a.events[pos] = ev
	a.seen[ev.ID()] = struct{}{}
	if len(a.events) > a.capacity {
		last := len(a.events) - 1
		delete(a.seen, a.events[last].ID())
		a.events[last] = nil
		a.events = a.events[:last]
		a.stats.Evicted++
	}
	return true
}

// Snapshot returns a copy of the feed, newest first. Later changes to the
// aggregator do not affect it.
func (a *Aggregator) Snapshot() (s Snapshot) {
	a.mx.RLock()
	defer a.mx.RUnlock()
	s = make(Snapshot, len(a.events))
	copy(s, a.events)
	return
}

func (a *Aggregator) Len() int {
	a.mx.RLock()
	defer a.mx.RUnlock()
	return len(a.events)
}

func (a *Aggregator) Stats() (s Stats) {
	a.mx.RLock()
	defer a.mx.RUnlock()
	s = a.stats
	s.Retained = len(a.events)
	return
}

// Snapshot is an ordered list of verified events owned by the reader.
type Snapshot []*event.T

// Filter returns the events matching f, at most f.Limit of them when the
// limit is set.
func (s Snapshot) Filter(f *filter.T) (out Snapshot) {
	if f == nil {
		return append(Snapshot{}, s...)
	}
	out = Snapshot{}
	for _, ev := range s {
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
		if f.Matches(ev) {
			out = append(out, ev)
		}
	}
	return
}
