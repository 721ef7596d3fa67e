package pool

import (
	"sync"

	"github.com/Hubmakerlabs/feedr/pkg/context"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/subscription"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/subscriptionid"
)

// Incoming is an event from one relay, or the end of stored events marker
// for that relay when EOSE is set. Relay is for diagnostics only and plays
// no part in the identity of the event.
type Incoming struct {
	Relay string
	Event *event.T
	EOSE  bool
}

// Subscription is one REQ held open on every relay in the pool, including
// relays that connect after it was made.
type Subscription struct {
	ID      subscriptionid.T
	Filters filters.T
	// Events carries the results of every relay. It is closed by Close.
	Events chan Incoming

	p      *T
	ctx    context.T
	cancel context.F
	mx     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	once   sync.Once
}

// SubscribeAll opens ff on every connected relay and on every relay that
// connects afterwards, until the subscription is closed or c is done.
func (p *T) SubscribeAll(c context.T, ff filters.T) (sub *Subscription) {
	sub = &Subscription{
		ID:      subscriptionid.New(),
		Filters: ff,
		Events:  make(chan Incoming, subscription.EventBuffer),
		p:       p,
	}
	sub.ctx, sub.cancel = context.Cancel(c)
	p.subs.Store(sub.ID.String(), sub)
	p.records.Range(func(_ string, rec *record) bool {
		if rec.rl.IsConnected() {
			sub.attach(rec)
		}
		return true
	})
	go func() {
		<-sub.ctx.Done()
		sub.Close()
	}()
	return
}

// attach opens the subscription on one relay and forwards what it yields.
// A relay that already carries it on the current connection is skipped.
func (s *Subscription) attach(rec *record) {
	s.mx.Lock()
	if s.closed {
		s.mx.Unlock()
		return
	}
	s.wg.Add(1)
	s.mx.Unlock()
	rec.mx.Lock()
	defer rec.mx.Unlock()
	if rs, ok := rec.subs[s.ID]; ok && rs.Context.Err() == nil {
		s.wg.Done()
		return
	}
	rs, err := rec.rl.Subscribe(s.ctx, s.ID, s.Filters)
	if err != nil {
		log.D.F("subscribing %s on %s: %v", s.ID, rec.url, err)
		s.wg.Done()
		return
	}
	rec.subs[s.ID] = rs
	go s.forward(rec, rs)
}

func (s *Subscription) forward(rec *record, rs *subscription.T) {
	defer s.wg.Done()
	defer rec.removeSub(rs)
	eose := rs.EndOfStoredEvents
	for {
		select {
		case ev, ok := <-rs.Events:
			if !ok {
				return
			}
			if !s.emit(Incoming{Relay: rec.url, Event: ev}) {
				return
			}
		case <-eose:
			eose = nil
			// stored events already queued go out ahead of the marker
			for drained := false; !drained; {
				select {
				case ev, ok := <-rs.Events:
					if !ok {
						return
					}
					if !s.emit(Incoming{Relay: rec.url, Event: ev}) {
						return
					}
				default:
					drained = true
				}
			}
			if !s.emit(Incoming{Relay: rec.url, EOSE: true}) {
				return
			}
		}
	}
}

func (s *Subscription) emit(in Incoming) bool {
	select {
	case s.Events <- in:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Close sends CLOSE to every relay, waits for the forwarders to stop and
// then closes Events.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mx.Lock()
		s.closed = true
		s.mx.Unlock()
		s.p.subs.Delete(s.ID.String())
		s.cancel()
		s.wg.Wait()
		close(s.Events)
		log.D.Ln("closed subscription", s.ID)
	})
}
