package pool

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Hubmakerlabs/feedr/pkg/context"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/client"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
)

// Outcome is what one relay did with a published event.
type Outcome int

const (
	Accepted Outcome = iota
	Rejected
	Unreachable
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Unreachable:
		return "unreachable"
	}
	return "unknown"
}

// Result is one relay's answer to a publish. Reason is the relay's text for
// a rejection; Err is the network failure for an unreachable relay.
type Result struct {
	Relay   string
	Outcome Outcome
	Reason  string
	Err     error
}

type Results []Result

// Accepted is the number of relays that took the event.
func (r Results) Accepted() (n int) {
	for _, res := range r {
		if res.Outcome == Accepted {
			n++
		}
	}
	return
}

// PublishAll sends ev to every relay at once and waits for all of them to
// answer or fail. Relays that are not connected are reported unreachable
// without being waited for.
func (p *T) PublishAll(c context.T, ev *event.T) (results Results) {
	var (
		mx sync.Mutex
		wg sync.WaitGroup
	)
	add := func(r Result) {
		mx.Lock()
		results = append(results, r)
		mx.Unlock()
	}
	p.records.Range(func(url string, rec *record) bool {
		if !rec.rl.IsConnected() {
			add(Result{Relay: url, Outcome: Unreachable,
				Err: fmt.Errorf("%w: %s is %s", client.ErrNetwork, url,
					rec.Status())})
			return true
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			add(classify(url, rec.rl.Publish(c, ev)))
		}()
		return true
	})
	wg.Wait()
	sort.Slice(results, func(i, j int) bool {
		return results[i].Relay < results[j].Relay
	})
	log.I.F("published %s to %d of %d relays", ev.ID(), results.Accepted(),
		len(results))
	return
}

func classify(url string, err error) Result {
	if err == nil {
		return Result{Relay: url, Outcome: Accepted}
	}
	var rej *client.RejectedError
	if errors.As(err, &rej) {
		log.W.F("%s rejected event: %s", url, rej.Reason)
		return Result{Relay: url, Outcome: Rejected, Reason: rej.Reason,
			Err: err}
	}
	log.D.F("publishing to %s: %v", url, err)
	return Result{Relay: url, Outcome: Unreachable, Err: err}
}
