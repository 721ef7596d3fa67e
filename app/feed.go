package app

import (
	"errors"

	"github.com/Hubmakerlabs/feedr/pkg/context"
	"github.com/Hubmakerlabs/feedr/pkg/feed"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/timestamp"
)

// DefaultLimit is the number of notes shown when the filter sets none.
const DefaultLimit = 20

const cacheOrigin = "cache"

// NoteFilter selects text notes, optionally by author and hashtag.
func NoteFilter(author, hashtag string, limit int) (f *filter.T) {
	f = &filter.T{Kinds: []kind.T{kind.TextNote}, Limit: limit}
	if author != "" {
		f.Authors = []string{author}
	}
	if hashtag != "" {
		f.Tags = filter.TagMap{"t": {hashtag}}
	}
	return
}

func withDefaults(f *filter.T) *filter.T {
	if f == nil {
		f = NoteFilter("", "", 0)
	} else {
		f = f.Clone()
	}
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	return f
}

// ingest adds ev to the feed. Events that fail verification are logged by
// the feed and dropped here.
func (cl *Client) ingest(ev *event.T, from string) (added bool) {
	var err error
	if added, err = cl.Feed.Ingest(ev, from); err != nil {
		return false
	}
	return
}

// prime loads matching events from the cache into the feed.
func (cl *Client) prime(c context.T, f *filter.T) {
	if cl.Cache == nil {
		return
	}
	evs, err := cl.Cache.QueryEvents(c, f)
	if chk.E(err) {
		return
	}
	for _, ev := range evs {
		cl.ingest(ev, cacheOrigin)
	}
	log.D.F("primed feed with %d cached events", len(evs))
}

// FetchFeed collects the events matching f from every relay until each
// connected relay has sent all it has stored, or the fetch timeout passes,
// and returns the newest of them, up to the filter's limit. Relays that could
// not be reached are skipped; if none could, ErrNoRelays is returned along
// with whatever the cache held.
func (cl *Client) FetchFeed(c context.T, f *filter.T) (s feed.Snapshot,
	err error) {

	f = withDefaults(f)
	cl.prime(c, f)
	c, cancel := context.Timeout(c, cl.Config.FetchTimeout)
	defer cancel()
	connected := cl.connect(c)
	if connected == 0 {
		return cl.Feed.Snapshot().Filter(f), ErrNoRelays
	}
	sub := cl.Pool.SubscribeAll(c, filters.T{f})
	defer sub.Close()
	eosed := make(map[string]struct{})
	for in := range sub.Events {
		if in.EOSE {
			eosed[in.Relay] = struct{}{}
			if len(eosed) >= connected {
				break
			}
			continue
		}
		cl.ingest(in.Event, in.Relay)
	}
	if len(eosed) < connected {
		log.W.F("fetch ended with %d of %d relays complete: %v", len(eosed),
			connected, c.Err())
	}
	return cl.Feed.Snapshot().Filter(f), nil
}

// Follow calls fn with each new event matching f as relays deliver it, until
// c is done. Events already in the feed are not repeated.
func (cl *Client) Follow(c context.T, f *filter.T,
	fn func(ev *event.T, from string)) (err error) {

	f = withDefaults(f)
	if f.Since == nil {
		f.Since = timestamp.Now().Ptr()
	}
	if cl.connect(c) == 0 {
		log.W.Ln("no relay reachable yet, waiting for one to connect")
	}
	sub := cl.Pool.SubscribeAll(c, filters.T{f})
	defer sub.Close()
	for in := range sub.Events {
		if in.EOSE || !f.Matches(in.Event) {
			continue
		}
		if cl.ingest(in.Event, in.Relay) {
			fn(in.Event, in.Relay)
		}
	}
	if err = c.Err(); errors.Is(err, context.Canceled) {
		err = nil
	}
	return
}
