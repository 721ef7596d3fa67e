package badger

import (
	"bytes"
	"math"
	"sort"

	"github.com/Hubmakerlabs/feedr/pkg/context"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/timestamp"
	"github.com/dgraph-io/badger/v4"
)

// QueryEvents walks the created_at index from newest to oldest and returns
// the events that match f. A nil f matches everything.
func (b *Backend) QueryEvents(c context.T, f *filter.T) (evs []*event.T,
	err error) {

	if f == nil {
		f = &filter.T{}
	}
	limit := b.MaxLimit
	if f.Limit > 0 && f.Limit < limit {
		limit = f.Limit
	}
	until := timestamp.T(math.MaxInt64)
	if f.Until != nil {
		until = *f.Until
	}
	var since timestamp.T
	if f.Since != nil {
		since = *f.Since
	}
	err = b.View(func(txn *badger.Txn) (err error) {
		// iterate only through keys and in reverse order
		prefix := []byte{prefixCreatedAt}
		it := txn.NewIterator(badger.IteratorOptions{Reverse: true,
			Prefix: prefix})
		defer it.Close()
		start := append(createdAtKey(until, nil),
			bytes.Repeat([]byte{0xff}, SerialLen)...)
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			if err = c.Err(); err != nil {
				return
			}
			ts, ser := splitCreatedAtKey(it.Item().Key())
			if ts < since {
				break
			}
			var ev *event.T
			if ev, err = getEvent(txn, ser); chk.E(err) {
				return
			}
			if !f.Matches(ev) {
				continue
			}
			if evs = append(evs, ev); len(evs) >= limit {
				break
			}
		}
		return
	})
	if err != nil {
		return nil, err
	}
	// events sharing a second are stored in arrival order
	sort.Sort(event.Descending(evs))
	return
}

func getEvent(txn *badger.Txn, ser []byte) (ev *event.T, err error) {
	var item *badger.Item
	if item, err = txn.Get(eventKey(ser)); err != nil {
		return
	}
	err = item.Value(func(val []byte) (err error) {
		ev, err = event.Parse(val)
		return
	})
	return
}
