package badger

import (
	"fmt"

	"github.com/Hubmakerlabs/feedr/pkg/context"
	"github.com/Hubmakerlabs/feedr/pkg/eventstore"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
	"github.com/dgraph-io/badger/v4"
)

func (b *Backend) SaveEvent(c context.T, ev *event.T) (err error) {
	// make sure Close waits for this to complete
	b.WG.Add(1)
	defer b.WG.Done()
	id := ev.ID().Bytes()
	if len(id) != IDLen {
		return fmt.Errorf("%w: event id %q", event.ErrMalformed, ev.ID())
	}
	var bin []byte
	if bin, err = ev.MarshalJSON(); chk.E(err) {
		return
	}
	return b.Update(func(txn *badger.Txn) (err error) {
		// query event by id to ensure we don't save duplicates
		prefix := append([]byte{prefixID}, id...)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		it.Seek(prefix)
		exists := it.ValidForPrefix(prefix)
		it.Close()
		if exists {
			return eventstore.ErrDupEvent
		}
		var ser []byte
		if ser, err = b.Serial(); chk.E(err) {
			return
		}
		// raw event store
		if err = txn.Set(eventKey(ser), bin); chk.E(err) {
			return
		}
		for _, k := range [][]byte{
			idKey(id, ser),
			createdAtKey(ev.CreatedAt(), ser),
		} {
			if err = txn.Set(k, nil); chk.E(err) {
				return
			}
		}
		log.T.F("cached event %s", ev.ID())
		return
	})
}
