// Package eventstore defines the local persistence layer for verified
// events.
package eventstore

import (
	"errors"

	"github.com/Hubmakerlabs/feedr/pkg/context"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/filter"
)

var ErrDupEvent = errors.New("duplicate: event already exists")

// Store keeps events that have already passed verification.
type Store interface {
	// Init opens the underlying database.
	Init() (err error)
	// Close must be called after you're done using the store.
	Close() (err error)
	// SaveEvent stores ev, returning ErrDupEvent if it is already held.
	SaveEvent(c context.T, ev *event.T) (err error)
	// QueryEvents returns the newest events matching f, newest first, up to
	// f.Limit or the store's own maximum.
	QueryEvents(c context.T, f *filter.T) (evs []*event.T, err error)
}
