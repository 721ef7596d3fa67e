package app

import (
	"fmt"

	"github.com/Hubmakerlabs/feedr/pkg/context"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/pool"
)

// selfOrigin marks events the session published itself in the feed.
const selfOrigin = "local"

// Publish sends ev to every relay and reports each outcome. It fails only
// when no relay accepted the event.
func (cl *Client) Publish(c context.T, ev *event.T) (res pool.Results,
	err error) {

	cl.connect(c)
	res = cl.Pool.PublishAll(c, ev)
	if res.Accepted() == 0 {
		return res, fmt.Errorf("%w: %s", ErrNotPublished, ev.ID())
	}
	if _, err = cl.Feed.Ingest(ev, selfOrigin); chk.E(err) {
		err = nil
	}
	return
}
