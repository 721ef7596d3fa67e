package client

import (
	"time"

	"github.com/Hubmakerlabs/feedr/pkg/context"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/interfaces/relay"
)

// Hooks are the callbacks Supervise makes as a relay changes state.
type Hooks struct {
	// OnStatus is called on every state change.
	OnStatus func(s relay.Status)
	// OnConnect is called after each successful connection, before waiting
	// for it to end. Subscriptions are reissued here.
	OnConnect func(c context.T, rl relay.I)
	// ConnectTimeout bounds each connection attempt.
	ConnectTimeout time.Duration
}

func (h Hooks) status(s relay.Status) {
	if h.OnStatus != nil {
		h.OnStatus(s)
	}
}

// Supervise keeps rl connected until c is done, waiting bo between failed or
// dropped connections. A timed out attempt counts as a failure. When c is
// done the relay is closed and Supervise returns.
func Supervise(c context.T, rl relay.I, bo *Backoff, h Hooks) {
	if h.ConnectTimeout <= 0 {
		h.ConnectTimeout = DefaultConnectTimeout
	}
	defer func() {
		chk.D(rl.Close())
		h.status(relay.Disconnected)
		log.D.Ln("stopped supervising", rl.URL())
	}()
	for c.Err() == nil {
		h.status(relay.Connecting)
		cc, cancel := context.Timeout(c, h.ConnectTimeout)
		err := rl.Connect(cc)
		cancel()
		if err == nil {
			bo.Reset()
			h.status(relay.Connected)
			if h.OnConnect != nil {
				h.OnConnect(c, rl)
			}
			select {
			case <-c.Done():
				return
			case <-rl.Done():
			}
			log.I.Ln("lost connection to", rl.URL())
		} else {
			if c.Err() != nil {
				return
			}
			log.D.F("connecting to %s: %v", rl.URL(), err)
		}
		d := bo.Next()
		h.status(relay.BackingOff)
		log.D.F("retrying %s in %v", rl.URL(), d)
		t := time.NewTimer(d)
		select {
		case <-c.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}
