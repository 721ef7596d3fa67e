// Package relaytest runs a small in-memory nostr relay over a local
// websocket server for tests that need a real connection.
package relaytest

import (
	"net/http"
	"net/http/httptest"
	"os"
	"sync"

	"github.com/Hubmakerlabs/feedr/pkg/nostr/envelopes"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/interfaces/enveloper"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/normalize"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/subscriptionid"
	"github.com/Hubmakerlabs/feedr/pkg/slog"
	"golang.org/x/net/websocket"
)

var log, chk = slog.New(os.Stderr)

// Relay stores every valid event it is sent and serves them back to REQs.
// Set Reject to refuse publishes with that reason.
type Relay struct {
	*httptest.Server
	// URL is the websocket address of the relay, normalized.
	URL string

	mx     sync.Mutex
	reject string
	stored []*event.T
	conns  map[*conn]struct{}
}

type conn struct {
	ws   *websocket.Conn
	wmx  sync.Mutex
	subs map[subscriptionid.T]filters.T
}

func (c *conn) send(env enveloper.I) {
	b, err := env.MarshalJSON()
	if chk.E(err) {
		return
	}
	c.wmx.Lock()
	defer c.wmx.Unlock()
	chk.D(websocket.Message.Send(c.ws, string(b)))
}

// New starts a relay holding the given events.
func New(stored ...*event.T) (r *Relay) {
	r = &Relay{stored: stored, conns: make(map[*conn]struct{})}
	r.Server = httptest.NewServer(&websocket.Server{
		// nostr clients send no origin
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   r.serve,
	})
	r.URL = normalize.URL(r.Server.URL)
	return
}

// SetReject makes the relay refuse every publish with reason; an empty
// reason accepts them again.
func (r *Relay) SetReject(reason string) {
	r.mx.Lock()
	r.reject = reason
	r.mx.Unlock()
}

// Stored returns the events the relay holds.
func (r *Relay) Stored() []*event.T {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]*event.T{}, r.stored...)
}

// Drop closes every client connection without stopping the server.
func (r *Relay) Drop() {
	r.mx.Lock()
	defer r.mx.Unlock()
	for c := range r.conns {
		chk.D(c.ws.Close())
	}
}

// Close drops every client and shuts the server down.
func (r *Relay) Close() {
	r.Drop()
	r.Server.CloseClientConnections()
	r.Server.Close()
}

func (r *Relay) serve(ws *websocket.Conn) {
	c := &conn{ws: ws, subs: make(map[subscriptionid.T]filters.T)}
	r.mx.Lock()
	r.conns[c] = struct{}{}
	r.mx.Unlock()
	defer func() {
		r.mx.Lock()
		delete(r.conns, c)
		r.mx.Unlock()
		chk.D(ws.Close())
	}()
	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			return
		}
		env, err := envelopes.Parse([]byte(msg))
		if err != nil {
			c.send(&envelopes.Notice{Text: "error: " + err.Error()})
			continue
		}
		switch env := env.(type) {
		case *envelopes.Event:
			r.publish(c, env.Event)
		case *envelopes.Req:
			r.req(c, env)
		case *envelopes.Close:
			r.mx.Lock()
			delete(c.subs, env.SubscriptionID)
			r.mx.Unlock()
		default:
			log.D.F("relay ignoring %s", env.Label())
		}
	}
}

func (r *Relay) publish(c *conn, ev *event.T) {
	if err := ev.Verify(); err != nil {
		c.send(&envelopes.OK{EventID: ev.ID(), Reason: "invalid: " +
			err.Error()})
		return
	}
	r.mx.Lock()
	if r.reject != "" {
		reason := r.reject
		r.mx.Unlock()
		c.send(&envelopes.OK{EventID: ev.ID(), Reason: reason})
		return
	}
	dup := false
	for _, have := range r.stored {
		if have.ID() == ev.ID() {
			dup = true
			break
		}
	}
	type delivery struct {
		c  *conn
		id subscriptionid.T
	}
	var live []delivery
	if !dup {
		r.stored = append(r.stored, ev)
		for cc := range r.conns {
			for id, ff := range cc.subs {
				if ff.Match(ev) {
					live = append(live, delivery{cc, id})
				}
			}
		}
	}
	r.mx.Unlock()
	reason := ""
	if dup {
		reason = "duplicate: already have this event"
	}
	c.send(&envelopes.OK{EventID: ev.ID(), OK: true, Reason: reason})
	for _, d := range live {
		d.c.send(&envelopes.Event{SubscriptionID: d.id, Event: ev})
	}
}

func (r *Relay) req(c *conn, env *envelopes.Req) {
	r.mx.Lock()
	c.subs[env.SubscriptionID] = env.Filters
	var matched []*event.T
	for _, ev := range r.stored {
		if env.Filters.Match(ev) {
			matched = append(matched, ev)
		}
	}
	r.mx.Unlock()
	for _, ev := range matched {
		c.send(&envelopes.Event{SubscriptionID: env.SubscriptionID, Event: ev})
	}
	c.send(&envelopes.EOSE{SubscriptionID: env.SubscriptionID})
}
