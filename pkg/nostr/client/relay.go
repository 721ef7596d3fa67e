package client

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/Hubmakerlabs/feedr/pkg/context"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/connection"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/envelopes"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/interfaces/enveloper"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/interfaces/relay"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/normalize"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/subscription"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/subscriptionid"
	"github.com/Hubmakerlabs/feedr/pkg/slog"
	"github.com/puzpuzpuz/xsync/v2"
)

var log, chk = slog.New(os.Stderr)

const (
	DefaultConnectTimeout = 7 * time.Second
	DefaultPublishTimeout = 4 * time.Second
	PingInterval          = 29 * time.Second
	writeTimeout          = 5 * time.Second
)

var (
	// ErrNetwork covers failing to connect, send or receive, and the
	// connection dropping while waiting for an answer.
	ErrNetwork = errors.New("relay network error")
	// ErrRejected means the relay answered a publish with OK false.
	ErrRejected = errors.New("relay rejected event")
)

// RejectedError carries the reason a relay gave for refusing an event.
type RejectedError struct {
	Relay  string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected event: %s", e.Relay, e.Reason)
}

func (e *RejectedError) Unwrap() error { return ErrRejected }

// T is a websocket connection to a relay. It can be connected again after
// the connection drops; subscriptions do not carry over.
type T struct {
	url            string
	RequestHeader  http.Header // e.g. for origin header
	PublishTimeout time.Duration
	noticeHandler  func(notice string)

	mx   sync.Mutex
	sess *session
}

var _ relay.I = (*T)(nil)

// session is the state of one connection. It is replaced on every Connect.
type session struct {
	conn        *connection.C
	ctx         context.T // canceled when the connection closes
	cancel      context.F
	writeQueue  chan writeRequest
	subs        *xsync.MapOf[string, *subscription.T]
	okCallbacks *xsync.MapOf[string, func(ok bool, reason string)]
	closeOnce   sync.Once
}

type writeRequest struct {
	msg    []byte
	answer chan error
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// When instantiating relay connections, some options may be passed.

// Option is the type of the argument passed for that.
type Option interface {
	IsRelayOption()
}

// WithNoticeHandler just takes notices and is expected to do something with
// them. when not given, defaults to logging the notices.
type WithNoticeHandler func(notice string)

func (_ WithNoticeHandler) IsRelayOption() {}

// WithPublishTimeout sets how long Publish waits for an OK when its context
// has no deadline.
type WithPublishTimeout time.Duration

func (_ WithPublishTimeout) IsRelayOption() {}

var (
	_ Option = (WithNoticeHandler)(nil)
	_ Option = WithPublishTimeout(0)
)

// New returns an unconnected relay for url.
func New(url string, opts ...Option) (r *T) {
	r = &T{
		url:            normalize.URL(url),
		PublishTimeout: DefaultPublishTimeout,
	}
	for _, opt := range opts {
		switch o := opt.(type) {
		case WithNoticeHandler:
			r.noticeHandler = o
		case WithPublishTimeout:
			r.PublishTimeout = time.Duration(o)
		}
	}
	return
}

// Connect returns a relay object connected to url. Once successfully
// connected, cancelling c has no effect. To close the connection, call
// r.Close().
func Connect(c context.T, url string, opts ...Option) (r *T, err error) {
	r = New(url, opts...)
	err = r.Connect(c)
	return
}

func (r *T) URL() string { return r.url }

// String just returns the relay URL.
func (r *T) String() string { return r.url }

func (r *T) current() *session {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.sess == nil || r.sess.ctx.Err() != nil {
		return nil
	}
	return r.sess
}

// IsConnected returns true if the connection to this relay seems to be active.
func (r *T) IsConnected() bool { return r.current() != nil }

// Done is closed when the current connection ends.
func (r *T) Done() <-chan struct{} {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.sess == nil {
		return closedChan
	}
	return r.sess.ctx.Done()
}

// Connect tries to establish a websocket connection to r.URL. If the context
// expires before the connection is complete, an error is returned. Once
// connected, context expiration has no effect: call r.Close to close the
// connection. Connecting an already connected relay does nothing.
func (r *T) Connect(c context.T) (err error) {
	if r.url == "" {
		return fmt.Errorf("%w: invalid relay URL", ErrNetwork)
	}
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.sess != nil && r.sess.ctx.Err() == nil {
		return nil
	}
	if _, ok := c.Deadline(); !ok {
		// if no timeout is set, force it to 7 seconds
		var cancel context.F
		c, cancel = context.Timeout(c, DefaultConnectTimeout)
		defer cancel()
	}
	var conn *connection.C
	if conn, err = connection.NewConnection(c, r.url,
		r.RequestHeader); err != nil {
		return fmt.Errorf("%w: opening websocket to '%s': %s", ErrNetwork,
			r.url, err)
	}
	s := &session{
		conn:        conn,
		writeQueue:  make(chan writeRequest),
		subs:        xsync.NewMapOf[*subscription.T](),
		okCallbacks: xsync.NewMapOf[func(bool, string)](),
	}
	s.ctx, s.cancel = context.Cancel(context.Bg())
	r.sess = s
	go r.writeLoop(s)
	go r.MessageReadLoop(s)
	log.D.Ln("connected to", r.url)
	return nil
}

// shutdown ends a session: the socket is closed and every subscription on
// it ends.
func (r *T) shutdown(s *session) (err error) {
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.conn.Close()
		s.subs.Range(func(_ string, sub *subscription.T) bool {
			sub.Close()
			return true
		})
		log.D.Ln("disconnected from", r.url)
	})
	return
}

// writeLoop queues all write operations here so we don't do mutex spaghetti.
// It also pings the relay every 29 seconds.
func (r *T) writeLoop(s *session) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	var err error
	for {
		select {
		case <-ticker.C:
			if err = s.conn.WritePing(); err != nil {
				log.D.F("{%s} error writing ping: %v; closing websocket",
					r.url, err)
				chk.D(r.shutdown(s))
				return
			}
		case wr := <-s.writeQueue:
			// all write requests will go through this to prevent races
			if err = s.conn.WriteMessage(wr.msg); err != nil {
				wr.answer <- err
				chk.D(r.shutdown(s))
			}
			close(wr.answer)
		case <-s.ctx.Done():
			return
		}
	}
}

// MessageReadLoop decodes frames until the connection fails. Frames that
// cannot be decoded are logged and skipped.
func (r *T) MessageReadLoop(s *session) {
	buf := new(bytes.Buffer)
	var err error
	for {
		buf.Reset()
		if err = s.conn.ReadMessage(s.ctx, buf); err != nil {
			log.D.F("{%s} read: %v", r.url, err)
			chk.D(r.shutdown(s))
			return
		}
		message := buf.Bytes()
		var env enveloper.I
		if env, err = envelopes.Parse(message); err != nil {
			log.W.F("{%s} discarding message: %v: %s", r.url, err, message)
			continue
		}
		switch env := env.(type) {
		case *envelopes.Notice:
			if r.noticeHandler != nil {
				r.noticeHandler(env.Text)
			} else {
				log.I.F("NOTICE from %s: '%s'", r.url, env.Text)
			}
		case *envelopes.Event:
			if env.SubscriptionID == "" {
				continue
			}
			sub, ok := s.subs.Load(env.SubscriptionID.String())
			if !ok {
				log.D.F("{%s} no subscription with id '%s'", r.url,
					env.SubscriptionID)
				continue
			}
			// check if the event matches the desired filter, ignore otherwise
			if !sub.Filters.Match(env.Event) {
				log.D.F("{%s} filter does not match: %v ~ %s", r.url,
					sub.Filters, env.Event.ID())
				continue
			}
			sub.DispatchEvent(env.Event)
		case *envelopes.EOSE:
			if sub, ok := s.subs.Load(env.SubscriptionID.String()); ok {
				sub.DispatchEose()
			}
		case *envelopes.Closed:
			if sub, ok := s.subs.LoadAndDelete(
				env.SubscriptionID.String()); ok {
				sub.DispatchClosed(env.Reason)
			}
		case *envelopes.OK:
			if okCallback, exist := s.okCallbacks.Load(
				env.EventID.String()); exist {
				okCallback(env.OK, env.Reason)
			} else {
				log.D.F("{%s} got an unexpected OK message for event %s",
					r.url, env.EventID)
			}
		default:
			log.D.F("{%s} ignoring %s message", r.url, env.Label())
		}
	}
}

// write queues a message to be sent to the relay.
func (s *session) write(msg []byte) (ch chan error) {
	ch = make(chan error, 1)
	timeout := time.NewTimer(writeTimeout)
	defer timeout.Stop()
	select {
	case s.writeQueue <- writeRequest{msg: msg, answer: ch}:
	case <-s.ctx.Done():
		ch <- fmt.Errorf("connection closed")
		close(ch)
	case <-timeout.C:
		ch <- fmt.Errorf("write timed out")
		close(ch)
	}
	return
}

func (s *session) send(env enveloper.I) (err error) {
	var b []byte
	if b, err = env.MarshalJSON(); chk.E(err) {
		return
	}
	if err = <-s.write(b); err != nil {
		return fmt.Errorf("%w: %s", ErrNetwork, err)
	}
	return
}

// Publish sends an "EVENT" command to the relay r as in NIP-01 and waits for
// an OK response. A refusal is returned as a *RejectedError.
func (r *T) Publish(c context.T, ev *event.T) (err error) {
	s := r.current()
	if s == nil {
		return fmt.Errorf("%w: %s is not connected", ErrNetwork, r.url)
	}
	var cancel context.F
	if _, ok := c.Deadline(); !ok {
		// if no timeout is set, force it to 4 seconds
		c, cancel = context.Timeout(c, r.PublishTimeout)
	} else {
		c, cancel = context.Cancel(c)
	}
	defer cancel()
	id := ev.ID().String()
	type result struct {
		ok     bool
		reason string
	}
	res := make(chan result, 1)
	s.okCallbacks.Store(id, func(ok bool, reason string) {
		select {
		case res <- result{ok, reason}:
		default:
		}
	})
	defer s.okCallbacks.Delete(id)
	if err = s.send(&envelopes.Event{Event: ev}); err != nil {
		return
	}
	select {
	case rs := <-res:
		if !rs.ok {
			return &RejectedError{Relay: r.url, Reason: rs.reason}
		}
		log.D.F("{%s} accepted %s", r.url, id)
		return nil
	case <-c.Done():
		return fmt.Errorf("%w: waiting for OK from %s: %s", ErrNetwork, r.url,
			c.Err())
	case <-s.ctx.Done():
		return fmt.Errorf("%w: connection to %s lost", ErrNetwork, r.url)
	}
}

// Subscribe sends a "REQ" command to the relay r as in NIP-01. Events are
// returned through the channel sub.Events. The subscription is closed when
// context c is cancelled ("CLOSE" in NIP-01) or the connection drops.
func (r *T) Subscribe(c context.T, id subscriptionid.T,
	ff filters.T) (sub *subscription.T, err error) {

	s := r.current()
	if s == nil {
		return nil, fmt.Errorf("%w: %s is not connected", ErrNetwork, r.url)
	}
	sub = subscription.New(s.ctx, id, ff)
	if _, loaded := s.subs.LoadOrStore(id.String(), sub); loaded {
		sub.Close()
		return nil, fmt.Errorf("subscription '%s' already open on %s", id,
			r.url)
	}
	stop := context.AfterFunc(c, func() { r.Unsubscribe(id) })
	go func() {
		<-sub.Context.Done()
		stop()
		s.subs.Compute(id.String(),
			func(old *subscription.T, loaded bool) (*subscription.T, bool) {
				// leave a newer subscription with the same id alone
				return old, !loaded || old == sub
			})
	}()
	if err = s.send(&envelopes.Req{SubscriptionID: id, Filters: ff}); err != nil {
		sub.Close()
		return nil, fmt.Errorf("couldn't subscribe to %v at %s: %w", ff,
			r.url, err)
	}
	log.T.F("{%s} subscribed %s %v", r.url, id, ff)
	return
}

// Unsubscribe sends "CLOSE" for the subscription and ends it locally.
func (r *T) Unsubscribe(id subscriptionid.T) {
	s := r.current()
	if s == nil {
		return
	}
	sub, ok := s.subs.LoadAndDelete(id.String())
	if !ok {
		return
	}
	sub.Close()
	chk.D(s.send(&envelopes.Close{SubscriptionID: id}))
}

// Close ends the current connection.
func (r *T) Close() (err error) {
	r.mx.Lock()
	s := r.sess
	r.mx.Unlock()
	if s == nil {
		return nil
	}
	return r.shutdown(s)
}
