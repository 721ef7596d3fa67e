// Package envelopes encodes and decodes the label tagged JSON arrays that
// clients and relays exchange.
package envelopes

import (
	"errors"
	"fmt"
	"os"

	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/interfaces/enveloper"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/subscriptionid"
	"github.com/Hubmakerlabs/feedr/pkg/slog"
	jsoniter "github.com/json-iterator/go"
)

var log, chk = slog.New(os.Stderr)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	LabelEvent  = "EVENT"
	LabelReq    = "REQ"
	LabelClose  = "CLOSE"
	LabelEOSE   = "EOSE"
	LabelNotice = "NOTICE"
	LabelOK     = "OK"
	LabelClosed = "CLOSED"
)

var (
	// ErrMalformed is returned for input that is not an array led by a
	// string label, or whose fields do not fit the label.
	ErrMalformed = errors.New("malformed envelope")
	// ErrUnknown is returned for a well formed array with a label this
	// client does not handle.
	ErrUnknown = errors.New("unknown envelope label")
)

// Event carries an event. SubscriptionID is set on relay to client messages
// and empty on client to relay publishes.
type Event struct {
	SubscriptionID subscriptionid.T
	Event          *event.T
}

func (env *Event) Label() string { return LabelEvent }

func (env *Event) MarshalJSON() ([]byte, error) {
	if env.SubscriptionID == "" {
		return json.Marshal([]any{LabelEvent, env.Event})
	}
	return json.Marshal([]any{LabelEvent, env.SubscriptionID, env.Event})
}

// Req opens a subscription.
type Req struct {
	SubscriptionID subscriptionid.T
	Filters        filters.T
}

func (env *Req) Label() string { return LabelReq }

func (env *Req) MarshalJSON() ([]byte, error) {
	a := make([]any, 0, 2+len(env.Filters))
	a = append(a, LabelReq, env.SubscriptionID)
	for _, f := range env.Filters {
		a = append(a, f)
	}
	return json.Marshal(a)
}

// Close ends a subscription.
type Close struct {
	SubscriptionID subscriptionid.T
}

func (env *Close) Label() string { return LabelClose }

func (env *Close) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{LabelClose, env.SubscriptionID})
}

// EOSE marks the end of stored events for a subscription; events after it
// are new.
type EOSE struct {
	SubscriptionID subscriptionid.T
}

func (env *EOSE) Label() string { return LabelEOSE }

func (env *EOSE) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{LabelEOSE, env.SubscriptionID})
}

// Notice is a human readable message from a relay.
type Notice struct {
	Text string
}

func (env *Notice) Label() string { return LabelNotice }

func (env *Notice) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{LabelNotice, env.Text})
}

// OK is a relay's answer to a published event. When OK is false the Reason
// starts with a machine readable prefix such as "blocked:" or "invalid:".
type OK struct {
	EventID eventid.T
	OK      bool
	Reason  string
}

func (env *OK) Label() string { return LabelOK }

func (env *OK) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{LabelOK, env.EventID, env.OK, env.Reason})
}

// Closed reports that the relay ended a subscription.
type Closed struct {
	SubscriptionID subscriptionid.T
	Reason         string
}

func (env *Closed) Label() string { return LabelClosed }

func (env *Closed) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{LabelClosed, env.SubscriptionID, env.Reason})
}

var (
	_ enveloper.I = (*Event)(nil)
	_ enveloper.I = (*Req)(nil)
	_ enveloper.I = (*Close)(nil)
	_ enveloper.I = (*EOSE)(nil)
	_ enveloper.I = (*Notice)(nil)
	_ enveloper.I = (*OK)(nil)
	_ enveloper.I = (*Closed)(nil)
)

// Parse identifies and decodes a message. Events inside EVENT envelopes are
// decoded but not verified.
func Parse(b []byte) (env enveloper.I, err error) {
	var a []jsoniter.RawMessage
	if err = json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	if len(a) < 2 {
		return nil, fmt.Errorf("%w: %d elements", ErrMalformed, len(a))
	}
	var label string
	if err = json.Unmarshal(a[0], &label); err != nil {
		return nil, fmt.Errorf("%w: label: %s", ErrMalformed, err)
	}
	switch label {
	case LabelEvent:
		e := &Event{}
		if len(a) > 2 {
			if err = str(a[1], (*string)(&e.SubscriptionID)); err != nil {
				break
			}
			a = a[1:]
		}
		e.Event, err = event.Parse(a[1])
		env = e
	case LabelReq:
		r := &Req{}
		if err = str(a[1], (*string)(&r.SubscriptionID)); err != nil {
			break
		}
		for _, raw := range a[2:] {
			f := &filter.T{}
			if err = f.UnmarshalJSON(raw); err != nil {
				break
			}
			r.Filters = append(r.Filters, f)
		}
		env = r
	case LabelClose:
		c := &Close{}
		err = str(a[1], (*string)(&c.SubscriptionID))
		env = c
	case LabelEOSE:
		e := &EOSE{}
		err = str(a[1], (*string)(&e.SubscriptionID))
		env = e
	case LabelNotice:
		n := &Notice{}
		err = str(a[1], &n.Text)
		env = n
	case LabelOK:
		if len(a) < 3 {
			return nil, fmt.Errorf("%w: OK has %d elements", ErrMalformed,
				len(a))
		}
		o := &OK{}
		if err = str(a[1], (*string)(&o.EventID)); err != nil {
			break
		}
		if err = json.Unmarshal(a[2], &o.OK); err != nil {
			break
		}
		if len(a) > 3 {
			err = str(a[3], &o.Reason)
		}
		env = o
	case LabelClosed:
		c := &Closed{}
		if err = str(a[1], (*string)(&c.SubscriptionID)); err != nil {
			break
		}
		if len(a) > 2 {
			err = str(a[2], &c.Reason)
		}
		env = c
	default:
		return nil, fmt.Errorf("%w: '%s'", ErrUnknown, label)
	}
	if err != nil {
		log.T.F("bad %s envelope: %s", label, err)
		return nil, fmt.Errorf("%w: %s: %s", ErrMalformed, label, err)
	}
	return
}

func str(raw jsoniter.RawMessage, dst *string) error {
	return json.Unmarshal(raw, dst)
}
