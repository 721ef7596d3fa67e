package event

import (
	"github.com/Hubmakerlabs/feedr/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/tags"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/timestamp"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// wire is the JSON object form of an event.
type wire struct {
	ID        eventid.T   `json:"id"`
	PubKey    string      `json:"pubkey"`
	CreatedAt timestamp.T `json:"created_at"`
	Kind      kind.T      `json:"kind"`
	Tags      tags.T      `json:"tags"`
	Content   string      `json:"content"`
	Sig       string      `json:"sig"`
}

func (ev *T) MarshalJSON() (b []byte, err error) {
	w := wire{
		ID:        ev.id,
		PubKey:    ev.pubkey,
		CreatedAt: ev.createdAt,
		Kind:      ev.kind,
		Tags:      ev.tags,
		Content:   ev.content,
		Sig:       ev.sig,
	}
	if w.Tags == nil {
		w.Tags = tags.T{}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes an event. The result is not verified.
func (ev *T) UnmarshalJSON(b []byte) (err error) {
	var w wire
	if err = json.Unmarshal(b, &w); err != nil {
		return
	}
	*ev = T{
		id:        w.ID,
		pubkey:    w.PubKey,
		createdAt: w.CreatedAt,
		kind:      w.Kind,
		tags:      w.Tags,
		content:   w.Content,
		sig:       w.Sig,
	}
	return
}

// Parse decodes an event from JSON. The result is not verified.
func Parse(b []byte) (ev *T, err error) {
	ev = &T{}
	if err = ev.UnmarshalJSON(b); err != nil {
		return nil, err
	}
	return
}
