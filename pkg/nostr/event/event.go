package event

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/Hubmakerlabs/feedr/pkg/hex"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/keys"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/tags"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/timestamp"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/wire/text"
	"github.com/Hubmakerlabs/feedr/pkg/slog"
	"github.com/minio/sha256-simd"
)

var log, chk = slog.New(os.Stderr)

var (
	// ErrMalformed means a required field is missing or badly formed, or the
	// stored id does not match the content.
	ErrMalformed = errors.New("malformed event")
	// ErrInvalidSignature means the signature does not verify against the
	// author's public key.
	ErrInvalidSignature = errors.New("invalid event signature")
)

// Signer is the capability needed to sign an event: the x-only public key and
// a schnorr signature over a 32 byte hash. keys.Keypair implements it.
type Signer interface {
	PubKey() string
	Sign(hash []byte) (sig []byte, err error)
}

var _ Signer = (*keys.Keypair)(nil)

func Hash(in []byte) (out []byte) {
	h := sha256.Sum256(in)
	return h[:]
}

// Canonical returns the serialization that is hashed to produce the event id:
//
//	[0,"<pubkey>",<created_at>,<kind>,<tags>,"<content>"]
//
// with no whitespace and strings escaped by text.EscapeString. The output
// depends only on the arguments.
func Canonical(pubkey string, createdAt timestamp.T, k kind.T, t tags.T,
	content string) (b []byte) {

	b = make([]byte, 0, 96+len(pubkey)+len(content)+32*len(t))
	b = append(b, '[', '0', ',')
	b = text.EscapeString(b, pubkey)
	b = append(b, ',')
	b = strconv.AppendInt(b, int64(createdAt), 10)
	b = append(b, ',')
	b = strconv.AppendUint(b, uint64(k), 10)
	b = append(b, ',', '[')
	for i, tg := range t {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '[')
		for j, s := range tg {
			if j > 0 {
				b = append(b, ',')
			}
			b = text.EscapeString(b, s)
		}
		b = append(b, ']')
	}
	b = append(b, ']', ',')
	b = text.EscapeString(b, content)
	b = append(b, ']')
	return
}

// DeriveID hashes canonical bytes into an event id.
func DeriveID(canonical []byte) eventid.T {
	return eventid.T(hex.Enc(Hash(canonical)))
}

// T is a signed event. Its fields cannot be changed after construction, so
// the id and signature always describe the rest of the fields. Events
// decoded from the network are not trusted until Verify succeeds.
type T struct {
	id        eventid.T
	pubkey    string
	createdAt timestamp.T
	kind      kind.T
	tags      tags.T
	content   string
	sig       string
}

// ID is the SHA256 hash of the canonical encoding of the event.
func (ev *T) ID() eventid.T { return ev.id }

// PubKey is the public key of the event creator in hexadecimal format.
func (ev *T) PubKey() string { return ev.pubkey }

// CreatedAt is the UNIX timestamp of the event according to the event
// creator (never trust a timestamp!)
func (ev *T) CreatedAt() timestamp.T { return ev.createdAt }

func (ev *T) Kind() kind.T { return ev.kind }

// Tags returns a copy of the tags.
func (ev *T) Tags() tags.T { return ev.tags.Clone() }

func (ev *T) Content() string { return ev.content }

// Sig is the hex signature on the ID hash.
func (ev *T) Sig() string { return ev.sig }

// Canonical returns the canonical form of the event's signed fields.
func (ev *T) Canonical() []byte {
	return Canonical(ev.pubkey, ev.createdAt, ev.kind, ev.tags, ev.content)
}

func (ev *T) String() string {
	b, _ := ev.MarshalJSON()
	return string(b)
}

// Verify checks the event is complete, that its id matches its canonical
// form, and that the signature is valid for the id and author.
func (ev *T) Verify() (err error) {
	if ev == nil {
		return fmt.Errorf("%w: nil event", ErrMalformed)
	}
	if err = ev.id.Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	if !keys.IsValid32ByteHex(ev.pubkey) {
		return fmt.Errorf("%w: pubkey '%s' is not 64 lowercase hex characters",
			ErrMalformed, ev.pubkey)
	}
	if !hex.IsLowerHex(ev.sig, 128) {
		return fmt.Errorf("%w: sig is not 128 lowercase hex characters",
			ErrMalformed)
	}
	id := Hash(ev.Canonical())
	if hex.Enc(id) != ev.id.String() {
		return fmt.Errorf("%w: id %s does not match content", ErrMalformed,
			ev.id)
	}
	var valid bool
	if valid, err = keys.Verify(ev.pubkey, id, ev.sig); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}
	if !valid {
		return fmt.Errorf("%w: event %s by %s", ErrInvalidSignature, ev.id,
			ev.pubkey)
	}
	return nil
}

// Verify is a function form of T.Verify usable as a verifier value.
func Verify(ev *T) error { return ev.Verify() }

// Draft is an unsigned event under construction. Sign turns it into a T.
type Draft struct {
	CreatedAt timestamp.T
	Kind      kind.T
	Tags      tags.T
	Content   string
}

// Note returns a plain text note draft stamped with the current time.
func Note(content string, t ...[]string) (d *Draft) {
	d = &Draft{
		CreatedAt: timestamp.Now(),
		Kind:      kind.TextNote,
		Content:   content,
	}
	for _, tg := range t {
		d.Tags = append(d.Tags, tg)
	}
	return
}

// Canonical returns the canonical form the draft would have if signed by
// pubkey.
func (d *Draft) Canonical(pubkey string) []byte {
	return Canonical(pubkey, d.CreatedAt, d.Kind, d.Tags, d.Content)
}

// Sign computes the id and signature for the draft as authored by s. The
// draft is copied, so later changes to it do not affect the returned event.
func (d *Draft) Sign(s Signer) (ev *T, err error) {
	pub := s.PubKey()
	if !keys.IsValid32ByteHex(pub) {
		return nil, log.E.Err("signer has invalid public key '%s'", pub)
	}
	id := Hash(d.Canonical(pub))
	var sig []byte
	if sig, err = s.Sign(id); chk.E(err) {
		return nil, fmt.Errorf("signing event: %w", err)
	}
	ev = &T{
		id:        eventid.T(hex.Enc(id)),
		pubkey:    pub,
		createdAt: d.CreatedAt,
		kind:      d.Kind,
		tags:      d.Tags.Clone(),
		content:   d.Content,
		sig:       hex.Enc(sig),
	}
	log.T.Ln("signed event", ev.id)
	return
}
