package event_test

import (
	"fmt"
	"os"
	"sort"
	"testing"

	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/event/eventest"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/keys"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/tags"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/timestamp"
	"github.com/Hubmakerlabs/feedr/pkg/slog"
	jsoniter "github.com/json-iterator/go"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var log, chk = slog.New(os.Stderr)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	TestSecHex = "1797f6f1d10593548b566ba32e81577aa4bc990eb0f16556bf884f1af4b17c25"
	TestPubHex = "4fdb07df4a683e3ee9b2a9d117e01bfe2548d7e8c0d4cb56d77e9c23091c3fc3"
)

var TestEventContent = `This event contains { braces } and [ brackets ] that must be properly 
handled, as well as a line break, a dangling space and a 
	tab, "quotes", a \ backslash, </html> and unicode ✓.`

func testKeypair(t *testing.T) *keys.Keypair {
	kp, err := keys.FromHex(TestSecHex)
	require.NoError(t, err)
	return kp
}

func TestCanonicalForm(t *testing.T) {
	got := event.Canonical(TestPubHex, 1672068534, kind.TextNote,
		tags.T{{"e", "abc"}, {"p"}}, "a\"b\\c\nd\te\x01 é /")
	want := `[0,"` + TestPubHex + `",1672068534,1,[["e","abc"],["p"]],` +
		`"a\"b\\c\nd\te\u0001 é /"]`
	assert.Equal(t, want, string(got))
	// no tags still serializes as an empty array
	got = event.Canonical(TestPubHex, 0, kind.ProfileMetadata, nil, "")
	assert.Equal(t, `[0,"`+TestPubHex+`",0,0,[],""]`, string(got))
}

func TestCanonicalIsPure(t *testing.T) {
	d := &event.Draft{
		CreatedAt: 1700000000,
		Kind:      kind.TextNote,
		Tags:      tags.T{{"t", "nostr"}},
		Content:   TestEventContent,
	}
	a := d.Canonical(TestPubHex)
	b := d.Canonical(TestPubHex)
	assert.Equal(t, a, b)
	assert.Equal(t, event.DeriveID(a), event.DeriveID(b))
}

func TestSignVerifyRoundTrip(t *testing.T) {
	kp := testKeypair(t)
	d := event.Note(TestEventContent, []string{"t", "test"})
	ev, err := d.Sign(kp)
	require.NoError(t, err)
	assert.Equal(t, TestPubHex, ev.PubKey())
	assert.Equal(t, kind.TextNote, ev.Kind())
	require.NoError(t, ev.Verify())
	b, err := ev.MarshalJSON()
	require.NoError(t, err)
	ev2, err := event.Parse(b)
	require.NoError(t, err)
	require.NoError(t, ev2.Verify())
	assert.Equal(t, ev.ID(), ev2.ID())
	assert.Equal(t, ev.Content(), ev2.Content())
	assert.Equal(t, ev.Tags(), ev2.Tags())
	assert.Equal(t, ev.CreatedAt(), ev2.CreatedAt())
	assert.Equal(t, ev.Sig(), ev2.Sig())
}

func TestSignedEventIsDetachedFromDraft(t *testing.T) {
	kp := testKeypair(t)
	d := event.Note("hello", []string{"t", "one"})
	ev, err := d.Sign(kp)
	require.NoError(t, err)
	d.Content = "changed"
	d.Tags[0][1] = "two"
	tg := ev.Tags()
	tg[0][1] = "three"
	assert.Equal(t, "hello", ev.Content())
	assert.Equal(t, "one", ev.Tags()[0][1])
	assert.NoError(t, ev.Verify())
}

// reencode decodes the JSON form of ev into a map, applies fn and parses the
// result back into an event.
func reencode(t *testing.T, ev *event.T, fn func(m map[string]any)) *event.T {
	t.Helper()
	b, err := ev.MarshalJSON()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	fn(m)
	if b, err = json.Marshal(m); chk.E(err) {
		t.Fatal(err)
	}
	var out *event.T
	out, err = event.Parse(b)
	require.NoError(t, err)
	return out
}

func TestTamperingIsDetected(t *testing.T) {
	kp := testKeypair(t)
	ev := eventest.Note(t, kp, 1700000000, "original")
	other := eventest.Note(t, kp, 1700000001, "another")

	tampered := reencode(t, ev, func(m map[string]any) {
		m["content"] = "forged"
	})
	assert.ErrorIs(t, tampered.Verify(), event.ErrMalformed)

	tampered = reencode(t, ev, func(m map[string]any) {
		m["created_at"] = 1700000005
	})
	assert.ErrorIs(t, tampered.Verify(), event.ErrMalformed)

	tampered = reencode(t, ev, func(m map[string]any) {
		m["pubkey"] = eventest.Keypair(t).PubKey()
	})
	assert.ErrorIs(t, tampered.Verify(), event.ErrMalformed)

	// a well formed signature belonging to a different event
	tampered = reencode(t, ev, func(m map[string]any) {
		m["sig"] = other.Sig()
	})
	assert.ErrorIs(t, tampered.Verify(), event.ErrInvalidSignature)
}

func TestTamperedFixture(t *testing.T) {
	ev, err := event.Parse([]byte(eventest.Tampered))
	require.NoError(t, err)
	assert.ErrorIs(t, ev.Verify(), event.ErrMalformed)
}

func TestVerifyRejectsMalformedFields(t *testing.T) {
	kp := testKeypair(t)
	ev := eventest.Note(t, kp, 1700000000, "fields")
	for name, fn := range map[string]func(m map[string]any){
		"missing id":       func(m map[string]any) { delete(m, "id") },
		"uppercase id":     func(m map[string]any) { m["id"] = upper(ev.ID().String()) },
		"short pubkey":     func(m map[string]any) { m["pubkey"] = TestPubHex[:62] },
		"missing sig":      func(m map[string]any) { delete(m, "sig") },
		"non hex sig":      func(m map[string]any) { m["sig"] = "zz" + ev.Sig()[2:] },
		"truncated sig":    func(m map[string]any) { m["sig"] = ev.Sig()[:126] },
		"missing pubkey":   func(m map[string]any) { delete(m, "pubkey") },
		"uppercase pubkey": func(m map[string]any) { m["pubkey"] = upper(TestPubHex) },
	} {
		assert.ErrorIs(t, reencode(t, ev, fn).Verify(), event.ErrMalformed, name)
	}
	var nilEvent *event.T
	assert.ErrorIs(t, nilEvent.Verify(), event.ErrMalformed)
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'f' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	for _, s := range []string{``, `[`, `{"id":5}`, `{"tags":"nope"}`} {
		_, err := event.Parse([]byte(s))
		assert.Error(t, err, s)
	}
}

func TestInteroperatesWithGoNostr(t *testing.T) {
	kp := testKeypair(t)
	ev := eventest.Note(t, kp, 1672068534, TestEventContent,
		[]string{"e", "5c83da77af1dec6d7289834998ad7aafbd9e2191396d75ec3cc27f5a77226f36"},
		[]string{"client", "feedr"})
	b, err := ev.MarshalJSON()
	require.NoError(t, err)
	var ne nostr.Event
	require.NoError(t, json.Unmarshal(b, &ne))
	assert.Equal(t, ev.ID().String(), ne.GetID())
	ok, err := ne.CheckSignature()
	require.NoError(t, err)
	assert.True(t, ok)

	// and the other direction
	sk := nostr.GeneratePrivateKey()
	ne = nostr.Event{
		CreatedAt: nostr.Timestamp(1700000000),
		Kind:      nostr.KindTextNote,
		Tags:      nostr.Tags{{"t", "interop"}},
		Content:   "signed elsewhere \"quoted\"\n",
	}
	require.NoError(t, ne.Sign(sk))
	if b, err = json.Marshal(ne); chk.E(err) {
		t.Fatal(err)
	}
	ev, err = event.Parse(b)
	require.NoError(t, err)
	assert.NoError(t, ev.Verify())
}

func TestDescendingOrder(t *testing.T) {
	kp := testKeypair(t)
	var evs []*event.T
	for i, ts := range []timestamp.T{100, 300, 200, 300} {
		evs = append(evs, eventest.Note(t, kp, ts,
			fmt.Sprintf("%d-%s", i, ts)))
	}
	require.NotEqual(t, evs[1].ID(), evs[3].ID())
	sort.Sort(event.Descending(evs))
	assert.Equal(t, timestamp.T(300), evs[0].CreatedAt())
	assert.Equal(t, timestamp.T(300), evs[1].CreatedAt())
	assert.Less(t, evs[0].ID().String(), evs[1].ID().String())
	assert.Equal(t, timestamp.T(200), evs[2].CreatedAt())
	assert.Equal(t, timestamp.T(100), evs[3].CreatedAt())
	log.T.Ln("sorted", len(evs), "events")
}
