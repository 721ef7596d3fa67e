// Package eventest provides signed events for tests in other packages.
package eventest

import (
	"os"
	"testing"

	"github.com/Hubmakerlabs/feedr/pkg/hex"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/keys"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/timestamp"
	"github.com/Hubmakerlabs/feedr/pkg/slog"
	"lukechampine.com/frand"
)

var log, chk = slog.New(os.Stderr)

// Keypair generates a fresh identity, failing the test on error.
func Keypair(t testing.TB) (kp *keys.Keypair) {
	t.Helper()
	var err error
	if kp, err = keys.Generate(); chk.E(err) {
		t.Fatalf("generating keypair: %v", err)
	}
	return
}

// Note signs a text note with the given timestamp and content.
func Note(t testing.TB, kp *keys.Keypair, createdAt timestamp.T,
	content string, tg ...[]string) (ev *event.T) {

	t.Helper()
	d := event.Note(content, tg...)
	d.CreatedAt = createdAt
	var err error
	if ev, err = d.Sign(kp); chk.E(err) {
		t.Fatalf("signing note: %v", err)
	}
	return
}

// RandomNotes signs n text notes with random content and random timestamps
// within the day before now.
func RandomNotes(t testing.TB, kp *keys.Keypair, n int) (evs []*event.T) {
	t.Helper()
	now := timestamp.Now()
	for i := 0; i < n; i++ {
		content := hex.Enc(frand.Bytes(frand.Intn(64) + 1))
		ts := now - timestamp.T(frand.Intn(86400))
		evs = append(evs, Note(t, kp, ts, content))
	}
	log.T.F("generated %d notes for %s", n, kp.PubKey())
	return
}

// Tampered is a kind 4 event whose content was changed after signing, so
// its id no longer matches.
const Tampered = `{"id":"92570b321da503eac8014b23447301eb3d0bbdfbace0d11a4e4072e72bb7205d",` +
	`"pubkey":"e9142f724955c5854de36324dab0434f97b15ec6b33464d56ebe491e3f559d1b",` +
	`"created_at":1671028682,"kind":4,` +
	`"tags":[["p","f8340b2bde651576b75af61aa26c80e13c65029f00f7f64004eece679bf7059f"]],` +
	`"content":"you say \"\"yes, I say {[no}]",` +
	`"sig":"ed08d2dd5b0f7b6a3cdc74643d4adee3158ddede9cc848e8cd97630c097001ac` +
	`c2d052d2d3ec2b7ac4708b2314b797106d1b3c107322e61b5e5cc2116e099b79"}`
