package feed_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/Hubmakerlabs/feedr/pkg/feed"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/event/eventest"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/timestamp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timestamps(s feed.Snapshot) (ts []timestamp.T) {
	for _, ev := range s {
		ts = append(ts, ev.CreatedAt())
	}
	return
}

func TestIngestOrdersNewestFirst(t *testing.T) {
	kp := eventest.Keypair(t)
	a := feed.New()
	for _, ts := range []timestamp.T{100, 300, 200} {
		added, err := a.Ingest(eventest.Note(t, kp, ts, ts.String()), "wss://a")
		require.NoError(t, err)
		assert.True(t, added)
	}
	assert.Equal(t, []timestamp.T{300, 200, 100}, timestamps(a.Snapshot()))
}

func TestEqualTimestampsOrderedByID(t *testing.T) {
	kp := eventest.Keypair(t)
	a := feed.New()
	x := eventest.Note(t, kp, 500, "first of a pair")
	y := eventest.Note(t, kp, 500, "second of a pair")
	require.NotEqual(t, x.ID(), y.ID())
	older := eventest.Note(t, kp, 400, "older")
	for _, ev := range []*event.T{older, y, x} {
		_, err := a.Ingest(ev, "wss://a")
		require.NoError(t, err)
	}
	s := a.Snapshot()
	require.Len(t, s, 3)
	assert.Equal(t, []timestamp.T{500, 500, 400}, timestamps(s))
	assert.Less(t, s[0].ID().String(), s[1].ID().String())
}

func TestIngestIsIdempotent(t *testing.T) {
	kp := eventest.Keypair(t)
	a := feed.New()
	ev := eventest.Note(t, kp, 100, "once")
	added, err := a.Ingest(ev, "wss://a")
	require.NoError(t, err)
	assert.True(t, added)
	// the same event from another relay
	added, err = a.Ingest(ev, "wss://b")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 1, a.Len())
	st := a.Stats()
	assert.Equal(t, 1, st.Retained)
	assert.Equal(t, 1, st.Duplicates)
}

func TestIngestRejectsInvalidEvents(t *testing.T) {
	ev, err := event.Parse([]byte(eventest.Tampered))
	require.NoError(t, err)
	a := feed.New()
	added, err := a.Ingest(ev, "wss://evil")
	assert.False(t, added)
	assert.ErrorIs(t, err, event.ErrMalformed)
	assert.Zero(t, a.Len())
	assert.Equal(t, 1, a.Stats().Rejected)
}

func TestCustomVerifier(t *testing.T) {
	bad := errors.New("nope")
	a := feed.New(feed.WithVerifier(func(*event.T) error { return bad }))
	_, err := a.Ingest(eventest.Note(t, eventest.Keypair(t), 1, "x"), "r")
	assert.ErrorIs(t, err, bad)
}

func TestEvictionKeepsNewest(t *testing.T) {
	kp := eventest.Keypair(t)
	var added []*event.T
	a := feed.New(feed.WithCapacity(3),
		feed.WithOnAdd(func(ev *event.T, from string) {
			added = append(added, ev)
		}))
	for _, ts := range []timestamp.T{10, 50, 20, 40, 30} {
		_, err := a.Ingest(eventest.Note(t, kp, ts, ts.String()), "r")
		require.NoError(t, err)
	}
	before := a.Snapshot()
	assert.Equal(t, []timestamp.T{50, 40, 30}, timestamps(before))
	// an event older than everything in a full feed is not kept
	ok, err := a.Ingest(eventest.Note(t, kp, 1, "ancient"), "r")
	require.NoError(t, err)
	assert.False(t, ok)
	// snapshots already taken are not affected by later changes
	_, err = a.Ingest(eventest.Note(t, kp, 60, "newer"), "r")
	require.NoError(t, err)
	assert.Equal(t, []timestamp.T{50, 40, 30}, timestamps(before))
	assert.Equal(t, []timestamp.T{60, 50, 40}, timestamps(a.Snapshot()))
	assert.Len(t, added, 6)
	assert.Equal(t, 4, a.Stats().Evicted)
}

func TestConcurrentIngest(t *testing.T) {
	kp := eventest.Keypair(t)
	evs := eventest.RandomNotes(t, kp, 200)
	a := feed.New(feed.WithCapacity(1000))
	var wg sync.WaitGroup
	// every relay delivers every event
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, ev := range evs {
				_, err := a.Ingest(ev, "relay")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	s := a.Snapshot()
	require.Len(t, s, len(evs))
	for i := 1; i < len(s); i++ {
		assert.True(t, event.Before(s[i-1], s[i]))
	}
	st := a.Stats()
	assert.Equal(t, 200, st.Ingested)
	assert.Equal(t, 600, st.Duplicates)
}

func TestSnapshotFilter(t *testing.T) {
	alice, bob := eventest.Keypair(t), eventest.Keypair(t)
	a := feed.New()
	_, _ = a.Ingest(eventest.Note(t, alice, 1, "a1", []string{"t", "go"}), "r")
	_, _ = a.Ingest(eventest.Note(t, bob, 2, "b1"), "r")
	_, _ = a.Ingest(eventest.Note(t, alice, 3, "a2"), "r")
	_, _ = a.Ingest(eventest.Note(t, alice, 4, "a3", []string{"t", "go"}), "r")
	s := a.Snapshot()
	byAlice := s.Filter(&filter.T{Authors: []string{alice.PubKey()}})
	assert.Equal(t, []timestamp.T{4, 3, 1}, timestamps(byAlice))
	limited := s.Filter(&filter.T{Authors: []string{alice.PubKey()}, Limit: 2})
	assert.Equal(t, []timestamp.T{4, 3}, timestamps(limited))
	tagged := s.Filter(&filter.T{Tags: filter.TagMap{"t": {"go"}}})
	assert.Equal(t, []timestamp.T{4, 1}, timestamps(tagged))
	assert.Len(t, s.Filter(nil), 4)
}
