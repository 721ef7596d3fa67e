// Package badger is an eventstore.Store on an embedded badger database, used
// as a local cache of verified feed events.
package badger

import (
	"os"
	"sync"

	"github.com/Hubmakerlabs/feedr/pkg/eventstore"
	"github.com/Hubmakerlabs/feedr/pkg/slog"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

var log, chk = slog.New(os.Stderr)

var _ eventstore.Store = (*Backend)(nil)

// DefaultMaxLimit caps the number of events one query returns.
const DefaultMaxLimit = 500

type Backend struct {
	// Path is the database directory. It is ignored when InMemory is set.
	Path     string
	InMemory bool
	// MaxLimit is the most events a single query will return.
	MaxLimit int
	WG       sync.WaitGroup
	// DB is the badger db interface
	*badger.DB
	// seq is the monotonic collision free index for raw event storage.
	seq *badger.Sequence
}

// GetBackend returns a reasonably configured Backend. Call Init to open it.
func GetBackend(path string, inMemory bool) (b *Backend) {
	return &Backend{Path: path, InMemory: inMemory, MaxLimit: DefaultMaxLimit}
}

func (b *Backend) Init() (err error) {
	var opts badger.Options
	if b.InMemory {
		log.D.Ln("opening in-memory event cache")
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		log.I.Ln("opening badger event cache at", b.Path)
		opts = badger.DefaultOptions(b.Path)
	}
	opts.Compression = options.ZSTD
	opts.CompactL0OnClose = true
	opts.Logger = logger{Level: slog.Warn, Label: "badger " + b.Path}
	if b.DB, err = badger.Open(opts); chk.E(err) {
		return err
	}
	if b.seq, err = b.DB.GetSequence([]byte("events"), 1000); chk.E(err) {
		_ = b.DB.Close()
		return err
	}
	if err = b.runMigrations(); chk.E(err) {
		_ = b.Close()
		return log.E.Err("error running migrations: %w; %s", err, b.Path)
	}
	if b.MaxLimit <= 0 {
		b.MaxLimit = DefaultMaxLimit
	}
	return nil
}

// Close waits for writes in progress and closes the database.
func (b *Backend) Close() (err error) {
	b.WG.Wait()
	if b.seq != nil {
		chk.E(b.seq.Release())
	}
	return b.DB.Close()
}

// Serial returns a new serial value, used to store an event record with a
// conflict-free unique code (it is a monotonic, atomic, ascending counter).
func (b *Backend) Serial() (ser []byte, err error) {
	var n uint64
	if n, err = b.seq.Next(); chk.E(err) {
		return
	}
	return serialBytes(n), nil
}

// Count returns the number of stored events.
func (b *Backend) Count() (n int, err error) {
	err = b.View(func(txn *badger.Txn) (err error) {
		prefix := []byte{prefixEvent}
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return
	})
	return
}
