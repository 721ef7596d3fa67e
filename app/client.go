// Package app is the client session behind the command line: the loaded
// identity, the relay pool, the feed and the local event cache.
package app

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/Hubmakerlabs/feedr/pkg/config"
	"github.com/Hubmakerlabs/feedr/pkg/context"
	"github.com/Hubmakerlabs/feedr/pkg/eventstore"
	"github.com/Hubmakerlabs/feedr/pkg/eventstore/badger"
	"github.com/Hubmakerlabs/feedr/pkg/feed"
	"github.com/Hubmakerlabs/feedr/pkg/keystore"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/keys"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/pool"
	"github.com/Hubmakerlabs/feedr/pkg/relaylist"
	"github.com/Hubmakerlabs/feedr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

var Version = "v0.1.0"

var (
	ErrNoIdentity   = errors.New("no identity loaded")
	ErrNoRelays     = errors.New("no relay could be reached")
	ErrNotPublished = errors.New("no relay accepted the event")
)

// Client is one session. Relays are only contacted once an operation needs
// them.
type Client struct {
	Config *config.Config
	Keys   *keystore.Store
	Relays *relaylist.T
	Pool   *pool.T
	Feed   *feed.Aggregator
	// Cache is nil when caching is disabled or the database could not be
	// opened.
	Cache eventstore.Store

	ctx    context.T
	cancel context.F
	once   sync.Once
	mx     sync.Mutex
	kp     *keys.Keypair
	online bool
}

// New opens a session on the data directory in cfg. Extra pool options are
// applied after the ones derived from cfg.
func New(c context.T, cfg *config.Config, opts ...pool.Option) (cl *Client,
	err error) {

	cl = &Client{Config: cfg, Keys: keystore.New(cfg.DataDir)}
	if cl.Relays, err = relaylist.Load(cfg.DataDir); chk.E(err) {
		return nil, err
	}
	cl.ctx, cl.cancel = context.Cancel(c)
	popts := []pool.Option{
		pool.WithConnectTimeout(cfg.ConnectTimeout),
		pool.WithPublishTimeout(cfg.PublishTimeout),
		pool.WithBackoff{Min: cfg.BackoffMin, Max: cfg.BackoffMax},
	}
	cl.Pool = pool.New(cl.ctx, append(popts, opts...)...)
	if cfg.Cache {
		b := badger.GetBackend(filepath.Join(cfg.DataDir, "cache"), false)
		if err = b.Init(); err != nil {
			log.W.F("continuing without event cache: %v", err)
			err = nil
		} else {
			cl.Cache = b
		}
	}
	cl.Feed = feed.New(feed.WithCapacity(cfg.FeedCapacity),
		feed.WithOnAdd(cl.cacheEvent))
	return
}

func (cl *Client) cacheEvent(ev *event.T, from string) {
	if cl.Cache == nil || from == cacheOrigin {
		return
	}
	if err := cl.Cache.SaveEvent(cl.ctx, ev); err != nil &&
		!errors.Is(err, eventstore.ErrDupEvent) {
		log.W.F("caching %s: %v", ev.ID(), err)
	}
}

// keypair returns the session identity.
func (cl *Client) keypair() (kp *keys.Keypair, err error) {
	cl.mx.Lock()
	defer cl.mx.Unlock()
	if cl.kp == nil {
		return nil, ErrNoIdentity
	}
	return cl.kp, nil
}

func (cl *Client) setKeypair(kp *keys.Keypair) {
	cl.mx.Lock()
	defer cl.mx.Unlock()
	if cl.kp != nil && cl.kp != kp {
		cl.kp.Zero()
	}
	cl.kp = kp
}

// Close disconnects from every relay, closes the cache and wipes the loaded
// secret key.
func (cl *Client) Close() {
	cl.once.Do(func() {
		cl.Pool.Close()
		cl.cancel()
		if cl.Cache != nil {
			chk.E(cl.Cache.Close())
		}
		cl.mx.Lock()
		if cl.kp != nil {
			cl.kp.Zero()
			cl.kp = nil
		}
		cl.mx.Unlock()
	})
}
