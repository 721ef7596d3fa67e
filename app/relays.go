package app

import (
	"github.com/Hubmakerlabs/feedr/pkg/context"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/interfaces/relay"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/normalize"
)

// RelayStatus is one configured relay. Default is set when the user has no
// relays of their own and the configured defaults are in use.
type RelayStatus struct {
	URL     string
	Status  relay.Status
	Default bool
}

// urls returns the relays the session talks to.
func (cl *Client) urls() (urls []string, defaults bool) {
	if cl.Relays.Len() > 0 {
		return append([]string{}, cl.Relays.Relays...), false
	}
	for _, u := range cl.Config.DefaultRelays {
		if nm := normalize.URL(u); nm != "" {
			urls = append(urls, nm)
		}
	}
	return urls, true
}

// connect adds the session's relays to the pool the first time it is
// needed and waits for each to make its first connection attempt.
func (cl *Client) connect(c context.T) (connected int) {
	cl.mx.Lock()
	if !cl.online {
		cl.online = true
		urls, defaults := cl.urls()
		if defaults {
			log.I.Ln("no relays configured, using", urls)
		}
		for _, u := range urls {
			cl.Pool.Add(u)
		}
	}
	cl.mx.Unlock()
	c, cancel := context.Timeout(c, cl.Config.ConnectTimeout)
	defer cancel()
	return cl.Pool.WaitReady(c)
}

// AddRelay saves url to the relay list. added is false when it was already
// there.
func (cl *Client) AddRelay(url string) (nm string, added bool, err error) {
	cl.mx.Lock()
	defer cl.mx.Unlock()
	hadOwn := cl.Relays.Len() > 0
	if nm, added, err = cl.Relays.Add(url); err != nil || !added {
		return
	}
	if cl.online {
		if !hadOwn {
			// the user's own list replaces the defaults
			for _, u := range cl.Config.DefaultRelays {
				if u = normalize.URL(u); u != nm {
					cl.Pool.Remove(u)
				}
			}
		}
		cl.Pool.Add(nm)
	}
	log.I.Ln("added relay", nm)
	return
}

// RemoveRelay deletes url from the relay list. removed is false when it was
// not there.
func (cl *Client) RemoveRelay(url string) (removed bool, err error) {
	cl.mx.Lock()
	defer cl.mx.Unlock()
	if removed, err = cl.Relays.Remove(url); err != nil || !removed {
		return
	}
	if cl.online {
		cl.Pool.Remove(url)
		if cl.Relays.Len() == 0 {
			for _, u := range cl.Config.DefaultRelays {
				cl.Pool.Add(u)
			}
		}
	}
	log.I.Ln("removed relay", normalize.URL(url))
	return
}

// ListRelays returns the relays in use with their connection state.
func (cl *Client) ListRelays() (list []RelayStatus) {
	urls, defaults := cl.urls()
	for _, u := range urls {
		rs := RelayStatus{URL: u, Default: defaults}
		if s, err := cl.Pool.Status(u); err == nil {
			rs.Status = s
		}
		list = append(list, rs)
	}
	return
}
