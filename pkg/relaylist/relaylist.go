// Package relaylist persists the user's relay URLs in the data directory.
package relaylist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/Hubmakerlabs/feedr/pkg/atomicfile"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/normalize"
	"github.com/Hubmakerlabs/feedr/pkg/slog"
	jsoniter "github.com/json-iterator/go"
)

var log, chk = slog.New(os.Stderr)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	FileName = "relays.json"
	// Version is written to every saved list. Files without a version field
	// are the original layout and read as version 0.
	Version = 1
)

var (
	ErrInvalidURL         = errors.New("invalid relay URL")
	ErrUnsupportedVersion = errors.New("unsupported relay list version")
)

type file struct {
	Version int      `json:"version"`
	Relays  []string `json:"relays"`
}

// T is the relay list stored at Path. Relays keeps the order they were
// added in.
type T struct {
	Path   string
	Relays []string
}

// Load reads the list in dir. A missing file is an empty list.
func Load(dir string) (l *T, err error) {
	l = &T{Path: filepath.Join(dir, FileName)}
	var b []byte
	if b, err = atomicfile.Read(l.Path); chk.E(err) {
		return nil, err
	}
	if b == nil {
		return
	}
	var f file
	if err = json.Unmarshal(b, &f); chk.E(err) {
		return nil, fmt.Errorf("reading %s: %w", l.Path, err)
	}
	if f.Version > Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, f.Version)
	}
	for _, u := range f.Relays {
		if nm := normalize.URL(u); nm == "" {
			log.W.F("ignoring invalid relay URL '%s' in %s", u, l.Path)
		} else if !slices.Contains(l.Relays, nm) {
			l.Relays = append(l.Relays, nm)
		}
	}
	return
}

// Save writes the list, replacing the file atomically.
func (l *T) Save() (err error) {
	relays := l.Relays
	if relays == nil {
		relays = []string{}
	}
	var b []byte
	if b, err = json.MarshalIndent(file{Version: Version, Relays: relays}, "",
		"  "); chk.E(err) {
		return
	}
	return atomicfile.Write(l.Path, b, atomicfile.FileMode)
}

// Add appends url and returns the normalized form. added is false if it was
// already present, in which case the file is not touched.
func (l *T) Add(url string) (nm string, added bool, err error) {
	if nm = normalize.URL(url); nm == "" {
		return "", false, fmt.Errorf("%w: '%s'", ErrInvalidURL, url)
	}
	if l.Contains(nm) {
		return nm, false, nil
	}
	l.Relays = append(l.Relays, nm)
	if err = l.Save(); err != nil {
		l.Relays = l.Relays[:len(l.Relays)-1]
		return
	}
	return nm, true, nil
}

// Remove deletes url from the list. removed is false if it was not there.
func (l *T) Remove(url string) (removed bool, err error) {
	nm := normalize.URL(url)
	i := slices.Index(l.Relays, nm)
	if nm == "" || i < 0 {
		return false, nil
	}
	prev := slices.Clone(l.Relays)
	l.Relays = slices.Delete(l.Relays, i, i+1)
	if err = l.Save(); err != nil {
		l.Relays = prev
		return
	}
	return true, nil
}

func (l *T) Contains(url string) bool {
	return slices.Contains(l.Relays, normalize.URL(url))
}

func (l *T) Len() int { return len(l.Relays) }
