// Package keystore keeps the user's identity on disk, sealed under a
// password.
package keystore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Hubmakerlabs/feedr/pkg/atomicfile"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/keys"
	"github.com/Hubmakerlabs/feedr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

// FileName is the name of the identity file inside the data directory.
const FileName = "identity.json"

var (
	// ErrNotFound means no identity has been saved yet.
	ErrNotFound = errors.New("no identity stored")
	// ErrAuthentication covers a wrong password as well as a corrupted or
	// tampered identity file; the two cannot be told apart.
	ErrAuthentication = errors.New("wrong password or corrupted identity")
	// ErrUnsupportedVersion is returned for files written by a newer version.
	ErrUnsupportedVersion = errors.New("unsupported identity file version")
)

// Protection reports how a saved identity is guarded.
type Protection int

const (
	Protected Protection = iota
	// Unprotected identities are sealed with the empty password, so anyone
	// who can read the file can recover the key.
	Unprotected
)

func (p Protection) String() string {
	if p == Protected {
		return "protected"
	}
	return "unprotected"
}

// Store is an identity file in a directory.
type Store struct {
	Path string
	KDF  KDF
}

// New returns a store for the identity file in dir. Nothing is read or
// created until it is used.
func New(dir string) *Store {
	return &Store{Path: filepath.Join(dir, FileName), KDF: DefaultKDF}
}

// Generate creates a fresh keypair. It is not saved.
func Generate() (*keys.Keypair, error) { return keys.Generate() }

// Save seals kp under password and replaces any stored identity.
func (s *Store) Save(kp *keys.Keypair, password string) (p Protection,
	err error) {

	pw := []byte(password)
	defer memzero(pw)
	var env *envelope
	if env, err = seal(kp, pw, s.KDF); chk.E(err) {
		return
	}
	var b []byte
	if b, err = json.MarshalIndent(env, "", "  "); chk.E(err) {
		return
	}
	if err = atomicfile.Write(s.Path, b, atomicfile.FileMode); chk.E(err) {
		return
	}
	if !env.Protected {
		log.W.F("identity %s saved without a password to %s", env.PubKey,
			s.Path)
		return Unprotected, nil
	}
	log.I.F("identity %s saved to %s", env.PubKey, s.Path)
	return Protected, nil
}

func (s *Store) read() (env *envelope, err error) {
	var b []byte
	if b, err = atomicfile.Read(s.Path); chk.E(err) {
		return
	}
	if b == nil {
		return nil, ErrNotFound
	}
	env = &envelope{}
	if err = json.Unmarshal(b, env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if env.Version > FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	if !keys.IsValid32ByteHex(env.PubKey) {
		return nil, fmt.Errorf("%w: bad public key", ErrAuthentication)
	}
	return
}

// Load unseals the stored identity. The caller owns the keypair and should
// Zero it when done.
func (s *Store) Load(password string) (kp *keys.Keypair, err error) {
	var env *envelope
	if env, err = s.read(); err != nil {
		return
	}
	pw := []byte(password)
	defer memzero(pw)
	if kp, err = open(env, pw); err != nil {
		log.D.F("opening %s: %v", s.Path, err)
		return
	}
	log.D.Ln("loaded identity", kp.PubKey())
	return
}

// PublicKey returns the stored identity's public key without unsealing it.
func (s *Store) PublicKey() (pk string, err error) {
	var env *envelope
	if env, err = s.read(); err != nil {
		return
	}
	return env.PubKey, nil
}

// Protected reports whether the stored identity has a password.
func (s *Store) Protected() (ok bool, err error) {
	var env *envelope
	if env, err = s.read(); err != nil {
		return
	}
	return env.Protected, nil
}

// Exists reports whether an identity file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path)
	return err == nil
}

// Delete removes the stored identity.
func (s *Store) Delete() (err error) {
	if err = os.Remove(s.Path); errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return
}
