// Package keys holds the secp256k1 identity keypair and its BIP-340 schnorr
// signing operation.
package keys

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/Hubmakerlabs/feedr/pkg/hex"
	"github.com/Hubmakerlabs/feedr/pkg/slog"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

var log, chk = slog.New(os.Stderr)

const (
	// SecretKeyLen is the length in bytes of a raw secret key.
	SecretKeyLen = 32
	// PubKeyLen is the length in bytes of an x-only public key.
	PubKeyLen = schnorr.PubKeyBytesLen
)

var (
	ErrInvalidSecret = errors.New("invalid secret key")
	ErrZeroed        = errors.New("keypair has been zeroed")
)

// Keypair is a secret scalar and the x-only public key derived from it. The
// secret never leaves the value except through Secret, which exists for the
// keystore to seal it.
type Keypair struct {
	mx  sync.RWMutex
	sec *btcec.PrivateKey
	pub string
}

// Generate creates a new keypair from the operating system's secure random
// source.
func Generate() (kp *Keypair, err error) {
	var sk *btcec.PrivateKey
	if sk, err = btcec.NewPrivateKey(); chk.E(err) {
		return nil, fmt.Errorf("generating secret key: %w", err)
	}
	return fromPrivateKey(sk), nil
}

// FromSecret builds a keypair from 32 raw secret key bytes. Values of zero
// or not below the curve order are rejected rather than reduced.
func FromSecret(b []byte) (kp *Keypair, err error) {
	if len(b) != SecretKeyLen {
		return nil, fmt.Errorf("%w: length %d, want %d", ErrInvalidSecret,
			len(b), SecretKeyLen)
	}
	var s btcec.ModNScalar
	if overflow := s.SetByteSlice(b); overflow || s.IsZero() {
		return nil, fmt.Errorf("%w: out of range", ErrInvalidSecret)
	}
	s.Zero()
	sk, _ := btcec.PrivKeyFromBytes(b)
	return fromPrivateKey(sk), nil
}

// FromHex builds a keypair from a 64 character hex secret key.
func FromHex(skHex string) (kp *Keypair, err error) {
	var b []byte
	if b, err = hex.Dec(skHex); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSecret, err)
	}
	defer zero(b)
	return FromSecret(b)
}

func fromPrivateKey(sk *btcec.PrivateKey) *Keypair {
	return &Keypair{
		sec: sk,
		pub: hex.Enc(schnorr.SerializePubKey(sk.PubKey())),
	}
}

// PubKey returns the x-only public key as lowercase hex.
func (k *Keypair) PubKey() string { return k.pub }

// Sign produces a 64 byte BIP-340 signature over a 32 byte hash.
func (k *Keypair) Sign(hash []byte) (sig []byte, err error) {
	k.mx.RLock()
	defer k.mx.RUnlock()
	if k.sec == nil {
		return nil, ErrZeroed
	}
	var s *schnorr.Signature
	if s, err = schnorr.Sign(k.sec, hash); chk.E(err) {
		return
	}
	return s.Serialize(), nil
}

// Secret returns a copy of the raw secret key. The caller owns the copy and
// should zero it when done.
func (k *Keypair) Secret() (b []byte, err error) {
	k.mx.RLock()
	defer k.mx.RUnlock()
	if k.sec == nil {
		return nil, ErrZeroed
	}
	return k.sec.Serialize(), nil
}

// SecretHex returns the secret key as hex, for explicit display only.
func (k *Keypair) SecretHex() (s string, err error) {
	var b []byte
	if b, err = k.Secret(); err != nil {
		return
	}
	defer zero(b)
	return hex.Enc(b), nil
}

// Zero wipes the secret scalar. The keypair can no longer sign afterwards.
func (k *Keypair) Zero() {
	k.mx.Lock()
	defer k.mx.Unlock()
	if k.sec != nil {
		k.sec.Zero()
		k.sec = nil
		log.T.Ln("keypair zeroed", k.pub)
	}
}

// GetPublicKey derives the hex public key of a hex secret key.
func GetPublicKey(sk string) (pk string, err error) {
	var kp *Keypair
	if kp, err = FromHex(sk); err != nil {
		return
	}
	defer kp.Zero()
	return kp.PubKey(), nil
}

// ParsePubKey decodes and validates a hex x-only public key.
func ParsePubKey(pk string) (pub *btcec.PublicKey, err error) {
	if !IsValid32ByteHex(pk) {
		return nil, fmt.Errorf("public key '%s' is not 64 lowercase hex "+
			"characters", pk)
	}
	var b []byte
	if b, err = hex.Dec(pk); err != nil {
		return
	}
	return schnorr.ParsePubKey(b)
}

// Verify checks a hex signature over hash against a hex public key.
func Verify(pk string, hash []byte, sigHex string) (valid bool, err error) {
	var pub *btcec.PublicKey
	if pub, err = ParsePubKey(pk); err != nil {
		return
	}
	var sb []byte
	if sb, err = hex.Dec(sigHex); err != nil {
		return false, fmt.Errorf("signature is invalid hex: %w", err)
	}
	var sig *schnorr.Signature
	if sig, err = schnorr.ParseSignature(sb); err != nil {
		return
	}
	return sig.Verify(hash, pub), nil
}

// IsValid32ByteHex reports whether pk is 64 lowercase hex characters.
func IsValid32ByteHex(pk string) bool { return hex.IsLowerHex(pk, 64) }

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
