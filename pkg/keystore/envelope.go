package keystore

import (
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/Hubmakerlabs/feedr/pkg/nostr/keys"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
	"lukechampine.com/frand"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FormatVersion is the newest envelope layout this package writes and reads.
const FormatVersion = 1

const saltLen = 16

// KDF holds the scrypt cost parameters stored alongside each envelope.
type KDF struct {
	Name string `json:"name"`
	N    int    `json:"n"`
	R    int    `json:"r"`
	P    int    `json:"p"`
}

// DefaultKDF is used for every new envelope.
var DefaultKDF = KDF{Name: "scrypt", N: 1 << 15, R: 8, P: 1}

// envelope is the on-disk form of a sealed identity. PubKey is kept in the
// clear so the identity can be shown without a password; it is also bound
// into the ciphertext as associated data.
type envelope struct {
	Version   int    `json:"version"`
	PubKey    string `json:"pubkey"`
	Protected bool   `json:"protected"`
	KDF       KDF    `json:"kdf"`
	Salt      []byte `json:"salt"`
	Nonce     []byte `json:"nonce"`
	Cipher    []byte `json:"cipher"`
}

func deriveKey(password []byte, salt []byte, k KDF) (key []byte, err error) {
	if k.Name != "scrypt" {
		return nil, fmt.Errorf("unknown kdf %q", k.Name)
	}
	return scrypt.Key(password, salt, k.N, k.R, k.P, chacha20poly1305.KeySize)
}

// seal encrypts the secret of kp under password.
func seal(kp *keys.Keypair, password []byte, k KDF) (env *envelope, err error) {
	var secret []byte
	if secret, err = kp.Secret(); chk.E(err) {
		return
	}
	defer memzero(secret)
	env = &envelope{
		Version:   FormatVersion,
		PubKey:    kp.PubKey(),
		Protected: len(password) > 0,
		KDF:       k,
		Salt:      frand.Bytes(saltLen),
		Nonce:     frand.Bytes(chacha20poly1305.NonceSize),
	}
	var key []byte
	if key, err = deriveKey(password, env.Salt, k); chk.E(err) {
		return nil, err
	}
	defer memzero(key)
	var aead cipher.AEAD
	if aead, err = chacha20poly1305.New(key); chk.E(err) {
		return nil, err
	}
	env.Cipher = aead.Seal(nil, env.Nonce, secret, []byte(env.PubKey))
	return
}

// open decrypts env and checks the recovered key against the stored public
// key. Any failure after parsing is reported as ErrAuthentication.
func open(env *envelope, password []byte) (kp *keys.Keypair, err error) {
	if env.Version > FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	if len(env.Nonce) != chacha20poly1305.NonceSize || len(env.Salt) == 0 {
		return nil, fmt.Errorf("%w: malformed envelope", ErrAuthentication)
	}
	var key []byte
	if key, err = deriveKey(password, env.Salt, env.KDF); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	defer memzero(key)
	var aead cipher.AEAD
	if aead, err = chacha20poly1305.New(key); chk.E(err) {
		return nil, err
	}
	var secret []byte
	if secret, err = aead.Open(nil, env.Nonce, env.Cipher,
		[]byte(env.PubKey)); err != nil {
		return nil, ErrAuthentication
	}
	defer memzero(secret)
	if kp, err = keys.FromSecret(secret); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if kp.PubKey() != env.PubKey {
		kp.Zero()
		return nil, errors.Join(ErrAuthentication,
			errors.New("stored public key does not match secret"))
	}
	return
}

func memzero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
