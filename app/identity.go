package app

import (
	"github.com/Hubmakerlabs/feedr/pkg/keystore"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/keys"
)

// GenerateIdentity creates a keypair, stores it under password and makes it
// the session identity. An empty password stores it unprotected.
func (cl *Client) GenerateIdentity(password string) (pub string,
	p keystore.Protection, err error) {

	var kp *keys.Keypair
	if kp, err = keystore.Generate(); chk.E(err) {
		return
	}
	if p, err = cl.Keys.Save(kp, password); chk.E(err) {
		kp.Zero()
		return
	}
	cl.setKeypair(kp)
	return kp.PubKey(), p, nil
}

// LoadIdentity unseals the stored identity for this session.
func (cl *Client) LoadIdentity(password string) (err error) {
	var kp *keys.Keypair
	if kp, err = cl.Keys.Load(password); err != nil {
		return
	}
	cl.setKeypair(kp)
	return
}

// PublicKey is the session identity's public key, or the stored one if none
// has been loaded.
func (cl *Client) PublicKey() (pub string, err error) {
	if kp, err := cl.keypair(); err == nil {
		return kp.PubKey(), nil
	}
	return cl.Keys.PublicKey()
}

// SecretKey returns the loaded secret key in hex, for display to its owner.
func (cl *Client) SecretKey() (sk string, err error) {
	var kp *keys.Keypair
	if kp, err = cl.keypair(); err != nil {
		return
	}
	return kp.SecretHex()
}

// BuildAndSignNote makes a text note from text and signs it with the session
// identity.
func (cl *Client) BuildAndSignNote(text string, tags ...[]string) (
	ev *event.T, err error) {

	var kp *keys.Keypair
	if kp, err = cl.keypair(); err != nil {
		return
	}
	if ev, err = event.Note(text, tags...).Sign(kp); chk.E(err) {
		return
	}
	log.D.F("signed note %s", ev.ID())
	return
}

// DeleteIdentity destroys the stored identity once password has been checked
// against it, and drops it from the session if it is the one loaded.
func (cl *Client) DeleteIdentity(password string) (pub string, err error) {
	var kp *keys.Keypair
	if kp, err = cl.Keys.Load(password); err != nil {
		return
	}
	pub = kp.PubKey()
	kp.Zero()
	if err = cl.Keys.Delete(); chk.E(err) {
		return
	}
	cl.mx.Lock()
	if cl.kp != nil && cl.kp.PubKey() == pub {
		cl.kp.Zero()
		cl.kp = nil
	}
	cl.mx.Unlock()
	log.I.Ln("deleted identity", pub)
	return
}
