package main

import (
	"fmt"
	"os"

	"github.com/Hubmakerlabs/feedr/app"
	"github.com/Hubmakerlabs/feedr/pkg/keystore"
	"github.com/gookit/color"
	"github.com/mdp/qrterminal/v3"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/urfave/cli/v2"
)

func GenerateKeys(cCtx *cli.Context) (err error) {
	var cl *app.Client
	if cl, err = session(cCtx); err != nil {
		return
	}
	if cl.Keys.Exists() {
		log.W.Ln("replacing the identity stored at", cl.Keys.Path)
	}
	pw := cCtx.String("password")
	if !cCtx.IsSet("password") {
		if pw, err = newPassword(); err != nil {
			return
		}
	}
	var pub string
	var p keystore.Protection
	if pub, p, err = cl.GenerateIdentity(pw); err != nil {
		return
	}
	npub, err := nip19.EncodePublicKey(pub)
	if chk.E(err) {
		return
	}
	fmt.Println("generated and saved a new keypair")
	fmt.Println("public key:", npub)
	fmt.Println("stored at: ", cl.Keys.Path)
	if p == keystore.Unprotected {
		fmt.Println(color.Yellow.Sprint(
			"the key has no password; anyone who can read the file can use it"))
	}
	return
}

func ShowKeys(cCtx *cli.Context) (err error) {
	var cl *app.Client
	if cl, err = session(cCtx); err != nil {
		return
	}
	var pub string
	if pub, err = cl.PublicKey(); err != nil {
		return
	}
	npub, err := nip19.EncodePublicKey(pub)
	if chk.E(err) {
		return
	}
	fmt.Println("public key (hex):   ", pub)
	fmt.Println("public key (bech32):", npub)
	if !cCtx.Bool("public") {
		var pw string
		if pw, err = password(cCtx.String("password"),
			cCtx.IsSet("password")); err != nil {
			return
		}
		if err = cl.LoadIdentity(pw); err != nil {
			return
		}
		var sk, nsec string
		if sk, err = cl.SecretKey(); chk.E(err) {
			return
		}
		if nsec, err = nip19.EncodePrivateKey(sk); chk.E(err) {
			return
		}
		fmt.Println("secret key (hex):   ", color.Red.Sprint(sk))
		fmt.Println("secret key (bech32):", color.Red.Sprint(nsec))
	}
	if cCtx.Bool("qr") {
		qrterminal.GenerateWithConfig("nostr:"+npub, qrterminal.Config{
			HalfBlocks: false,
			Level:      qrterminal.L,
			Writer:     os.Stdout,
			WhiteChar:  qrterminal.WHITE,
			BlackChar:  qrterminal.BLACK,
			QuietZone:  2,
		})
	}
	return
}

func DeleteKeys(cCtx *cli.Context) (err error) {
	var cl *app.Client
	if cl, err = session(cCtx); err != nil {
		return
	}
	var pub string
	if pub, err = cl.PublicKey(); err != nil {
		return
	}
	npub, err := nip19.EncodePublicKey(pub)
	if chk.E(err) {
		return
	}
	if !cCtx.Bool("yes") {
		var ok bool
		if ok, err = confirm(fmt.Sprintf(
			"destroy the identity %s? this cannot be undone [y/N] ",
			npub)); err != nil {
			return
		}
		if !ok {
			fmt.Println("kept the identity")
			return
		}
	}
	var pw string
	if pw, err = password(cCtx.String("password"),
		cCtx.IsSet("password")); err != nil {
		return
	}
	if _, err = cl.DeleteIdentity(pw); err != nil {
		return
	}
	fmt.Println("deleted identity", npub)
	return
}
