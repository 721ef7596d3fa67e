package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Hubmakerlabs/feedr/app"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/keys"
	"github.com/davecgh/go-spew/spew"
	"github.com/gookit/color"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/urfave/cli/v2"
)

// authorKey accepts a public key in hex or as an npub.
func authorKey(s string) (pk string, err error) {
	if s == "" || keys.IsValid32ByteHex(s) {
		return s, nil
	}
	if !strings.HasPrefix(s, "npub") {
		return "", fmt.Errorf("'%s' is not a public key", s)
	}
	var prefix string
	var v any
	if prefix, v, err = nip19.Decode(s); err != nil || prefix != "npub" {
		return "", fmt.Errorf("'%s' is not a valid npub: %v", s, err)
	}
	return v.(string), nil
}

type printer struct {
	json, dump bool
}

func (p printer) print(evs ...*event.T) {
	buffer := new(bytes.Buffer)
	fgRed := color.New(color.FgRed)
	fgBlue := color.New(color.FgBlue)
	for _, ev := range evs {
		switch {
		case p.json:
			b, err := ev.MarshalJSON()
			if chk.E(err) {
				continue
			}
			buffer.Write(b)
			buffer.WriteByte('\n')
			continue
		case p.dump:
			fmt.Fprint(buffer, spew.Sdump(ev))
			continue
		}
		author := ev.PubKey()
		if npub, err := nip19.EncodePublicKey(author); err == nil {
			author = npub
		}
		fmt.Fprintln(buffer, "-----------------------------------")
		fmt.Fprintln(buffer, fgRed.Sprint(author))
		fmt.Fprintln(buffer, fgBlue.Sprint(ev.CreatedAt().Time()))
		fmt.Fprintln(buffer, ev.Content())
	}
	fmt.Print(buffer.String())
}

func ShowFeed(cCtx *cli.Context) (err error) {
	var cl *app.Client
	if cl, err = session(cCtx); err != nil {
		return
	}
	var author string
	if author, err = authorKey(cCtx.String("pubkey")); err != nil {
		return
	}
	f := app.NoteFilter(author, strings.TrimPrefix(cCtx.String("hashtag"), "#"),
		cCtx.Int("limit"))
	p := printer{json: cCtx.Bool("json"), dump: cCtx.Bool("dump")}
	if !p.json {
		fmt.Fprintln(os.Stderr, "fetching events...")
	}
	s, err := cl.FetchFeed(cCtx.Context, f)
	if err != nil && !errors.Is(err, app.ErrNoRelays) {
		return
	}
	if errors.Is(err, app.ErrNoRelays) {
		log.W.Ln("no relay could be reached, showing cached notes only")
	}
	if !p.json {
		fmt.Fprintf(os.Stderr, "%d events\n", len(s))
	}
	// oldest first so the newest ends up next to the prompt
	for i := len(s) - 1; i >= 0; i-- {
		p.print(s[i])
	}
	if !cCtx.Bool("follow") {
		return nil
	}
	return cl.Follow(cCtx.Context, f, func(ev *event.T, _ string) {
		p.print(ev)
	})
}
