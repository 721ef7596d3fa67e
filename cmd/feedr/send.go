package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Hubmakerlabs/feedr/app"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/pool"
	"github.com/gookit/color"
	"github.com/urfave/cli/v2"
)

func Send(cCtx *cli.Context) (err error) {
	content := strings.TrimSpace(strings.Join(cCtx.Args().Slice(), " "))
	if content == "" {
		return errors.New("nothing to send")
	}
	var cl *app.Client
	if cl, err = session(cCtx); err != nil {
		return
	}
	var pw string
	if pw, err = password(cCtx.String("password"),
		cCtx.IsSet("password")); err != nil {
		return
	}
	if err = cl.LoadIdentity(pw); err != nil {
		return
	}
	var ev *event.T
	if ev, err = cl.BuildAndSignNote(content, app.Hashtags(content)...); err != nil {
		return
	}
	res, err := cl.Publish(cCtx.Context, ev)
	for _, r := range res {
		switch r.Outcome {
		case pool.Accepted:
			fmt.Println(color.Green.Sprint("accepted   "), r.Relay)
		case pool.Rejected:
			fmt.Println(color.Red.Sprint("rejected   "), r.Relay, r.Reason)
		default:
			fmt.Println(color.Yellow.Sprint("unreachable"), r.Relay, r.Err)
		}
	}
	if err != nil {
		return
	}
	fmt.Printf("sent note %s to %d of %d relays\n", ev.ID(), res.Accepted(),
		len(res))
	return
}
