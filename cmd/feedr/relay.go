package main

import (
	"errors"
	"fmt"

	"github.com/Hubmakerlabs/feedr/app"
	"github.com/urfave/cli/v2"
)

var errNoURL = errors.New("relay URL required")

func RelayList(cCtx *cli.Context) (err error) {
	var cl *app.Client
	if cl, err = session(cCtx); err != nil {
		return
	}
	list := cl.ListRelays()
	if len(list) > 0 && list[0].Default {
		fmt.Println("no relays configured, the default is used:")
	}
	for i, r := range list {
		fmt.Printf("%d. %s\n", i+1, r.URL)
	}
	return
}

func RelayAdd(cCtx *cli.Context) (err error) {
	url := cCtx.Args().First()
	if url == "" {
		return errNoURL
	}
	var cl *app.Client
	if cl, err = session(cCtx); err != nil {
		return
	}
	nm, added, err := cl.AddRelay(url)
	if err != nil {
		return
	}
	if !added {
		fmt.Printf("relay %s is already in the list\n", nm)
		return
	}
	fmt.Printf("added relay %s\n", nm)
	return
}

func RelayRemove(cCtx *cli.Context) (err error) {
	url := cCtx.Args().First()
	if url == "" {
		return errNoURL
	}
	var cl *app.Client
	if cl, err = session(cCtx); err != nil {
		return
	}
	removed, err := cl.RemoveRelay(url)
	if err != nil {
		return
	}
	if !removed {
		fmt.Printf("relay %s is not in the list\n", url)
		return
	}
	fmt.Printf("removed relay %s\n", url)
	return
}
