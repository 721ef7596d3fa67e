package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Hubmakerlabs/feedr/app"
	"github.com/Hubmakerlabs/feedr/pkg/config"
	"github.com/Hubmakerlabs/feedr/pkg/context"
	"github.com/Hubmakerlabs/feedr/pkg/interrupt"
	"github.com/Hubmakerlabs/feedr/pkg/slog"
	"github.com/urfave/cli/v2"
)

var log, chk = slog.New(os.Stderr)

const appName = "feedr"

var errNoConfig = errors.New("configuration not loaded")

func doVersion(_ *cli.Context) (err error) {
	fmt.Println(app.Version)
	return nil
}

// session opens the client on first use, so commands that keep no state
// never touch the data directory.
func session(cCtx *cli.Context) (cl *app.Client, err error) {
	md := cCtx.App.Metadata
	if open, ok := md["client"].(*app.Client); ok {
		return open, nil
	}
	cfg, ok := md["config"].(*config.Config)
	if !ok {
		return nil, errNoConfig
	}
	if cl, err = app.New(cCtx.Context, cfg); chk.E(err) {
		return
	}
	md["client"] = cl
	return
}

func newApp() *cli.App {
	return &cli.App{
		Name:    appName,
		Usage:   "a command line nostr client",
		Version: app.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "datadir", Aliases: []string{"d"},
				Usage: "data directory (default ~/.feedr)"},
			&cli.BoolFlag{Name: "V", Usage: "verbose"},
		},
		Commands: []*cli.Command{
			{
				Name:  "generate-keys",
				Usage: "generate and store a new keypair",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "password", Aliases: []string{"p"},
						Usage: "password to encrypt the key with (prompted if not given)"},
				},
				Action: GenerateKeys,
			},
			{
				Name:  "show-keys",
				Usage: "show the stored keypair",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "password", Aliases: []string{"p"}},
					&cli.BoolFlag{Name: "public", Usage: "only show the public key, needs no password"},
					&cli.BoolFlag{Name: "qr", Usage: "also print the npub as a QR code"},
				},
				Action: ShowKeys,
			},
			{
				Name:  "delete-keys",
				Usage: "destroy the stored keypair",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "password", Aliases: []string{"p"}},
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"},
						Usage: "do not ask for confirmation"},
				},
				Action: DeleteKeys,
			},
			{
				Name:      "send",
				Aliases:   []string{"post"},
				Usage:     "publish a text note",
				UsageText: appName + " send [note text]",
				ArgsUsage: "[note text]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "password", Aliases: []string{"p"}},
				},
				Action: Send,
			},
			{
				Name:  "show-feed",
				Usage: "show recent text notes",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "pubkey", Aliases: []string{"p"},
						Usage: "only notes by this author (hex or npub)"},
					&cli.StringFlag{Name: "hashtag", Aliases: []string{"t"},
						Usage: "only notes with this hashtag"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"},
						Value: app.DefaultLimit, Usage: "number of notes"},
					&cli.BoolFlag{Name: "follow", Aliases: []string{"f"},
						Usage: "keep printing new notes until interrupted"},
					&cli.BoolFlag{Name: "json", Usage: "output JSON"},
					&cli.BoolFlag{Name: "dump", Usage: "dump events in full"},
				},
				Action: ShowFeed,
			},
			{
				Name:  "relay",
				Usage: "manage relays",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "list relays",
						Action: RelayList,
					},
					{
						Name:      "add",
						Usage:     "add a relay",
						ArgsUsage: "[url]",
						Action:    RelayAdd,
					},
					{
						Name:      "remove",
						Aliases:   []string{"rm"},
						Usage:     "remove a relay",
						ArgsUsage: "[url]",
						Action:    RelayRemove,
					},
				},
			},
			{
				Name:   "version",
				Usage:  "show version",
				Action: doVersion,
			},
		},
		Before: func(cCtx *cli.Context) (err error) {
			if cCtx.Bool("V") {
				slog.SetLogLevel(slog.Debug)
			}
			var cfg *config.Config
			if cfg, err = config.Load(cCtx.String("datadir")); chk.E(err) {
				return
			}
			cCtx.App.Metadata["config"] = cfg
			return nil
		},
		After: func(cCtx *cli.Context) (err error) {
			if cl, ok := cCtx.App.Metadata["client"].(*app.Client); ok {
				cl.Close()
			}
			return nil
		},
	}
}

func main() {
	c, cancel := interrupt.Context(context.Bg())
	defer cancel()
	if err := newApp().RunContext(c, os.Args); chk.E(err) {
		os.Exit(1)
	}
}
