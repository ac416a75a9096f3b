package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitDataError    = 3
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitGeneralError)
	}
}

func newApp() *cli.App {
	atFlag := &cli.StringFlag{
		Name:  "at",
		Usage: "When it happened: RFC 3339 time or a duration ago (e.g., 2h)",
	}
	noteFlag := &cli.StringFlag{
		Name:    "note",
		Aliases: []string{"n"},
		Usage:   "Free-text note stored with the event",
	}

	return &cli.App{
		Name:    "ferment-cli",
		Usage:   "Track when your sourdough starters and kombucha need feeding",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Database file path (default from config)",
				EnvVars: []string{"FERMENT_CLI_DB"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path",
				EnvVars: []string{"FERMENT_CLI_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error (default from config)",
			},
			&cli.StringFlag{
				Name:  "now",
				Usage: "Reference time (RFC 3339) for status computations (default: current time)",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a new starter",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "every",
						Aliases:  []string{"e"},
						Usage:    "Feed interval at room temperature (e.g., 12h, 1d, 1w)",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "location",
						Aliases: []string{"l"},
						Value:   "counter",
						Usage:   "Where the starter is kept",
					},
					&cli.StringFlag{
						Name:    "kind",
						Aliases: []string{"k"},
						Usage:   "What it is (sourdough, kombucha, ...)",
					},
					&cli.StringFlag{
						Name:  "fed-at",
						Usage: "Last feed: RFC 3339 time or a duration ago (default: now)",
					},
				},
				Action: addStarter,
			},
			{
				Name:   "starters",
				Usage:  "List all starters",
				Action: listStarters,
			},
			{
				Name:      "status",
				Usage:     "Show how urgently starters need feeding",
				ArgsUsage: "[starter-id]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "label",
						Aliases: []string{"L"},
						Usage:   "Filter by label (unknown, happy, due_soon, needs_feed)",
					},
					&cli.StringFlag{
						Name:    "location",
						Aliases: []string{"l"},
						Usage:   "Filter by current location",
					},
				},
				Action: showStatus,
			},
			{
				Name:      "feed",
				Usage:     "Record a feeding",
				ArgsUsage: "<starter-id>...",
				Flags:     []cli.Flag{atFlag},
				Action:    feedStarters,
			},
			{
				Name:      "move",
				Usage:     "Move a starter to another location",
				ArgsUsage: "<starter-id> <location>",
				Flags:     []cli.Flag{atFlag, noteFlag},
				Action:    moveStarter,
			},
			{
				Name:      "mark",
				Usage:     "Record a timeline marker without moving",
				ArgsUsage: "<starter-id>",
				Flags:     []cli.Flag{atFlag, noteFlag},
				Action:    markStarter,
			},
			{
				Name:      "history",
				Usage:     "Show the feed and move history of a starter",
				ArgsUsage: "<starter-id>",
				Action:    showHistory,
			},
			{
				Name:      "remove",
				Usage:     "Remove a starter and its history",
				ArgsUsage: "<starter-id>",
				Action:    removeStarter,
			},
			{
				Name:  "digest",
				Usage: "Write an RSS digest of all starter statuses",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file (default: stdout)",
					},
				},
				Action: writeDigest,
			},
			{
				Name:      "follow",
				Usage:     "Read a status digest from a URL or file",
				ArgsUsage: "<url|file>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "label",
						Aliases: []string{"L"},
						Usage:   "Only show items with this label",
					},
				},
				Action: followDigest,
			},
			{
				Name:  "export",
				Usage: "Export starters and history to a YAML backup",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file (default: stdout)",
					},
				},
				Action: exportBackup,
			},
			{
				Name:      "import",
				Usage:     "Import starters from a YAML backup",
				ArgsUsage: "<backup-file>",
				Action:    importBackup,
			},
			{
				Name:  "serve",
				Usage: "Serve the JSON API, RSS digest and metrics over HTTP",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "addr",
						Aliases: []string{"a"},
						Usage:   "Listen address (default from config)",
					},
				},
				Action: serve,
			},
		},
	}
}
