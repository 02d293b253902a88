package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
)

var version = "dev"

// NewApp builds the CLI. opts are added to the fx app that opens the store.
func NewApp(opts ...fx.Option) *cli.App {
	c := &ctl{options: opts}
	return &cli.App{
		Name:    "rewardsctl",
		Usage:   "Inspect and audit persisted rewards state",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config.yaml",
				EnvVars: []string{"CONFIG_PATH"},
			},
			&cli.StringFlag{
				Name:  "profile",
				Usage: "profile to inspect, overrides STORAGE.PROFILE",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print JSON instead of a table",
			},
		},
		Commands: []*cli.Command{
			c.TasksCommand(),
			c.StatsCommand(),
			c.AuditCommand(),
		},
	}
}

func main() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
