package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

// defaultConfigPath is read when --config is not given. It may be missing.
const defaultConfigPath = "restsql.yaml"

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func newApp() *cli.Command {
	paramFlag := &cli.StringSliceFlag{
		Name:    "param",
		Aliases: []string{"p"},
		Usage:   "positional parameter, repeat for each ?",
	}
	return &cli.Command{
		Name:  "restsql",
		Usage: "run SQL against a REST API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path of the YAML config",
				Sources: cli.EnvVars("RESTSQL_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "base-url",
				Aliases: []string{"u"},
				Usage:   "base URL of the API, overrides the config",
				Sources: cli.EnvVars("RESTSQL_BASE_URL"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "panic, fatal, error, warn, info, debug or trace",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "translate",
				Usage:     "print the request for a statement without sending it",
				ArgsUsage: "SQL",
				Flags:     []cli.Flag{paramFlag},
				Action:    translateAction,
			},
			{
				Name:      "query",
				Usage:     "run a SELECT and print the rows as JSON",
				ArgsUsage: "SQL",
				Flags:     []cli.Flag{paramFlag},
				Action:    queryAction,
			},
			{
				Name:      "exec",
				Usage:     "run an INSERT, UPDATE or DELETE",
				ArgsUsage: "SQL",
				Flags:     []cli.Flag{paramFlag},
				Action:    execAction,
			},
			{
				Name:   "repl",
				Usage:  "start an interactive shell",
				Action: replAction,
			},
			{
				Name:   "init",
				Usage:  "write a config file with the default settings",
				Action: initAction,
			},
		},
	}
}
