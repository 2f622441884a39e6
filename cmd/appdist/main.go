// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/significa/appdist/lib/cli"
	"github.com/significa/appdist/lib/process"
	"github.com/significa/appdist/lib/version"
)

func main() {
	// Commands that answer through their exit status (tag exists)
	// return a cli.ExitError, which process.Fatal does not print.
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	return newApp(cli.NewOutput).root().Execute(os.Args[1:])
}

// app carries what commands share: how output is produced and the
// store selection flags.
type app struct {
	newOutput func(forceJSON bool) *cli.Output
	stdout    io.Writer
	store     storeFlags
}

func newApp(newOutput func(forceJSON bool) *cli.Output) *app {
	return &app{newOutput: newOutput, stdout: os.Stdout}
}

func (a *app) root() *cli.Command {
	return &cli.Command{
		Name: "appdist",
		Description: `appdist: administer a build distribution store.

Every command works on the store directory directly, taking the same
file locks as appdist-server. Select the store with --store, --config,
or $APPDIST_CONFIG.`,
		Subcommands: []*cli.Command{
			a.ingestCommand(),
			a.showCommand(),
			a.latestCommand(),
			a.listCommand(),
			a.deleteCommand(),
			a.tagCommand(),
			a.manifestCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Fprintf(a.stdout, "appdist %s\n", version.Full())
					return nil
				},
			},
		},
	}
}
