// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/significa/appdist/lib/cli"
	"github.com/significa/appdist/lib/clock"
	"github.com/significa/appdist/lib/config"
	"github.com/significa/appdist/lib/distribution"
	"github.com/significa/appdist/lib/uploadstore"
)

// storeFlags selects the store and the output mode. Every leaf command
// registers them.
type storeFlags struct {
	ConfigPath string
	Root       string
	JSON       bool
	Verbose    bool
}

func (f *storeFlags) addFlags(flagSet *pflag.FlagSet) {
	*f = storeFlags{}
	flagSet.StringVar(&f.ConfigPath, "config", "", "config file (default: $"+config.EnvVar+")")
	flagSet.StringVar(&f.Root, "store", "", "store directory, overrides the config file")
	flagSet.BoolVar(&f.JSON, "json", false, "emit JSON even on a terminal")
	flagSet.BoolVarP(&f.Verbose, "verbose", "v", false, "log store operations to stderr")
}

// rootDirectory resolves the store directory: --store, then the config
// file from --config or $APPDIST_CONFIG, then the default location.
func (f *storeFlags) rootDirectory() (string, error) {
	if f.Root != "" {
		return f.Root, nil
	}
	var (
		cfg *config.Config
		err error
	)
	switch {
	case f.ConfigPath != "":
		cfg, err = config.LoadFile(f.ConfigPath)
	case os.Getenv(config.EnvVar) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return "", fmt.Errorf("loading config: %w", err)
	}
	return cfg.Store.Root, nil
}

// open opens the selected store. The directory is created if missing.
func (f *storeFlags) open() (*distribution.Service, error) {
	root, err := f.rootDirectory()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	logger := cli.NewCommandLogger(f.Verbose)
	store, err := uploadstore.Open(root, uploadstore.Options{
		Logger: logger,
		Clock:  clock.Real(),
	})
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", root, err)
	}
	return distribution.New(store, distribution.Options{
		Logger: logger,
		Clock:  clock.Real(),
	}), nil
}

func (a *app) output() *cli.Output {
	return a.newOutput(a.store.JSON)
}

// flags returns a Flags func registering the store flags plus any
// command-specific ones.
func (a *app) flags(name string, extra func(*pflag.FlagSet)) func() *pflag.FlagSet {
	return func() *pflag.FlagSet {
		flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
		a.store.addFlags(flagSet)
		if extra != nil {
			extra(flagSet)
		}
		return flagSet
	}
}
