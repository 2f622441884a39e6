// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/significa/appdist/lib/clock"
	"github.com/significa/appdist/lib/config"
	"github.com/significa/appdist/lib/distribution"
	"github.com/significa/appdist/lib/process"
	"github.com/significa/appdist/lib/service"
	"github.com/significa/appdist/lib/uploadstore"
	"github.com/significa/appdist/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		listen      string
		storeRoot   string
		publicURL   string
		showVersion bool
	)

	flags := pflag.NewFlagSet("appdist-server", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "config file (default: $"+config.EnvVar+", else built-in development defaults)")
	flags.StringVar(&listen, "listen", "", "TCP listen address, overrides http.listen")
	flags.StringVar(&storeRoot, "store", "", "store directory, overrides store.root")
	flags.StringVar(&publicURL, "public-url", "", "externally visible base URL, overrides http.public_url")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("appdist-server %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.HTTP.Listen = listen
	}
	if storeRoot != "" {
		cfg.Store.Root = storeRoot
	}
	if publicURL != "" {
		cfg.HTTP.PublicURL = publicURL
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger, logCloser, err := service.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}
	defer logCloser.Close()

	if !strings.HasPrefix(cfg.PublicURL(), "https://") {
		logger.Warn("public URL is not https; iOS devices will refuse over-the-air installs", "public_url", cfg.PublicURL())
	}
	if cfg.HTTP.AuthToken == "" {
		logger.Warn("no auth token configured; uploads, deletes, and tag changes are open to anyone who can reach the server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := uploadstore.Open(cfg.Store.Root, uploadstore.Options{
		Logger:        logger.With("component", "uploadstore"),
		Clock:         clock.Real(),
		StagingMaxAge: cfg.Store.StagingMaxAge,
	})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	distributionService := distribution.New(store, distribution.Options{
		Logger: logger.With("component", "distribution"),
		Clock:  clock.Real(),
	})

	handler := newHandler(handlerConfig{
		Service:        distributionService,
		PublicURL:      cfg.PublicURL(),
		AuthToken:      cfg.HTTP.AuthToken,
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
		Logger:         logger,
		Metrics:        newMetrics(true),
		Clock:          clock.Real(),
	})

	server := service.NewHTTPServer(service.HTTPServerConfig{
		Address:         cfg.HTTP.Listen,
		Handler:         handler,
		Logger:          logger,
		TLSCertFile:     cfg.HTTP.TLSCertFile,
		TLSKeyFile:      cfg.HTTP.TLSKeyFile,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	})

	logger.Info("appdist server starting",
		"version", version.Info(),
		"environment", cfg.Environment,
		"store", cfg.Store.Root,
		"listen", cfg.HTTP.Listen,
		"public_url", cfg.PublicURL(),
	)

	if err := server.Serve(ctx); err != nil {
		return err
	}
	logger.Info("appdist server stopped")
	return nil
}

// loadConfig reads the --config file, then $APPDIST_CONFIG, and falls
// back to the development defaults when neither is set.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv(config.EnvVar) != "" {
		return config.Load()
	}
	return config.Default(), nil
}
