// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/significa/appdist/lib/config"
)

// NewLogger builds the process logger. Output goes to fallback unless
// logConfig.File is set, in which case it goes to that file, rotated
// at MaxSizeMB and keeping MaxBackups old files. The returned closer
// releases the file; it is a no-op for fallback output.
func NewLogger(logConfig config.LogConfig, fallback io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := parseLevel(logConfig.Level)
	if err != nil {
		return nil, nil, err
	}

	var output io.Writer = fallback
	var closer io.Closer = nopCloser{}
	if logConfig.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   logConfig.File,
			MaxSize:    logConfig.MaxSizeMB,
			MaxBackups: logConfig.MaxBackups,
			Compress:   true,
		}
		output, closer = rotating, rotating
	}

	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch logConfig.Format {
	case "", "json":
		handler = slog.NewJSONHandler(output, options)
	case "text":
		handler = slog.NewTextHandler(output, options)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", logConfig.Format)
	}
	return slog.New(handler), closer, nil
}

func parseLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
