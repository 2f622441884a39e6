// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"
)

// Output writes command results either as aligned text tables or as
// indented JSON.
type Output struct {
	Writer io.Writer
	JSON   bool
}

// NewOutput returns an Output on os.Stdout. JSON is used when
// forceJSON is set or stdout is not a terminal.
func NewOutput(forceJSON bool) *Output {
	return &Output{
		Writer: os.Stdout,
		JSON:   forceJSON || !isTerminal(os.Stdout),
	}
}

// Emit writes result as JSON when in JSON mode and returns true; the
// caller formats text otherwise. Nil slices are written as [].
func (o *Output) Emit(result any) (bool, error) {
	if !o.JSON {
		return false, nil
	}
	encoder := json.NewEncoder(o.Writer)
	encoder.SetIndent("", "  ")
	return true, encoder.Encode(normalizeNilSlice(result))
}

// Table writes rows under header as aligned columns.
func (o *Output) Table(header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(o.Writer, 2, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// Printf writes formatted text.
func (o *Output) Printf(format string, args ...any) {
	fmt.Fprintf(o.Writer, format, args...)
}

// NewCommandLogger creates a structured logger on stderr: text when
// stderr is a terminal, JSON when it is piped or redirected.
func NewCommandLogger(verbose bool) *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelWarn}
	if verbose {
		options.Level = slog.LevelDebug
	}
	if isTerminal(os.Stderr) {
		return slog.New(slog.NewTextHandler(os.Stderr, options))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, options))
}

func isTerminal(file *os.File) bool {
	return term.IsTerminal(int(file.Fd()))
}

// normalizeNilSlice returns an empty slice of the same type if value
// is a nil slice, so that JSON serialization produces [] instead of
// null.
func normalizeNilSlice(value any) any {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return value
}
