// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestOutputEmit(t *testing.T) {
	var buffer bytes.Buffer
	output := &Output{Writer: &buffer, JSON: true}

	var empty []string
	done, err := output.Emit(empty)
	if !done || err != nil {
		t.Fatalf("Emit = %v, %v", done, err)
	}
	if strings.TrimSpace(buffer.String()) != "[]" {
		t.Errorf("nil slice emitted as %q, want []", buffer.String())
	}

	text := &Output{Writer: &buffer}
	if done, _ := text.Emit("ignored"); done {
		t.Error("Emit in text mode reported done")
	}
}

func TestOutputTable(t *testing.T) {
	var buffer bytes.Buffer
	output := &Output{Writer: &buffer}
	if err := output.Table([]string{"TAG", "UPLOADS"}, [][]string{{"beta", "2"}, {"release-candidate", "10"}}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buffer.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("table has %d lines:\n%s", len(lines), buffer.String())
	}
	column := strings.Index(lines[0], "UPLOADS")
	if strings.Index(lines[1], "2") != column || strings.Index(lines[2], "10") != column {
		t.Errorf("columns not aligned:\n%s", buffer.String())
	}
}
