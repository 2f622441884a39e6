// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// exitCoder is implemented by errors that carry their own exit status
// and have already reported whatever the user needs to see.
type exitCoder interface {
	ExitCode() int
}

// ExitCode returns the status a process ending with err should exit
// with: 0 for nil, the carried code for an exitCoder, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coder exitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return 1
}

// Report writes "error: err" to w unless err is nil or carries its own
// exit status.
func Report(w io.Writer, err error) {
	var coder exitCoder
	if err == nil || errors.As(err, &coder) {
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)
}

// Fatal reports err on stderr and exits. Use it in main() for the error
// returned by run(), where the structured logger may not exist yet.
func Fatal(err error) {
	Report(os.Stderr, err)
	os.Exit(ExitCode(err))
}
