// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helpers shared by appdist-server
// and the appdist CLI: reporting the error that ended run() and picking
// the exit status.
package process
