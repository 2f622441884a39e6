// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the process scaffolding shared by the
// appdist binaries:
//
//   - [HTTPServer]: a TCP HTTP server with readiness signalling and
//     graceful shutdown tied to a context.
//   - [NewLogger]: the slog logger built from [config.LogConfig],
//     optionally writing to a size-rotated file.
//   - [CheckToken]: constant-time comparison of a presented shared
//     secret.
//
// Binaries compose these in their own main() rather than through a
// framework.
package service
