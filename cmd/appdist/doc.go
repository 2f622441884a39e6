// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// appdist administers an upload store directly on disk: ingest builds,
// inspect and delete uploads, manage tags, and render iOS install
// descriptors. It takes the same advisory locks as the server, so it is
// safe to run against a store the server is using.
//
// Output is a table on a terminal and JSON otherwise; --json forces
// JSON.
package main
