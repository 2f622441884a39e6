// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the shared CBOR encoding configuration for
// every record appdist writes to disk.
//
// appdist uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: the HTTP API and the admin CLI's
//     --json output.
//   - CBOR for persisted state: per-upload buildinfo.cbor, the global
//     tag set, bundle index entries, and the tag-rename journal.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same logical record always produces identical bytes:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// # Struct Tag Rules
//
//   - `cbor` tag: the type is only ever persisted (tag set file,
//     bundle entries, rename journal).
//   - `json` tag: the type is persisted AND served over HTTP
//     (BuildInfo). fxamacker/cbor falls back to json tags when cbor
//     tags are absent, so one tag names the field in both formats.
//
// Never use both tags on the same field.
package codec
