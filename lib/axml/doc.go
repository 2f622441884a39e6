// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package axml decodes Android binary XML, the compiled form of
// AndroidManifest.xml stored inside an .apk.
//
// A document is a sequence of little-endian chunks, each starting with
// a type, a header size, and a total size. The first chunk inside the
// XML envelope is a string pool holding every name and literal value
// (UTF-8 or UTF-16). An optional resource map follows, assigning
// framework resource ids to the leading string pool entries, which is
// how attribute names are identified when the pool strings have been
// stripped or obfuscated. The rest is a flat stream of namespace and
// element events.
//
// [Decode] walks the chunk stream once, iteratively, and returns the
// start-element events with their depth and typed attribute values.
// Every offset and index is bounds-checked; any inconsistency fails
// with [ErrMalformed].
package axml
