// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package plist decodes Apple property lists in both encodings found
// inside iOS builds: the compact binary form ("bplist00") and the
// textual XML form. The result is a [Value] tree, a tagged variant
// over the property list object types.
//
// Decoding is explicit and bounded. The binary decoder resolves
// references through the offset table with every index and length
// checked against the buffer, and walks the object graph with an
// explicit stack rather than recursion. Depth is capped at [MaxDepth]
// and the total number of decoded objects at [MaxObjects], so a
// hostile file with reference cycles or heavily shared subtrees fails
// with [ErrMalformed] instead of consuming the stack or the heap.
//
// Only decoding is implemented. Encoding for the OTA manifest lives in
// lib/manifest, which uses howett.net/plist.
package plist
