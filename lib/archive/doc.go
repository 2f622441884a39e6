// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive opens an uploaded build as an in-memory zip
// container. Both .ipa and .apk files are zip archives; this package
// knows nothing about either platform and only answers three
// questions: is this a valid container, which entries does it hold,
// and what are the bytes of one entry.
//
// Reads are bounded. Each entry read stops at [MaxEntrySize]
// decompressed bytes, so a small upload that inflates to gigabytes
// fails with [ErrMalformedArchive] rather than exhausting memory.
package archive
