// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for appdist packages.
//
// The fixture builders produce real build artifacts in memory so tests
// exercise the same decoders production uploads do:
//
//   - [Zip] writes a zip container from a set of named entries.
//   - [InfoPlist] and [IPA] build an iOS archive whose Info.plist is
//     encoded in binary or XML form.
//   - [BinaryXML] compiles an element tree into Android binary XML,
//     and [APK] wraps it as AndroidManifest.xml.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that individual
// tests do not need direct time.After calls.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation, such as tag names shared across subtests.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no appdist-internal dependencies, so any package's
// tests can import it.
package testutil
