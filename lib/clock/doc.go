// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for testability.
//
// Code that stamps records (created_at on ingestion, updated_at on
// bundle index entries) accepts a Clock instead of calling time.Now
// directly. In production, Real() returns wall-clock UTC time. In
// tests, Fake() returns a clock that only moves when Advance or Set is
// called, so persisted timestamps are exact and comparable.
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	store, err := uploadstore.Open(dir, c)
//	// ... ingest ...
//	c.Advance(time.Minute)
package clock
