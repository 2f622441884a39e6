// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N is a
// monotonically increasing integer. Use it for tag names and bundle
// ids that must not collide between tests sharing a store.
//
//	tag := testutil.UniqueID("beta")              // "beta-1", "beta-2", ...
//	bundle := testutil.UniqueID("com.example.app") // "com.example.app-3"
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
