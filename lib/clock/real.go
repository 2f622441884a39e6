// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

// Now strips the monotonic reading along with the location, so values
// compare equal after a round trip through a record file.
func (realClock) Now() time.Time { return time.Now().UTC() }
