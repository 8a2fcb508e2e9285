// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package runtime

import "time"

// nowNanos returns a monotonic timestamp in nanoseconds, used only to
// measure Evaluate's own wall-clock cost for MatchResult.EvaluationTimeNanos.
// It is a distinct function rather than an inlined time.Since call so a
// test can substitute a deterministic clock if ever needed.
func nowNanos() int64 {
	return int64(time.Since(clockBase))
}

// clockBase anchors nowNanos; time.Since reads its monotonic clock.
var clockBase = time.Now()
