// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

package metrics

import (
	"testing"
	"time"
)

// Registration with promauto panics on duplicate or malformed
// collectors, so exercising each helper once is enough to catch
// wiring mistakes.
func TestHelpersDoNotPanic(t *testing.T) {
	RecordAnalysis("low")
	RecordDetector("geo_velocity", 80, 5*time.Millisecond)
	RecordDetectorError("session", "timeout")
	RecordStoreOperation("append_login", time.Millisecond)
	RecordAPIRequest("POST", "/api/v1/analyze", 200, 10*time.Millisecond)
	TrackActiveRequest(true)
	TrackActiveRequest(false)
}
