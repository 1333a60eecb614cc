// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jobqueue

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies that every worker/sweeper goroutine started by a test's
// Scheduler has exited by the time that test returns.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
