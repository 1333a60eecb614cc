// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIncJobsEnqueuedIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(JobsEnqueued)
	IncJobsEnqueued()
	after := testutil.ToFloat64(JobsEnqueued)
	if after != before+1 {
		t.Fatalf("expected counter to increment by 1, got %v -> %v", before, after)
	}
}

func TestIncJobsCompletedLabelsByStatus(t *testing.T) {
	before := testutil.ToFloat64(JobsCompleted.WithLabelValues("failed"))
	IncJobsCompleted("failed")
	after := testutil.ToFloat64(JobsCompleted.WithLabelValues("failed"))
	if after != before+1 {
		t.Fatalf("expected failed counter to increment by 1, got %v -> %v", before, after)
	}
}

func TestSetQueueDepthRecordsGauge(t *testing.T) {
	SetQueueDepth(3)
	if got := testutil.ToFloat64(QueueDepth); got != 3 {
		t.Fatalf("expected queue depth 3, got %v", got)
	}
}
