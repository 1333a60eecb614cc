// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jobqueue

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteHistoryRecordAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	h, err := OpenSQLiteHistory(path)
	if err != nil {
		t.Fatalf("OpenSQLiteHistory: %v", err)
	}
	defer h.Close()

	completed := time.Now()
	job := Job{
		ID:            "job-1",
		Service:       "DEMO",
		TitleID:       "abc123",
		Status:        StatusCompleted,
		CreatedTime:   completed.Add(-time.Minute),
		CompletedTime: &completed,
		OutputFiles:   []string{"/tmp/out.mkv"},
	}

	if err := h.Record(job); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := h.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ID != "job-1" || entries[0].Status != string(StatusCompleted) {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestSQLiteHistoryRecordUpserts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	h, err := OpenSQLiteHistory(path)
	if err != nil {
		t.Fatalf("OpenSQLiteHistory: %v", err)
	}
	defer h.Close()

	job := Job{ID: "job-1", Service: "DEMO", TitleID: "abc123", Status: StatusDownloading, CreatedTime: time.Now()}
	if err := h.Record(job); err != nil {
		t.Fatalf("Record: %v", err)
	}

	job.Status = StatusCompleted
	completed := time.Now()
	job.CompletedTime = &completed
	if err := h.Record(job); err != nil {
		t.Fatalf("Record (update): %v", err)
	}

	entries, err := h.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected upsert to keep a single row, got %d", len(entries))
	}
	if entries[0].Status != string(StatusCompleted) {
		t.Fatalf("expected updated status, got %s", entries[0].Status)
	}
}
