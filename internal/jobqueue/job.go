// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package jobqueue implements a single-process, bounded-concurrency
// download scheduler: an in-memory job map, an FIFO dispatch queue, N
// worker goroutines driving isolated subprocesses, and an hourly retention
// sweeper.
package jobqueue

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Status is one of the five states a Job's lifecycle DAG can occupy.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

func (s Status) terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Job is one download request and its observed lifecycle state.
type Job struct {
	ID        string
	Service   string
	TitleID   string
	Params    map[string]any
	Principal string

	Status        Status
	CreatedTime   time.Time
	StartedTime   *time.Time
	CompletedTime *time.Time
	Progress      float64
	OutputFiles   []string

	ErrorMessage string
	ErrorDetails map[string]any
	ErrorCode    string
	Traceback    string
	Stderr       string

	mu     sync.Mutex
	cancel atomic.Bool
}

// RequestCancel sets the job's single-shot cancellation signal. Safe to
// call more than once; only the first call has effect.
func (j *Job) RequestCancel() {
	j.cancel.Store(true)
}

// CancelRequested reports whether RequestCancel has been called.
func (j *Job) CancelRequested() bool {
	return j.cancel.Load()
}

// UpdateProgress sets the job's progress percentage. Called by the Runner
// while a job is Downloading; safe for concurrent use with Get/List.
func (j *Job) UpdateProgress(p float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress = p
}

func (j *Job) setStatus(s Status) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = s
}

func (j *Job) snapshot() Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	cp := Job{
		ID:            j.ID,
		Service:       j.Service,
		TitleID:       j.TitleID,
		Params:        j.Params,
		Principal:     j.Principal,
		Status:        j.Status,
		CreatedTime:   j.CreatedTime,
		StartedTime:   j.StartedTime,
		CompletedTime: j.CompletedTime,
		Progress:      j.Progress,
		OutputFiles:   j.OutputFiles,
		ErrorMessage:  j.ErrorMessage,
		ErrorDetails:  j.ErrorDetails,
		ErrorCode:     j.ErrorCode,
		Traceback:     j.Traceback,
		Stderr:        j.Stderr,
	}
	if j.CancelRequested() {
		cp.cancel.Store(true)
	}
	return cp
}

func newJobID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("jobqueue: generate job id: %w", err)
	}
	return fmt.Sprintf("%s-%s-%s-%s-%s",
		hex.EncodeToString(b[0:4]),
		hex.EncodeToString(b[4:6]),
		hex.EncodeToString(b[6:8]),
		hex.EncodeToString(b[8:10]),
		hex.EncodeToString(b[10:16]),
	), nil
}
