// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jobqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vinefeeder/envied/internal/apierror"
	"github.com/vinefeeder/envied/internal/log"
	"github.com/vinefeeder/envied/internal/metrics"
)

// ErrCancelled is returned by a Runner when the job's cancellation signal
// fired during execution.
var ErrCancelled = errors.New("jobqueue: cancelled")

// Runner drives one job's subprocess end to end, returning the resolved
// output file paths on success. Implemented by internal/worker.
type Runner func(ctx context.Context, job *Job) ([]string, error)

// Scheduler is the FIFO, bounded-concurrency dispatcher described by the
// worker-loop and sweeper algorithms.
type Scheduler struct {
	mu   sync.RWMutex
	jobs map[string]*Job

	queue         chan *Job
	runner        Runner
	retention     time.Duration
	maxConcurrent int
	history       HistoryRecorder

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// HistoryRecorder persists a terminal job snapshot beyond the in-memory
// retention window. Implemented by the sqlite-backed store in history.go;
// nil by default, in which case history is not persisted.
type HistoryRecorder interface {
	Record(job Job) error
}

// SetHistory installs a HistoryRecorder that is notified with a snapshot of
// every job as soon as it reaches a terminal status.
func (s *Scheduler) SetHistory(h HistoryRecorder) {
	s.history = h
}

// New constructs a Scheduler with maxConcurrent worker goroutines and the
// given job retention window, using runner to execute each job.
func New(maxConcurrent int, retention time.Duration, runner Runner) *Scheduler {
	return &Scheduler{
		jobs:          make(map[string]*Job),
		queue:         make(chan *Job, 1024),
		runner:        runner,
		retention:     retention,
		maxConcurrent: maxConcurrent,
	}
}

// Start launches the N worker goroutines and the hourly sweeper. Call
// Shutdown to stop them.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.maxConcurrent; i++ {
		s.wg.Add(1)
		go s.workerLoop(ctx)
	}

	s.wg.Add(1)
	go s.sweepLoop(ctx)
}

// Shutdown terminates the worker and sweeper goroutines and waits for them
// to exit. It does not itself terminate in-flight child processes — the
// Runner is responsible for honoring ctx cancellation and killing its
// subprocess (see internal/worker).
func (s *Scheduler) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Submit creates a new Queued job and enqueues it for dispatch. principal is
// the authenticated caller's identity (internal/auth.Principal.ID), recorded
// on the job so ownership survives across status polls and worker logs; pass
// "" when the API token requirement is disabled.
func (s *Scheduler) Submit(service, titleID string, params map[string]any, principal string) (*Job, error) {
	id, err := newJobID()
	if err != nil {
		return nil, err
	}
	job := &Job{
		ID:          id,
		Service:     service,
		TitleID:     titleID,
		Params:      params,
		Principal:   principal,
		Status:      StatusQueued,
		CreatedTime: time.Now(),
	}

	s.mu.Lock()
	s.jobs[id] = job
	s.mu.Unlock()

	metrics.IncJobsEnqueued()

	select {
	case s.queue <- job:
	default:
		return nil, apierror.New(apierror.CodeInternalError, "job queue full", nil, true, 503)
	}
	return job, nil
}

// Get returns a snapshot of job id, or (Job{}, false) if unknown.
func (s *Scheduler) Get(id string) (Job, bool) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return Job{}, false
	}
	return job.snapshot(), true
}

// List returns snapshots of all known jobs.
func (s *Scheduler) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.snapshot())
	}
	return out
}

// Cancel implements the idempotent cancel_job semantics: Queued jobs are
// marked Cancelled directly; Downloading jobs have their cancellation
// signal set (the worker loop observes it and terminates the child);
// terminal jobs are a no-op.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	job.mu.Lock()
	status := job.Status
	job.mu.Unlock()

	switch status {
	case StatusQueued:
		job.setStatus(StatusCancelled)
		job.RequestCancel()
		return true
	case StatusDownloading:
		job.RequestCancel()
		job.setStatus(StatusCancelled)
		return true
	default:
		return false
	}
}

func (s *Scheduler) workerLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.queue:
			s.runJob(ctx, job)
		case <-time.After(time.Second):
			continue
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, job *Job) {
	if job.CancelRequested() {
		return
	}

	job.mu.Lock()
	if job.Status == StatusCancelled {
		job.mu.Unlock()
		return
	}
	now := time.Now()
	job.Status = StatusDownloading
	job.StartedTime = &now
	job.mu.Unlock()

	metrics.SetJobsActive(1)
	defer metrics.SetJobsActive(-1)

	loggerCtx := log.L().With().Str(log.FieldJobID, job.ID)
	if job.Principal != "" {
		loggerCtx = loggerCtx.Str(log.FieldPrincipal, job.Principal)
	}
	logger := loggerCtx.Logger()

	outputFiles, err := s.runner(ctx, job)

	completed := time.Now()
	job.mu.Lock()
	job.CompletedTime = &completed
	switch {
	case errors.Is(err, ErrCancelled):
		job.Status = StatusCancelled
		metrics.IncJobsCompleted("cancelled")
	case err != nil:
		job.Status = StatusFailed
		ae := apierror.Categorize(err, nil)
		job.ErrorMessage = ae.Message
		job.ErrorCode = string(ae.Code)
		job.ErrorDetails = ae.Details
		metrics.IncJobsCompleted("failed")
		logger.Error().Err(err).Str(log.FieldEvent, "job_failed").Msg("job failed")
	default:
		job.Status = StatusCompleted
		job.OutputFiles = outputFiles
		job.Progress = 100.0
		metrics.IncJobsCompleted("completed")
	}
	job.mu.Unlock()

	if s.history != nil {
		if err := s.history.Record(job.snapshot()); err != nil {
			logger.Warn().Err(err).Msg("job history record failed")
		}
	}
}

func (s *Scheduler) sweepLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Scheduler) sweep() {
	cutoff := time.Now().Add(-s.retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		job.mu.Lock()
		age := job.CreatedTime
		if job.CompletedTime != nil {
			age = *job.CompletedTime
		}
		terminal := job.Status.terminal()
		job.mu.Unlock()
		if terminal && age.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}
