// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/vinefeeder/envied/internal/apierror"
	"github.com/vinefeeder/envied/internal/jobqueue"
	"github.com/vinefeeder/envied/internal/log"
	"github.com/vinefeeder/envied/internal/procgroup"
)

const (
	progressPollInterval = 500 * time.Millisecond
	terminateGrace       = 5 * time.Second
)

// Config configures how the parent invokes the worker binary.
type Config struct {
	// WorkerBinary is the path to the cmd/worker executable.
	WorkerBinary string
	// TempDir is where protocol files are created; defaults to os.TempDir().
	TempDir string
}

// Driver implements jobqueue.Runner by spawning an isolated worker
// subprocess per job and driving the payload/result/progress protocol.
type Driver struct {
	cfg Config
}

// NewDriver constructs a Driver bound to cfg.
func NewDriver(cfg Config) *Driver {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Driver{cfg: cfg}
}

// Run implements jobqueue.Runner.
func (d *Driver) Run(ctx context.Context, job *jobqueue.Job) ([]string, error) {
	files := FileNames(d.cfg.TempDir, job.ID)
	defer cleanupFiles(files)

	if err := WritePayload(files.Payload, Payload{
		JobID:      job.ID,
		Service:    job.Service,
		TitleID:    job.TitleID,
		Parameters: job.Params,
	}); err != nil {
		return nil, apierror.New(apierror.CodeWorkerError, fmt.Sprintf("write payload: %v", err), nil, false, 0)
	}

	cmd := exec.Command(d.cfg.WorkerBinary, files.Payload, files.Result, files.Progress)
	procgroup.Set(cmd)
	var stderr safeBuffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, apierror.New(apierror.CodeWorkerError, fmt.Sprintf("start worker: %v", err), nil, false, 0)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	logger := log.L().With().Str(log.FieldJobID, job.ID).Logger()

	ticker := time.NewTicker(progressPollInterval)
	defer ticker.Stop()

	var lastProgress float64 = -1
	var waitErr error
	exited := false

loop:
	for {
		select {
		case waitErr = <-waitCh:
			exited = true
			break loop
		case <-ticker.C:
			if p, ok := ReadProgress(files.Progress); ok && p.Progress != lastProgress {
				lastProgress = p.Progress
				job.UpdateProgress(p.Progress)
			}
			if job.CancelRequested() {
				if cmd.Process != nil {
					_ = procgroup.Terminate(cmd, waitCh, terminateGrace, job.ID)
				}
				logger.Info().Str(log.FieldEvent, "job_cancelled").Msg("worker terminated on cancellation")
				return nil, jobqueue.ErrCancelled
			}
		case <-ctx.Done():
			if cmd.Process != nil {
				_ = procgroup.Terminate(cmd, waitCh, terminateGrace, job.ID)
			}
			return nil, jobqueue.ErrCancelled
		}
	}

	if !exited {
		waitErr = <-waitCh
	}

	result, readErr := ReadResult(files.Result)
	if readErr != nil {
		return nil, apierror.New(apierror.CodeWorkerError, fmt.Sprintf("worker crashed: %s", stderr.String()), nil, false, 0)
	}

	exitCode := exitCodeOf(waitErr)
	if exitCode != 0 || result.Status != "success" {
		return nil, apierror.New(errorCodeFor(result), result.Message, result.ErrorDetails, false, 0)
	}

	return result.OutputFiles, nil
}

// errorCodeFor picks the apierror.Code to report for a failed job. A
// parseable result carries its own categorized code (set by cmd/worker's
// apierror.Categorize); CodeWorkerError is reserved for the case where the
// subprocess failed without leaving one.
func errorCodeFor(result Result) apierror.Code {
	if result.ErrorCode != "" {
		return apierror.Code(result.ErrorCode)
	}
	return apierror.CodeWorkerError
}

func cleanupFiles(files TempFiles) {
	_ = os.Remove(files.Payload)
	_ = os.Remove(files.Result)
	_ = os.Remove(files.Progress)
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return 1
}

// safeBuffer is a minimal byte buffer for capturing stderr from the worker
// process. It does no locking; Run reads it only after the process has been
// waited on.
type safeBuffer struct {
	data []byte
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *safeBuffer) String() string { return string(b.data) }
