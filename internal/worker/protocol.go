// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package worker implements the isolated subprocess runtime: one download
// per child process, communicating with the parent through three JSON
// files (payload, result, progress) on a well-known naming scheme.
package worker

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/renameio/v2"
)

// Payload is written by the parent before spawning the child.
type Payload struct {
	JobID      string         `json:"job_id"`
	Service    string         `json:"service"`
	TitleID    string         `json:"title_id"`
	Parameters map[string]any `json:"parameters"`
}

// Result is written by the child exactly once, at exit.
type Result struct {
	Status       string         `json:"status"` // "success" | "error"
	OutputFiles  []string       `json:"output_files,omitempty"`
	Message      string         `json:"message,omitempty"`
	ErrorDetails map[string]any `json:"error_details,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	Traceback    string         `json:"traceback,omitempty"`
}

// Progress is overwritten by the child repeatedly while it runs.
type Progress struct {
	Progress float64 `json:"progress"`
	Status   string  `json:"status"`
}

// TempFiles names the three ephemeral protocol files for one job.
type TempFiles struct {
	Payload  string
	Result   string
	Progress string
}

// FileNames returns the three file paths for jobID under dir, following
// the "envied_job_<id>_{payload,result,progress}.json" naming scheme.
func FileNames(dir, jobID string) TempFiles {
	base := fmt.Sprintf("envied_job_%s_", jobID)
	return TempFiles{
		Payload:  dir + "/" + base + "payload.json",
		Result:   dir + "/" + base + "result.json",
		Progress: dir + "/" + base + "progress.json",
	}
}

// WritePayload atomically writes p to path.
func WritePayload(path string, p Payload) error {
	return writeJSONAtomic(path, p)
}

// WriteResult atomically writes r to path. Called once by the child at
// exit.
func WriteResult(path string, r Result) error {
	return writeJSONAtomic(path, r)
}

// WriteProgress atomically overwrites path with p. Called repeatedly by
// the child while it runs.
func WriteProgress(path string, p Progress) error {
	return writeJSONAtomic(path, p)
}

func writeJSONAtomic(path string, v any) error {
	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("worker: create pending file %s: %w", path, err)
	}
	defer pendingFile.Cleanup()

	if err := json.NewEncoder(pendingFile).Encode(v); err != nil {
		return fmt.Errorf("worker: encode %s: %w", path, err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("worker: replace %s: %w", path, err)
	}
	return nil
}

// ReadPayload reads and decodes the payload file.
func ReadPayload(path string) (Payload, error) {
	var p Payload
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("worker: read payload: %w", err)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("worker: decode payload: %w", err)
	}
	return p, nil
}

// ReadResult reads and decodes the result file.
func ReadResult(path string) (Result, error) {
	var r Result
	raw, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("worker: read result: %w", err)
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return r, fmt.Errorf("worker: decode result: %w", err)
	}
	return r, nil
}

// ReadProgress reads and decodes the progress file. Any error (missing
// file, malformed JSON) is reported via ok=false; callers are expected to
// silently skip on ok=false per the progress-channel's non-error policy.
func ReadProgress(path string) (p Progress, ok bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Progress{}, false
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return Progress{}, false
	}
	return p, true
}
