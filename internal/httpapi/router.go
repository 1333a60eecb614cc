// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package httpapi

import (
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/vinefeeder/envied/internal/cache"
	"github.com/vinefeeder/envied/internal/jobqueue"
	"github.com/vinefeeder/envied/internal/proxyresolve"
	"github.com/vinefeeder/envied/internal/service"
)

// metadataCacheTTL bounds how long a catalog lookup is served from the
// metadata cache before the adapter is queried again.
const metadataCacheTTL = 5 * time.Minute

// Server bundles the dependencies the HTTP API's handlers need.
type Server struct {
	Services  *service.Registry
	Scheduler *jobqueue.Scheduler
	Proxies   *proxyresolve.Registry
	DebugMode bool

	// Metadata caches GetTitles/GetTracks results (in memory or in Redis,
	// depending on the backend passed in), independent of the on-disk
	// DRM/license cache in internal/cachestore. Defaults to a no-op cache if
	// left nil.
	Metadata cache.Cache

	// History, if set, backs GET /download/history with the snapshots the
	// scheduler records as jobs finish; they outlive its in-memory retention
	// window.
	History *jobqueue.SQLiteHistory

	// fetchGroup coalesces concurrent list-titles/list-tracks requests for
	// the same service+title so a cache stampede doesn't fan out into N
	// identical adapter calls.
	fetchGroup singleflight.Group
}

func (s *Server) metadata() cache.Cache {
	if s.Metadata == nil {
		return cache.NewNoOpCache()
	}
	return s.Metadata
}

// Mount registers every C7 route under r.
func (s *Server) Mount(r chi.Router) {
	r.Get("/services", s.handleListServices)
	r.Post("/list-titles", s.handleListTitles)
	r.Post("/list-tracks", s.handleListTracks)
	r.Post("/download", s.handleDownload)
	r.Get("/download/jobs", s.handleListJobs)
	r.Get("/download/jobs/{id}", s.handleGetJob)
	r.Delete("/download/jobs/{id}", s.handleCancelJob)
	r.Get("/download/history", s.handleDownloadHistory)
}
