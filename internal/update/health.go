// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package update implements the liveness endpoint and a best-effort
// version check against a remote manifest.
package update

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/vinefeeder/envied/internal/cache"
)

// Checker performs the remote version lookup. A nil Checker disables the
// update check entirely (update_check then carries only current_version,
// with update_available null).
type Checker interface {
	LatestVersion(ctx context.Context) (string, error)
}

// HTTPChecker fetches a JSON manifest from a URL and reads its "version"
// field.
type HTTPChecker struct {
	ManifestURL string
	Client      *http.Client
}

// LatestVersion implements Checker.
func (c *HTTPChecker) LatestVersion(ctx context.Context) (string, error) {
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ManifestURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.Version, nil
}

// UpdateCheck is the update_check sub-object in the health response.
type UpdateCheck struct {
	UpdateAvailable *bool  `json:"update_available"`
	CurrentVersion  string `json:"current_version"`
	LatestVersion   string `json:"latest_version,omitempty"`
}

// HealthResponse is the full /health response body.
type HealthResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	UpdateCheck UpdateCheck       `json:"update_check"`
	Cache       *cache.CacheStats `json:"cache,omitempty"`
}

// Handler constructs the GET /health handler. checker may be nil, disabling
// the update check. metadataCache may be nil, omitting the cache section
// entirely; when set, its hit/miss/eviction counters are surfaced so an
// operator can tell the metadata cache (in-memory or Redis, see
// internal/cache) is actually absorbing GetTitles/GetTracks load rather than
// missing on every request.
func Handler(currentVersion string, checker Checker, metadataCache cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uc := UpdateCheck{CurrentVersion: currentVersion}

		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			latest, err := checker.LatestVersion(ctx)
			if err != nil {
				uc.UpdateAvailable = nil
			} else {
				uc.LatestVersion = latest
				available := latest != currentVersion
				uc.UpdateAvailable = &available
			}
		}

		resp := HealthResponse{
			Status:      "ok",
			Version:     currentVersion,
			UpdateCheck: uc,
		}
		if metadataCache != nil {
			stats := metadataCache.Stats()
			resp.Cache = &stats
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
