// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package update

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vinefeeder/envied/internal/cache"
)

type fakeChecker struct {
	version string
	err     error
}

func (f *fakeChecker) LatestVersion(ctx context.Context) (string, error) {
	return f.version, f.err
}

func TestHandlerNoChecker(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)

	Handler("1.0.0", nil, nil)(rec, req)

	var body HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("expected ok, got %s", body.Status)
	}
	if body.UpdateCheck.UpdateAvailable != nil {
		t.Fatal("expected update_available to be null without a checker")
	}
}

func TestHandlerCheckerFailureIsNonFatal(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)

	Handler("1.0.0", &fakeChecker{err: errors.New("network down")}, nil)(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200 even on checker failure, got %d", rec.Code)
	}
	var body HealthResponse
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.UpdateCheck.UpdateAvailable != nil {
		t.Fatal("expected update_available null on checker error")
	}
}

func TestHandlerDetectsUpdate(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)

	Handler("1.0.0", &fakeChecker{version: "2.0.0"}, nil)(rec, req)

	var body HealthResponse
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.UpdateCheck.UpdateAvailable == nil || !*body.UpdateCheck.UpdateAvailable {
		t.Fatal("expected update_available=true")
	}
}

func TestHandlerSurfacesCacheStats(t *testing.T) {
	c := cache.NewMemoryCache(time.Minute)
	c.Set("k", "v", time.Minute)
	c.Get("k")
	c.Get("missing")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	Handler("1.0.0", nil, c)(rec, req)

	var body HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Cache == nil {
		t.Fatal("expected cache stats when a cache is wired")
	}
	if body.Cache.Hits != 1 || body.Cache.Misses != 1 || body.Cache.Sets != 1 {
		t.Fatalf("unexpected cache stats: %+v", body.Cache)
	}
}

func TestHandlerOmitsCacheWhenNil(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	Handler("1.0.0", nil, nil)(rec, req)

	if !omitsCacheKey(rec.Body.Bytes()) {
		t.Fatal("expected cache key to be omitted from JSON when no cache is wired")
	}
}

func omitsCacheKey(b []byte) bool {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return false
	}
	_, present := raw["cache"]
	return !present
}
