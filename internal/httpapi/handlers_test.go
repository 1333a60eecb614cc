// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vinefeeder/envied/internal/jobqueue"
	"github.com/vinefeeder/envied/internal/proxyresolve"
	"github.com/vinefeeder/envied/internal/service"
)

type stubAdapter struct{}

func (stubAdapter) Authenticate(context.Context, map[string]string, string) error { return nil }
func (stubAdapter) Search(context.Context, string) (<-chan service.SearchResult, error) {
	return nil, nil
}
func (stubAdapter) GetTitles(_ context.Context, titleID string) (service.Titles, error) {
	return service.Titles{Movies: []service.Movie{{ID: titleID, Title: "Stub Movie", Year: 2024}}}, nil
}
func (stubAdapter) GetTracks(context.Context, string) (service.Tracks, error) {
	return service.Tracks{Video: []service.Track{{ID: "v1", Kind: "video"}}}, nil
}
func (stubAdapter) GetChapters(context.Context, string) ([]service.Chapter, error) { return nil, nil }
func (stubAdapter) GetWidevineServiceCertificate(context.Context) ([]byte, error)  { return nil, nil }
func (stubAdapter) GetWidevineLicense(context.Context, []byte) ([]byte, error)     { return nil, nil }
func (stubAdapter) GetPlayReadyLicense(context.Context, []byte) ([]byte, error)    { return nil, nil }

type fakeProvider struct{ name, uri string }

func (f fakeProvider) Name() string { return f.name }
func (f fakeProvider) GetProxy(country string) (string, bool) {
	return f.uri, f.uri != ""
}

func newTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	registry := service.NewRegistry()
	registry.Register("NF", func(map[string]any) (service.Adapter, error) { return stubAdapter{}, nil })

	scheduler := jobqueue.New(1, time.Hour, func(ctx context.Context, job *jobqueue.Job) ([]string, error) {
		return []string{"out.mkv"}, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	scheduler.Start(ctx)

	proxies := proxyresolve.NewRegistry()
	proxies.Register(fakeProvider{name: "nordvpn", uri: "socks5://proxy.example:1080"})

	srv := &Server{Services: registry, Scheduler: scheduler, Proxies: proxies}
	return srv, func() {
		cancel()
		scheduler.Shutdown()
	}
}

func newTestRouter(srv *Server) *chi.Mux {
	r := chi.NewRouter()
	srv.Mount(r)
	return r
}

func TestHandleDownloadHistoryEmptyWithoutStore(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()
	r := newTestRouter(srv)

	req := httptest.NewRequest("GET", "/download/history", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Jobs []jobqueue.HistoryEntry `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Jobs) != 0 {
		t.Fatalf("expected no history entries, got %d", len(body.Jobs))
	}
}

func TestHandleDownloadHistoryReturnsRecordedJobs(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()

	history, err := jobqueue.OpenSQLiteHistory(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteHistory: %v", err)
	}
	defer history.Close()
	completed := time.Now()
	if err := history.Record(jobqueue.Job{ID: "job-1", Service: "NF", TitleID: "abc", Status: jobqueue.StatusCompleted, CreatedTime: completed, CompletedTime: &completed}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	srv.History = history

	r := newTestRouter(srv)
	req := httptest.NewRequest("GET", "/download/history", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Jobs []jobqueue.HistoryEntry `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Jobs) != 1 || body.Jobs[0].ID != "job-1" {
		t.Fatalf("unexpected history: %+v", body.Jobs)
	}
}

func TestHandleListServices(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()
	router := newTestRouter(srv)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/services", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleListTitlesUnknownService(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()
	router := newTestRouter(srv)

	body, _ := json.Marshal(map[string]string{"service": "UNKNOWN", "title_id": "x"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/list-titles", bytes.NewReader(body))
	router.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleListTitlesSuccess(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()
	router := newTestRouter(srv)

	body, _ := json.Marshal(map[string]string{"service": "NF", "title_id": "abc123"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/list-titles", bytes.NewReader(body))
	router.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleDownloadRejectsInvalidParameters(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()
	router := newTestRouter(srv)

	body, _ := json.Marshal(map[string]any{"service": "NF", "title_id": "abc", "vcodec": "MPEG2"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/download", bytes.NewReader(body))
	router.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleDownloadResolvesProxyAndEnqueues(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()
	router := newTestRouter(srv)

	body, _ := json.Marshal(map[string]any{"service": "NF", "title_id": "abc", "proxy": "nordvpn:us"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/download", bytes.NewReader(body))
	router.ServeHTTP(rec, req)

	if rec.Code != 202 {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp jobResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID == "" {
		t.Fatal("expected a job id")
	}
}

func TestHandleDownloadRecordsAuthenticatedPrincipalOnJob(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()

	r := chi.NewRouter()
	r.Use(RequireToken("secret-token", false))
	srv.Mount(r)

	body, _ := json.Marshal(map[string]any{"service": "NF", "title_id": "abc"})
	req := httptest.NewRequest("POST", "/download", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != 202 {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp jobResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	job, ok := srv.Scheduler.Get(resp.ID)
	if !ok {
		t.Fatal("expected job to be retrievable")
	}
	if job.Principal == "" {
		t.Fatal("expected authenticated request to record a principal on the job")
	}
}

func TestHandleDownloadRejectsMissingToken(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()

	r := chi.NewRouter()
	r.Use(RequireToken("secret-token", false))
	srv.Mount(r)

	body, _ := json.Marshal(map[string]any{"service": "NF", "title_id": "abc"})
	req := httptest.NewRequest("POST", "/download", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != 401 {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleGetJobNotFound(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()
	router := newTestRouter(srv)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/download/jobs/does-not-exist", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleCancelUnknownJob(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()
	router := newTestRouter(srv)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("DELETE", "/download/jobs/does-not-exist", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
