// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vinefeeder/envied/internal/apierror"
	"github.com/vinefeeder/envied/internal/auth"
	"github.com/vinefeeder/envied/internal/cache"
	"github.com/vinefeeder/envied/internal/jobqueue"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apierror.Write(w, r, err, s.DebugMode, nil)
}

// GET /services
func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"services": s.Services.Tags()})
}

type titlesRequest struct {
	Service string `json:"service"`
	TitleID string `json:"title_id"`
}

// POST /list-titles
func (s *Server) handleListTitles(w http.ResponseWriter, r *http.Request) {
	var req titlesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apierror.New(apierror.CodeInvalidParameters, "malformed request body", nil, false, 0))
		return
	}
	if req.Service == "" {
		s.writeError(w, r, apierror.New(apierror.CodeInvalidService, "service is required", nil, false, 0))
		return
	}

	cacheKey := cache.MetadataKey("titles", req.Service, req.TitleID)
	if cached, ok := s.metadata().Get(cacheKey); ok {
		s.writeJSON(w, http.StatusOK, cached)
		return
	}

	adapter, err := s.Services.New(req.Service, nil, nil)
	if err != nil {
		s.writeError(w, r, apierror.New(apierror.CodeInvalidService, err.Error(), nil, false, 0))
		return
	}

	titlesAny, err, _ := s.fetchGroup.Do(cacheKey, func() (any, error) {
		return adapter.GetTitles(r.Context(), req.TitleID)
	})
	if err != nil {
		s.writeError(w, r, apierror.Categorize(err, map[string]any{"service": req.Service}))
		return
	}
	s.metadata().Set(cacheKey, titlesAny, metadataCacheTTL)
	s.writeJSON(w, http.StatusOK, titlesAny)
}

// POST /list-tracks
func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	var req titlesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apierror.New(apierror.CodeInvalidParameters, "malformed request body", nil, false, 0))
		return
	}
	if req.Service == "" {
		s.writeError(w, r, apierror.New(apierror.CodeInvalidService, "service is required", nil, false, 0))
		return
	}
	if req.TitleID == "" {
		s.writeError(w, r, apierror.New(apierror.CodeInvalidTitleID, "title_id is required", nil, false, 0))
		return
	}

	cacheKey := cache.MetadataKey("tracks", req.Service, req.TitleID)
	if cached, ok := s.metadata().Get(cacheKey); ok {
		s.writeJSON(w, http.StatusOK, cached)
		return
	}

	adapter, err := s.Services.New(req.Service, nil, nil)
	if err != nil {
		s.writeError(w, r, apierror.New(apierror.CodeInvalidService, err.Error(), nil, false, 0))
		return
	}

	tracksAny, err, _ := s.fetchGroup.Do(cacheKey, func() (any, error) {
		return adapter.GetTracks(r.Context(), req.TitleID)
	})
	if err != nil {
		s.writeError(w, r, apierror.Categorize(err, map[string]any{"service": req.Service}))
		return
	}
	s.metadata().Set(cacheKey, tracksAny, metadataCacheTTL)
	s.writeJSON(w, http.StatusOK, tracksAny)
}

// POST /download
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var params DownloadParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		s.writeError(w, r, apierror.New(apierror.CodeInvalidParameters, "malformed request body", nil, false, 0))
		return
	}
	if params.Service == "" {
		s.writeError(w, r, apierror.New(apierror.CodeInvalidService, "service is required", nil, false, 0))
		return
	}
	if params.TitleID == "" {
		s.writeError(w, r, apierror.New(apierror.CodeInvalidTitleID, "title_id is required", nil, false, 0))
		return
	}
	if msg := ValidateDownloadParameters(params); msg != "" {
		s.writeError(w, r, apierror.New(apierror.CodeInvalidParameters, msg, nil, false, 0))
		return
	}

	if params.Proxy != "" && !params.NoProxy && s.Proxies != nil {
		resolved, err := s.Proxies.Resolve(params.Proxy)
		if err != nil {
			s.writeError(w, r, apierror.New(apierror.CodeInvalidProxy, err.Error(), nil, false, 0))
			return
		}
		params.Proxy = resolved
	}

	raw, err := json.Marshal(params)
	if err != nil {
		s.writeError(w, r, apierror.New(apierror.CodeInvalidParameters, "unable to encode parameters", nil, false, 0))
		return
	}
	var asMap map[string]any
	_ = json.Unmarshal(raw, &asMap)

	var principal string
	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		principal = p.ID
	}

	job, err := s.Scheduler.Submit(params.Service, params.TitleID, asMap, principal)
	if err != nil {
		s.writeError(w, r, apierror.New(apierror.CodeInternalError, err.Error(), nil, true, 0))
		return
	}
	s.writeJSON(w, http.StatusAccepted, jobView(*job))
}

// GET /download/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.Scheduler.List()
	views := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, jobView(j))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

// GET /download/jobs/{id}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := s.Scheduler.Get(id)
	if !ok {
		s.writeError(w, r, apierror.New(apierror.CodeJobNotFound, "job not found", map[string]any{"job_id": id}, false, 0))
		return
	}
	s.writeJSON(w, http.StatusOK, jobView(job))
}

// DELETE /download/jobs/{id}
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.Scheduler.Get(id); !ok {
		s.writeError(w, r, apierror.New(apierror.CodeJobNotFound, "job not found", map[string]any{"job_id": id}, false, 0))
		return
	}
	cancelled := s.Scheduler.Cancel(id)
	s.writeJSON(w, http.StatusOK, map[string]any{"cancelled": cancelled})
}

// GET /download/history
func (s *Server) handleDownloadHistory(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"jobs": []jobqueue.HistoryEntry{}})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.History.Recent(limit)
	if err != nil {
		s.writeError(w, r, apierror.New(apierror.CodeInternalError, err.Error(), nil, true, 0))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": entries})
}

type jobResponse struct {
	ID            string          `json:"id"`
	Service       string          `json:"service"`
	TitleID       string          `json:"title_id"`
	Status        jobqueue.Status `json:"status"`
	Progress      float64         `json:"progress"`
	OutputFiles   []string        `json:"output_files,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	ErrorCode     string          `json:"error_code,omitempty"`
	CreatedTime   string          `json:"created_time"`
	StartedTime   string          `json:"started_time,omitempty"`
	CompletedTime string          `json:"completed_time,omitempty"`
}

func jobView(j jobqueue.Job) jobResponse {
	v := jobResponse{
		ID:           j.ID,
		Service:      j.Service,
		TitleID:      j.TitleID,
		Status:       j.Status,
		Progress:     j.Progress,
		OutputFiles:  j.OutputFiles,
		ErrorMessage: j.ErrorMessage,
		ErrorCode:    j.ErrorCode,
		CreatedTime:  j.CreatedTime.Format(timeLayout),
	}
	if j.StartedTime != nil {
		v.StartedTime = j.StartedTime.Format(timeLayout)
	}
	if j.CompletedTime != nil {
		v.CompletedTime = j.CompletedTime.Format(timeLayout)
	}
	return v
}

const timeLayout = "2006-01-02T15:04:05Z07:00"
