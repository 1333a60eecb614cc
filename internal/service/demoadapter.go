// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package service

import (
	"context"
	"fmt"

	"github.com/vinefeeder/envied/internal/session"
)

// demoAdapter is a bundled, DRM-free reference adapter: it exercises the
// full Adapter surface against no real upstream, the way a free-to-air
// catalog service (no Widevine/PlayReady) would. Deployments register
// their real adapters alongside or instead of this one; its tag is kept
// reserved so "DEMO" never collides with a real service.
type demoAdapter struct {
	cfg      map[string]any
	sessions *session.Manager
	session  string
}

// NewDemoAdapter constructs the bundled reference adapter with no session
// manager attached (used by the worker subprocess, which never mints its
// own sessions — it runs with credentials the parent already resolved).
func NewDemoAdapter(cfg map[string]any) (Adapter, error) {
	return &demoAdapter{cfg: cfg}, nil
}

// NewDemoAdapterFactory returns a Factory that mints a signed service
// session via sessions on every successful Authenticate, the same way a
// DRM-bearing adapter mints one before presenting credentials upstream.
// cmd/daemon registers the DEMO adapter through this factory so C14's
// session manager has a real, production-reachable caller.
func NewDemoAdapterFactory(sessions *session.Manager) Factory {
	return func(cfg map[string]any) (Adapter, error) {
		return &demoAdapter{cfg: cfg, sessions: sessions}, nil
	}
}

func (a *demoAdapter) Authenticate(_ context.Context, _ map[string]string, _ string) error {
	if a.sessions == nil {
		return nil
	}
	token, err := a.sessions.Mint("DEMO")
	if err != nil {
		return fmt.Errorf("demo: mint session: %w", err)
	}
	a.session = token
	return nil
}

func (a *demoAdapter) Search(_ context.Context, query string) (<-chan SearchResult, error) {
	ch := make(chan SearchResult, 1)
	ch <- SearchResult{ID: "demo-" + query, Title: query, Kind: "movie"}
	close(ch)
	return ch, nil
}

func (a *demoAdapter) GetTitles(_ context.Context, titleID string) (Titles, error) {
	if titleID == "" {
		return Titles{}, fmt.Errorf("demo: title_id is required")
	}
	if a.sessions != nil && a.session == "" {
		return Titles{}, fmt.Errorf("demo: not authenticated")
	}
	return Titles{Movies: []Movie{{ID: titleID, Title: "Demo Feature", Year: 2024}}}, nil
}

func (a *demoAdapter) GetTracks(_ context.Context, titleID string) (Tracks, error) {
	if a.sessions != nil && a.session == "" {
		return Tracks{}, fmt.Errorf("demo: not authenticated")
	}
	return Tracks{
		Video:    []Track{{ID: titleID + "-v1", Kind: "video", Codec: "h264"}},
		Audio:    []Track{{ID: titleID + "-a1", Kind: "audio", Language: "en", Codec: "aac"}},
		Subtitle: []Track{{ID: titleID + "-s1", Kind: "subtitle", Language: "en"}},
	}, nil
}

func (a *demoAdapter) GetChapters(_ context.Context, _ string) ([]Chapter, error) {
	return []Chapter{{Title: "Start", Start: 0}}, nil
}

// The demo catalog carries no DRM, matching unshackle's free-to-air
// services: every CDM hook is a no-op.
func (a *demoAdapter) GetWidevineServiceCertificate(_ context.Context) ([]byte, error) {
	return nil, nil
}

func (a *demoAdapter) GetWidevineLicense(_ context.Context, _ []byte) ([]byte, error) {
	return nil, nil
}

func (a *demoAdapter) GetPlayReadyLicense(_ context.Context, _ []byte) ([]byte, error) {
	return nil, nil
}
