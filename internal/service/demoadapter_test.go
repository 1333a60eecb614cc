// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vinefeeder/envied/internal/session"
)

func TestDemoAdapterGetTitlesRequiresTitleID(t *testing.T) {
	adapter, err := NewDemoAdapter(nil)
	if err != nil {
		t.Fatalf("NewDemoAdapter: %v", err)
	}
	if _, err := adapter.GetTitles(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty title_id")
	}
}

func TestDemoAdapterFullPipeline(t *testing.T) {
	adapter, _ := NewDemoAdapter(nil)
	ctx := context.Background()

	titles, err := adapter.GetTitles(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetTitles: %v", err)
	}
	want := Titles{Movies: []Movie{{ID: "abc123", Title: "Demo Feature", Year: 2024}}}
	if diff := cmp.Diff(want, titles); diff != "" {
		t.Fatalf("unexpected titles (-want +got):\n%s", diff)
	}

	tracks, err := adapter.GetTracks(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetTracks: %v", err)
	}
	if len(tracks.Video) == 0 || len(tracks.Audio) == 0 || len(tracks.Subtitle) == 0 {
		t.Fatal("expected video, audio, and subtitle tracks")
	}

	cert, err := adapter.GetWidevineServiceCertificate(ctx)
	if err != nil || cert != nil {
		t.Fatalf("expected nil certificate for a DRM-free adapter, got %v / %v", cert, err)
	}
}

func TestDemoAdapterFactoryRequiresAuthenticateBeforeCatalogAccess(t *testing.T) {
	sessions := session.NewManager("envied", time.Hour, []byte("key"))
	factory := NewDemoAdapterFactory(sessions)
	adapter, err := factory(nil)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	ctx := context.Background()

	if _, err := adapter.GetTitles(ctx, "abc123"); err == nil {
		t.Fatal("expected GetTitles to fail before Authenticate mints a session")
	}

	if err := adapter.Authenticate(ctx, nil, ""); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	if _, err := adapter.GetTitles(ctx, "abc123"); err != nil {
		t.Fatalf("expected GetTitles to succeed after Authenticate, got %v", err)
	}
}
