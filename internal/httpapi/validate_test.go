// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package httpapi

import "testing"

func ptrInt(v int) *int { return &v }

func TestValidateDownloadParametersAccepted(t *testing.T) {
	msg := ValidateDownloadParameters(DownloadParams{VCodec: "h265", ACodec: "aac,ac3", SubFormat: "srt"})
	if msg != "" {
		t.Fatalf("expected valid, got %q", msg)
	}
}

func TestValidateDownloadParametersRejectsBadVcodec(t *testing.T) {
	msg := ValidateDownloadParameters(DownloadParams{VCodec: "MPEG2"})
	if msg == "" {
		t.Fatal("expected validation error")
	}
}

func TestValidateDownloadParametersRejectsBadAcodecList(t *testing.T) {
	msg := ValidateDownloadParameters(DownloadParams{ACodec: []any{"AAC", "MP3"}})
	if msg == "" {
		t.Fatal("expected validation error")
	}
}

func TestValidateDownloadParametersRejectsNonPositiveBitrate(t *testing.T) {
	msg := ValidateDownloadParameters(DownloadParams{VBitrate: ptrInt(0)})
	if msg == "" {
		t.Fatal("expected validation error")
	}
}

func TestValidateDownloadParametersRejectsMultipleExclusiveFlags(t *testing.T) {
	msg := ValidateDownloadParameters(DownloadParams{VideoOnly: true, AudioOnly: true})
	if msg == "" {
		t.Fatal("expected validation error")
	}
}

func TestValidateDownloadParametersRejectsNoSubsWithSubsOnly(t *testing.T) {
	msg := ValidateDownloadParameters(DownloadParams{NoSubs: true, SubsOnly: true})
	if msg == "" {
		t.Fatal("expected validation error")
	}
}

func TestValidateDownloadParametersRejectsSLangWithRequireSubs(t *testing.T) {
	msg := ValidateDownloadParameters(DownloadParams{SLang: []string{"en"}, RequireSubs: []string{"en"}})
	if msg == "" {
		t.Fatal("expected validation error")
	}
}

func TestValidateDownloadParametersRejectsBadRange(t *testing.T) {
	msg := ValidateDownloadParameters(DownloadParams{Range: "HDR9000"})
	if msg == "" {
		t.Fatal("expected validation error")
	}
}

func TestValidateDownloadParametersAcceptsRangeList(t *testing.T) {
	msg := ValidateDownloadParameters(DownloadParams{Range: []any{"sdr", "hdr10"}})
	if msg != "" {
		t.Fatalf("expected valid, got %q", msg)
	}
}

func TestValidateDownloadParametersAcceptsLanguageKeywordsAndTags(t *testing.T) {
	msg := ValidateDownloadParameters(DownloadParams{Lang: []string{"orig"}, SLang: []string{"all"}, VLang: []string{"en-US"}})
	if msg != "" {
		t.Fatalf("expected valid, got %q", msg)
	}
}

func TestValidateDownloadParametersRejectsUnrecognizedLanguageTag(t *testing.T) {
	msg := ValidateDownloadParameters(DownloadParams{ALang: []string{"not-a-real-tag!!"}})
	if msg == "" {
		t.Fatal("expected validation error")
	}
}
