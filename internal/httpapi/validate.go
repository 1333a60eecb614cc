// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package httpapi implements the HTTP surface: request validation,
// proxy resolution, and the job-lifecycle endpoints.
package httpapi

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

var validVcodecs = []string{"H264", "H265", "VP9", "AV1"}
var validAcodecs = []string{"AAC", "AC3", "EC3", "EAC3", "DD", "DD+", "AC4", "OPUS", "FLAC", "ALAC", "VORBIS", "OGG", "DTS"}
var validSubFormats = []string{"SRT", "VTT", "ASS", "SSA"}
var validRanges = []string{"SDR", "HDR10", "HDR10+", "DV", "HLG"}

// DownloadParams mirrors the recognized /download request body.
type DownloadParams struct {
	Service string `json:"service"`
	TitleID string `json:"title_id"`
	Profile string `json:"profile,omitempty"`

	Quality  []int    `json:"quality,omitempty"`
	VCodec   string   `json:"vcodec,omitempty"`
	ACodec   any      `json:"acodec,omitempty"` // string or []string
	VBitrate *int     `json:"vbitrate,omitempty"`
	ABitrate *int     `json:"abitrate,omitempty"`
	Range    any      `json:"range,omitempty"` // string or []string
	Channels *float64 `json:"channels,omitempty"`
	NoAtmos  bool     `json:"no_atmos,omitempty"`

	Wanted        string   `json:"wanted,omitempty"`
	LatestEpisode bool     `json:"latest_episode,omitempty"`
	Lang          []string `json:"lang,omitempty"`
	VLang         []string `json:"v_lang,omitempty"`
	ALang         []string `json:"a_lang,omitempty"`
	SLang         []string `json:"s_lang,omitempty"`
	RequireSubs   []string `json:"require_subs,omitempty"`
	ForcedSubs    bool     `json:"forced_subs,omitempty"`
	ExactLang     bool     `json:"exact_lang,omitempty"`
	SubFormat     string   `json:"sub_format,omitempty"`

	VideoOnly    bool `json:"video_only,omitempty"`
	AudioOnly    bool `json:"audio_only,omitempty"`
	SubsOnly     bool `json:"subs_only,omitempty"`
	ChaptersOnly bool `json:"chapters_only,omitempty"`

	NoSubs           bool `json:"no_subs,omitempty"`
	NoAudio          bool `json:"no_audio,omitempty"`
	NoChapters       bool `json:"no_chapters,omitempty"`
	AudioDescription bool `json:"audio_description,omitempty"`
	SkipDL           bool `json:"skip_dl,omitempty"`
	Export           bool `json:"export,omitempty"`
	CDMOnly          bool `json:"cdm_only,omitempty"`
	NoFolder         bool `json:"no_folder,omitempty"`
	NoSource         bool `json:"no_source,omitempty"`
	NoMux            bool `json:"no_mux,omitempty"`
	Workers          *int `json:"workers,omitempty"`
	Downloads        *int `json:"downloads,omitempty"`
	BestAvailable    bool `json:"best_available,omitempty"`

	Proxy    string `json:"proxy,omitempty"`
	NoProxy  bool   `json:"no_proxy,omitempty"`
	Slow     bool   `json:"slow,omitempty"`
	Tag      string `json:"tag,omitempty"`
	TMDBID   string `json:"tmdb_id,omitempty"`
	TMDBName string `json:"tmdb_name,omitempty"`
	TMDBYear string `json:"tmdb_year,omitempty"`
}

// ValidateDownloadParameters reproduces validate_download_parameters:
// returns "" if valid, or a human-readable error message.
func ValidateDownloadParameters(p DownloadParams) string {
	if p.VCodec != "" && !oneOfUpper(p.VCodec, validVcodecs) {
		return fmt.Sprintf("Invalid vcodec: %s. Must be one of: %s", p.VCodec, strings.Join(validVcodecs, ", "))
	}

	if p.ACodec != nil {
		values, err := stringList(p.ACodec)
		if err != nil {
			return "acodec must be a string or list"
		}
		var invalid []string
		for _, v := range values {
			if !oneOfUpper(v, validAcodecs) {
				invalid = append(invalid, v)
			}
		}
		if len(invalid) > 0 {
			return fmt.Sprintf("Invalid acodec: %s. Must be one of: %s", strings.Join(invalid, ", "), strings.Join(validAcodecs, ", "))
		}
	}

	if p.SubFormat != "" && !oneOfUpper(p.SubFormat, validSubFormats) {
		return fmt.Sprintf("Invalid sub_format: %s. Must be one of: %s", p.SubFormat, strings.Join(validSubFormats, ", "))
	}

	if p.VBitrate != nil && *p.VBitrate <= 0 {
		return "vbitrate must be a positive integer"
	}
	if p.ABitrate != nil && *p.ABitrate <= 0 {
		return "abitrate must be a positive integer"
	}
	if p.Channels != nil && *p.Channels <= 0 {
		return "channels must be a positive number"
	}
	if p.Workers != nil && *p.Workers <= 0 {
		return "workers must be a positive integer"
	}
	if p.Downloads != nil && *p.Downloads <= 0 {
		return "downloads must be a positive integer"
	}

	var exclusive []string
	if p.VideoOnly {
		exclusive = append(exclusive, "video_only")
	}
	if p.AudioOnly {
		exclusive = append(exclusive, "audio_only")
	}
	if p.SubsOnly {
		exclusive = append(exclusive, "subs_only")
	}
	if p.ChaptersOnly {
		exclusive = append(exclusive, "chapters_only")
	}
	if len(exclusive) > 1 {
		return fmt.Sprintf("Cannot use multiple exclusive flags: %s", strings.Join(exclusive, ", "))
	}

	if p.NoSubs && p.SubsOnly {
		return "Cannot use both no_subs and subs_only"
	}
	if p.NoAudio && p.AudioOnly {
		return "Cannot use both no_audio and audio_only"
	}
	if len(p.SLang) > 0 && len(p.RequireSubs) > 0 {
		return "Cannot use both s_lang and require_subs"
	}

	if p.Range != nil {
		values, err := stringList(p.Range)
		if err != nil {
			return "range must be a string or list"
		}
		for _, v := range values {
			if !oneOfUpper(v, validRanges) {
				return fmt.Sprintf("Invalid range value: %s. Must be one of: %s", v, strings.Join(validRanges, ", "))
			}
		}
	}

	for _, field := range [][2]any{{"lang", p.Lang}, {"v_lang", p.VLang}, {"a_lang", p.ALang}, {"s_lang", p.SLang}, {"require_subs", p.RequireSubs}} {
		name := field[0].(string)
		tags := field[1].([]string)
		for _, tag := range tags {
			if !validLanguageTag(tag) {
				return fmt.Sprintf("Invalid %s value: %q is not a recognized language tag", name, tag)
			}
		}
	}

	return ""
}

// validLanguageTag accepts unshackle's special keywords ("all", "orig")
// alongside any BCP 47 tag parseable by golang.org/x/text/language.
func validLanguageTag(tag string) bool {
	switch strings.ToLower(tag) {
	case "all", "orig":
		return true
	}
	_, err := language.Parse(tag)
	return err == nil
}

func oneOfUpper(v string, options []string) bool {
	up := strings.ToUpper(v)
	for _, o := range options {
		if up == o {
			return true
		}
	}
	return false
}

func stringList(v any) ([]string, error) {
	switch t := v.(type) {
	case string:
		var out []string
		for _, part := range strings.Split(t, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string list entry")
			}
			out = append(out, strings.TrimSpace(s))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}
