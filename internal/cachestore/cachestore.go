// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cachestore implements a keyed, expiring, checksum-verified blob
// store on disk: one JSON file per (service, key) pair at
// <root>/<service>/<key>.json.
package cachestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/renameio/v2"
)

// ErrVersionMismatch is returned by Get when a stored entry's version does
// not match the version the caller expects; the caller should treat this as
// a miss and refill.
var ErrVersionMismatch = errors.New("cachestore: version mismatch")

// ErrChecksumMismatch is returned by Get when a stored entry's checksum does
// not match its recomputed value; the entry is corrupt and should be
// discarded.
var ErrChecksumMismatch = errors.New("cachestore: checksum mismatch")

// record is the on-disk shape of a cache entry.
type record struct {
	Data       json.RawMessage `json:"data"`
	Expiration *string         `json:"expiration"`
	Version    int             `json:"version"`
	CRC32      uint32          `json:"crc32"`
}

// Cache is an in-memory handle returned by Get/Set, wrapping one on-disk
// entry.
type Cache struct {
	Data       json.RawMessage
	Expiration *time.Time
	Version    int
}

// Expired reports whether the entry's expiration timestamp has passed.
// An entry with no expiration is never expired.
func (c *Cache) Expired() bool {
	return c.Expiration != nil && c.Expiration.Before(time.Now())
}

// Store is a thread-safe, per-root cache store. One Store instance is
// intended to be shared per (service) namespace, mirroring the
// per-(service, key, version) singleton discipline the store serializes
// around internally via its mutex.
type Store struct {
	mu   sync.Mutex
	root string
}

// New returns a Store rooted at root. The root directory is created lazily
// on first write.
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) path(service, key string) string {
	return filepath.Join(s.root, service, key+".json")
}

// Get reads the cache entry for (service, key), verifying its checksum and
// comparing its stored version against wantVersion. Returns (nil, nil) on a
// plain miss (file absent).
func (s *Store) Get(service, key string, wantVersion int) (*Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path(service, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache entry: %w", err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}

	if got := checksum(rec.Data, rec.Expiration, rec.Version); got != rec.CRC32 {
		return nil, ErrChecksumMismatch
	}
	if rec.Version != wantVersion {
		return nil, ErrVersionMismatch
	}

	c := &Cache{Data: rec.Data, Version: rec.Version}
	if rec.Expiration != nil {
		t, err := parseTimestamp(*rec.Expiration)
		if err == nil {
			c.Expiration = &t
		}
	}
	return c, nil
}

// Set serializes data under (service, key, version) and writes it
// atomically. If expiration is nil, Set attempts to read data as a JWT and
// use its exp claim as the expiration; failing that, the entry has no
// expiration.
func (s *Store) Set(service, key string, version int, data json.RawMessage, expiration *time.Time) (*Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expiration == nil {
		if exp, ok := expirationFromJWT(data); ok {
			expiration = &exp
		}
	}

	var expStr *string
	if expiration != nil {
		v := expiration.UTC().Format(time.RFC3339)
		expStr = &v
	}

	rec := record{
		Data:       data,
		Expiration: expStr,
		Version:    version,
		CRC32:      checksum(data, expStr, version),
	}

	path := s.path(service, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return nil, fmt.Errorf("create pending cache file: %w", err)
	}
	defer pendingFile.Cleanup()

	enc := json.NewEncoder(pendingFile)
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return nil, fmt.Errorf("atomically replace cache entry: %w", err)
	}

	return &Cache{Data: data, Expiration: expiration, Version: version}, nil
}

// checksum computes the CRC32 over the raw data bytes, the expiration string
// (omitted when nil), and the decimal version, concatenated in that order,
// so it can be recomputed independently of field order in a decoded map.
func checksum(data json.RawMessage, expiration *string, version int) uint32 {
	h := crc32.NewIEEE()
	h.Write(data)
	if expiration != nil {
		h.Write([]byte(*expiration))
	}
	h.Write([]byte(strconv.Itoa(version)))
	return h.Sum32()
}

// expirationFromJWT attempts to parse data as a JSON string containing a
// JWT and extract its exp claim, unverified — the cache store trusts its
// own writer, it isn't authenticating the token.
func expirationFromJWT(data json.RawMessage) (time.Time, bool) {
	var tokenStr string
	if err := json.Unmarshal(data, &tokenStr); err != nil {
		return time.Time{}, false
	}
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// parseTimestamp accepts ISO-8601 (optionally trailing Z), integer/float
// seconds, integer milliseconds (13-digit magnitude), or a numeric string.
// A resolved timestamp in the past is reinterpreted as a duration in
// seconds from now — a deliberately preserved ambiguity, see DESIGN.md.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return resolvePastAsDuration(t), nil
	}
	trimmed := strings.TrimSuffix(s, "Z")
	if t, err := time.Parse("2006-01-02T15:04:05", trimmed); err == nil {
		return resolvePastAsDuration(t.UTC()), nil
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return resolveNumeric(f), nil
	}

	return time.Time{}, fmt.Errorf("parseTimestamp: unrecognized format %q", s)
}

func resolveNumeric(f float64) time.Time {
	// 13-digit magnitude: milliseconds.
	if f >= 1e12 {
		sec := int64(f) / 1000
		nsec := (int64(f) % 1000) * int64(time.Millisecond)
		return resolvePastAsDuration(time.Unix(sec, nsec).UTC())
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * float64(time.Second))
	return resolvePastAsDuration(time.Unix(sec, nsec).UTC())
}

func resolvePastAsDuration(t time.Time) time.Time {
	now := time.Now()
	if t.Before(now) {
		return now.Add(time.Duration(t.Unix()) * time.Second)
	}
	return t
}
