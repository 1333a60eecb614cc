// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package drm implements per-request DRM license acquisition with
// key-source merging: a local vault, a remote provider's own key cache, and
// freshly negotiated license keys are combined without duplication.
package drm

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// KeyKind classifies a Key's purpose. Only Content keys participate in
// vault caching.
type KeyKind string

const (
	KindContent     KeyKind = "CONTENT"
	KindSigning     KeyKind = "SIGNING"
	KindOperator    KeyKind = "OPERATOR"
	KindEntitlement KeyKind = "ENTITLEMENT"
)

// Key is a (KID, key, kind) triple. KID is always normalized: lowercase,
// 32 hex characters, no hyphens.
type Key struct {
	KID  string
	Key  []byte
	Kind KeyKind
}

// NormalizeKID accepts a UUID, 32-hex, or shorter hex string (zero-padded
// on the right to 32 chars) and returns the canonical lowercase, unhyphenated
// form.
func NormalizeKID(kid string) string {
	clean := strings.ToLower(strings.ReplaceAll(kid, "-", ""))
	if len(clean) < 32 {
		clean = clean + strings.Repeat("0", 32-len(clean))
	}
	if len(clean) > 32 {
		clean = clean[:32]
	}
	return clean
}

// Vault is the local key cache a Session consults before issuing a license
// challenge, and persists newly acquired content keys into.
type Vault interface {
	GetKey(service, kid string) ([]byte, bool)
	PutKeys(service string, keys []Key) error
}

// Session tracks one DRM negotiation: the required KIDs, the three key
// source buckets (vault/cached/license), and the in-flight challenge.
type Session struct {
	ID        [16]byte
	Service   string
	Cert      []byte
	PSSH      []byte
	InitData  string
	Required  map[string]struct{}
	VaultKeys []Key
	Cached    []Key
	Keys      []Key

	Challenge       []byte
	RemoteSessionID string
}

// ErrInvalidSession indicates an operation referenced an unknown or closed
// session id.
var ErrInvalidSession = fmt.Errorf("drm: invalid session")

// Manager holds all open Sessions, plus the Vault it was constructed with.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	vault    Vault
}

// NewManager constructs a Manager. vault may be nil. The Manager stores it
// but does not consult it; the vault-consult step of get_license_challenge
// uses the vault passed to NewProvider.
func NewManager(vault Vault) *Manager {
	return &Manager{sessions: make(map[string]*Session), vault: vault}
}

// Open allocates a new session and returns its 16-byte random id.
func (m *Manager) Open(service string) (string, error) {
	var id [16]byte
	if _, err := rand.Read(id[:]); err != nil {
		return "", fmt.Errorf("drm: allocate session id: %w", err)
	}
	sid := hex.EncodeToString(id[:])

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sid] = &Session{ID: id, Service: service, Required: map[string]struct{}{}}
	return sid, nil
}

// Close frees all state associated with sessionID.
func (m *Manager) Close(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return ErrInvalidSession
	}
	delete(m.sessions, sessionID)
	return nil
}

func (m *Manager) get(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrInvalidSession
	}
	return s, nil
}

// DeviceProfile describes the device identity presented to the remote
// license endpoint, and whether a null certificate should fall back to a
// well-known common-privacy certificate.
type DeviceProfile struct {
	Scheme               string
	CommonPrivacyCert    []byte
	UseCommonPrivacyCert bool
}

// SetServiceCertificate stores the optional service certificate. If cert is
// nil and profile requests the common-privacy-cert fallback, that
// certificate is installed instead.
func (m *Manager) SetServiceCertificate(sessionID string, cert []byte, profile DeviceProfile) (string, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cert == nil && profile.UseCommonPrivacyCert {
		s.Cert = profile.CommonPrivacyCert
		return "common_privacy_cert_installed", nil
	}
	s.Cert = cert
	return "ok", nil
}

// SetRequiredKIDs normalizes and stores the session's required key ids.
func (m *Manager) SetRequiredKIDs(sessionID string, kids []string) error {
	s, err := m.get(sessionID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Required = make(map[string]struct{}, len(kids))
	for _, k := range kids {
		s.Required[NormalizeKID(k)] = struct{}{}
	}
	return nil
}

// HasCachedKeys reports whether the session already holds cached_keys
// pending a license challenge.
func (m *Manager) HasCachedKeys(sessionID string) (bool, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(s.Cached) > 0, nil
}

// GetKeys returns the session's resolved keys, optionally filtered by kind.
func (m *Manager) GetKeys(sessionID string, kind *KeyKind) ([]Key, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == nil {
		out := make([]Key, len(s.Keys))
		copy(out, s.Keys)
		return out, nil
	}
	var out []Key
	for _, k := range s.Keys {
		if k.Kind == *kind {
			out = append(out, k)
		}
	}
	return out, nil
}

func kidSet(keys []Key) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k.KID] = struct{}{}
	}
	return set
}

func supersetOfRequired(have map[string]struct{}, required map[string]struct{}) bool {
	for kid := range required {
		if _, ok := have[kid]; !ok {
			return false
		}
	}
	return len(required) > 0
}

func base64Encode(b []byte) string { return base64.StdEncoding.EncodeToString(b) }
