// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package session manages short-lived, signed service sessions: a per-
// adapter credential handed to the worker subprocess so it can
// authenticate with an upstream service without the parent re-running a
// full login flow on every job.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const clockSkew = 5 * time.Minute

// defaultRefreshThresholdRatio is the fraction of a session's TTL that must
// remain before Refresh will reuse the existing token instead of minting a
// new one: below this remaining fraction, Refresh re-mints.
const defaultRefreshThresholdRatio = 0.10

// Claims is the signed payload minted for one service session.
type Claims struct {
	Service string `json:"service"`
	jwt.RegisteredClaims
}

// Manager signs and refreshes service session tokens, supporting
// zero-downtime key rotation: new tokens are always signed with the
// primary key, but verification of an existing token falls back through
// prior keys in order.
type Manager struct {
	issuer       string
	ttl          time.Duration
	refreshBelow time.Duration
	primaryKey   []byte
	fallbackKeys [][]byte
}

// NewManager constructs a Manager. fallbackKeys are tried, in order, when
// verifying a token that the primary key cannot validate — this allows a
// key rotation to roll forward without invalidating sessions signed under
// the previous key. Refresh re-mints once a token's remaining lifetime
// drops below defaultRefreshThresholdRatio (10%) of ttl; use
// SetRefreshThreshold to override.
func NewManager(issuer string, ttl time.Duration, primaryKey []byte, fallbackKeys ...[]byte) *Manager {
	return &Manager{
		issuer:       issuer,
		ttl:          ttl,
		refreshBelow: time.Duration(float64(ttl) * defaultRefreshThresholdRatio),
		primaryKey:   primaryKey,
		fallbackKeys: fallbackKeys,
	}
}

// SetRefreshThreshold overrides the remaining-lifetime threshold below
// which Refresh re-mints a token.
func (m *Manager) SetRefreshThreshold(d time.Duration) {
	m.refreshBelow = d
}

// Mint signs a new session token for service.
func (m *Manager) Mint(service string) (string, error) {
	now := time.Now()
	claims := Claims{
		Service: service,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.primaryKey)
}

// Refresh validates tokenStr and, if its remaining lifetime has dropped
// below the configured threshold, mints a fresh token for the same service
// with a renewed expiry. Otherwise it returns tokenStr unchanged.
func (m *Manager) Refresh(tokenStr string) (string, error) {
	claims, err := m.Validate(tokenStr)
	if err != nil {
		return "", err
	}
	if time.Until(claims.ExpiresAt.Time) > m.refreshBelow {
		return tokenStr, nil
	}
	return m.Mint(claims.Service)
}

// Validate parses and strictly validates tokenStr: alg:none is rejected,
// exp and iat must be present, iat must not be in the future beyond the
// allowed clock skew, and iss must match. Verification tries the primary
// key first, then each fallback key in order.
func (m *Manager) Validate(tokenStr string) (*Claims, error) {
	keys := append([][]byte{m.primaryKey}, m.fallbackKeys...)

	var lastErr error
	for _, key := range keys {
		claims, err := m.parseWithKey(tokenStr, key)
		if err == nil {
			return claims, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (m *Manager) parseWithKey(tokenStr string, key []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("session: unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	}, jwt.WithIssuedAt(), jwt.WithIssuer(m.issuer))
	if err != nil {
		return nil, fmt.Errorf("session: parse failed: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("session: invalid claims")
	}
	if claims.ExpiresAt == nil {
		return nil, errors.New("session: missing exp claim")
	}
	if claims.IssuedAt == nil {
		return nil, errors.New("session: missing iat claim")
	}
	if time.Until(claims.IssuedAt.Time) > clockSkew {
		return nil, fmt.Errorf("session: iat %v in the future exceeds skew %v", time.Until(claims.IssuedAt.Time), clockSkew)
	}
	if claims.Issuer != m.issuer {
		return nil, fmt.Errorf("session: issuer mismatch: got %q, want %q", claims.Issuer, m.issuer)
	}

	return claims, nil
}
