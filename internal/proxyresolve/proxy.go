// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package proxyresolve resolves the `proxy` download parameter — an
// explicit URI, a provider:country pair, or a bare country code — into a
// concrete proxy URI by querying configured Provider implementations.
package proxyresolve

import (
	"fmt"
	"regexp"
	"strings"
)

// Provider supplies a proxy URI for a given country code.
type Provider interface {
	// Name is the short provider tag used in "provider:country" queries
	// (e.g. "nordvpn").
	Name() string
	// GetProxy returns a proxy URI for country, or ("", false) if this
	// provider has none.
	GetProxy(country string) (string, bool)
}

var bareCountryCode = regexp.MustCompile(`^[a-zA-Z]{2}\d*$`)

// Registry holds the configured Providers, tried in registration order for
// bare-country-code queries.
type Registry struct {
	providers []Provider
	byName    map[string]Provider
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Provider)}
}

// Register adds p to the registry.
func (r *Registry) Register(p Provider) {
	r.providers = append(r.providers, p)
	r.byName[strings.ToLower(p.Name())] = p
}

// Resolve implements the proxy-resolution algorithm described for the
// `proxy` download parameter.
func (r *Registry) Resolve(query string) (string, error) {
	if query == "" {
		return "", nil
	}

	if strings.HasPrefix(query, "http://") || strings.HasPrefix(query, "https://") {
		return query, nil
	}

	if provider, country, ok := strings.Cut(query, ":"); ok {
		p, found := r.byName[strings.ToLower(provider)]
		if !found {
			return "", fmt.Errorf("proxyresolve: unconfigured provider %q", provider)
		}
		uri, ok := p.GetProxy(country)
		if !ok {
			return "", fmt.Errorf("proxyresolve: provider %q has no proxy for country %q", provider, country)
		}
		return uri, nil
	}

	if bareCountryCode.MatchString(query) {
		country := strings.ToLower(query)
		for _, p := range r.providers {
			if uri, ok := p.GetProxy(country); ok {
				return uri, nil
			}
		}
		return "", fmt.Errorf("proxyresolve: no configured provider has a proxy for %q", query)
	}

	return "", fmt.Errorf("proxyresolve: unrecognized proxy specifier %q", query)
}
