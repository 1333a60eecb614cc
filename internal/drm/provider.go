// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package drm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vinefeeder/envied/internal/apierror"
)

// AuthStrategy identifies how credentials are attached to an outbound
// request.
type AuthStrategy string

const (
	AuthHeader AuthStrategy = "header"
	AuthBearer AuthStrategy = "bearer"
	AuthBasic  AuthStrategy = "basic"
	AuthQuery  AuthStrategy = "query"
	AuthBody   AuthStrategy = "body"
)

// AuthConfig configures one outbound auth strategy.
type AuthConfig struct {
	Strategy   AuthStrategy
	HeaderName string
	Value      string
	Username   string
	Password   string
	QueryParam string
}

// Condition is a tiny expression `field op value` evaluated against a
// request/response parameter map.
type Condition struct {
	Field string
	Op    string // "==", "!=", "== null", "!= null", "exists"
	Value any
}

func (c Condition) eval(params map[string]any) bool {
	v, present := params[c.Field]
	switch c.Op {
	case "exists":
		return present
	case "== null":
		return !present || v == nil
	case "!= null":
		return present && v != nil
	case "==":
		return present && fmt.Sprint(v) == fmt.Sprint(c.Value)
	case "!=":
		return !present || fmt.Sprint(v) != fmt.Sprint(c.Value)
	default:
		return false
	}
}

// Transform names one of the fixed field transforms applied during
// request/response shaping.
type Transform string

const (
	TransformBase64Encode  Transform = "base64_encode"
	TransformBase64Decode  Transform = "base64_decode"
	TransformHexEncode     Transform = "hex_encode"
	TransformHexDecode     Transform = "hex_decode"
	TransformJSONStringify Transform = "json_stringify"
	TransformJSONParse     Transform = "json_parse"
	TransformParseKeyStr   Transform = "parse_key_string"
)

// ConditionalParam adds a static value to the request body when its
// condition evaluates true against the base parameters.
type ConditionalParam struct {
	Condition Condition
	Field     string
	Value     any
}

// Endpoint configures one remote HTTP endpoint (method, path, timeout).
type Endpoint struct {
	Method  string
	Path    string
	Timeout time.Duration
}

// RequestMapping describes how the outbound request body is built, in
// the fixed seven-step order the licensing algorithm applies it in.
type RequestMapping struct {
	Rename      map[string]string // old key -> new key
	Static      map[string]any
	Conditional []ConditionalParam
	Transforms  map[string]Transform // field -> transform
	Group       map[string][]string  // nested object name -> field list
	Exclude     []string
}

// ResponseMapping describes how the response body is read: dotted-path
// field locations, per-field transforms, an ordered response-type
// classifier, and an AND-ed success condition list.
type ResponseMapping struct {
	Fields        map[string]string // logical name -> dotted path
	Transforms    map[string]Transform
	ResponseTypes []ResponseTypeRule
	SuccessFields []string // all must be present/truthy
	ErrorFields   []string // concatenated into the failure message
}

// ResponseTypeRule classifies a parsed response as one of "cached_keys" or
// "license_required" by evaluating Condition against the flattened
// response fields.
type ResponseTypeRule struct {
	Type      string
	Condition Condition
}

// Config is the full per-provider configuration, mirroring a highly
// configurable remote CDM client driven entirely by data.
type Config struct {
	Host            string
	ServiceName     string
	Scheme          string
	Device          DeviceProfile
	Auth            AuthConfig
	GetRequest      Endpoint
	DecryptResponse Endpoint
	Request         RequestMapping
	Response        ResponseMapping
	DefaultTimeout  time.Duration
	// RequestsPerSecond throttles outbound license requests to this
	// provider. Zero disables throttling.
	RequestsPerSecond float64
}

// Provider drives the remote license endpoints for one configured DRM
// service.
type Provider struct {
	cfg     Config
	client  *http.Client
	vault   Vault
	limiter *rate.Limiter
}

// NewProvider constructs a Provider bound to cfg, using vault (may be nil)
// for key-source merging.
func NewProvider(cfg Config, vault Vault) *Provider {
	timeout := cfg.DefaultTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Provider{cfg: cfg, client: &http.Client{Timeout: timeout}, vault: vault, limiter: limiter}
}

// GetLicenseChallenge implements the get_license_challenge algorithm: it
// consults the vault first, then the remote provider, merging key sources
// without duplication and returning an empty challenge when no license
// negotiation is required.
func (p *Provider) GetLicenseChallenge(ctx context.Context, s *Session, pssh []byte, licenseType string, privacyMode bool) ([]byte, error) {
	s.PSSH = pssh
	s.InitData = base64Encode(pssh)

	if p.vault != nil && len(s.Required) > 0 {
		var vaultKeys []Key
		for kid := range s.Required {
			if keyBytes, ok := p.vault.GetKey(s.Service, kid); ok && nonZero(keyBytes) {
				vaultKeys = append(vaultKeys, Key{KID: kid, Key: keyBytes, Kind: KindContent})
			}
		}
		s.VaultKeys = vaultKeys
		if supersetOfRequired(kidSet(vaultKeys), s.Required) {
			s.Keys = vaultKeys
			return nil, nil
		}
	}

	base := map[string]any{
		"scheme":    p.cfg.Scheme,
		"init_data": s.InitData,
		"service":   p.cfg.ServiceName,
	}
	if s.Cert != nil {
		base["certificate"] = base64Encode(s.Cert)
	}

	body, err := buildRequest(base, p.cfg.Request)
	if err != nil {
		return nil, apierror.New(apierror.CodeDRMError, fmt.Sprintf("build get_request body: %v", err), nil, false, 0)
	}

	resp, err := p.post(ctx, p.cfg.GetRequest, body)
	if err != nil {
		return nil, err
	}

	parsed, err := parseResponse(resp, p.cfg.Response)
	if err != nil {
		return nil, err
	}

	kind := classifyResponse(parsed, p.cfg.Response.ResponseTypes)

	switch kind {
	case "cached_keys":
		cached, err := extractKeys(parsed, "cached_keys")
		if err != nil {
			return nil, err
		}
		allAvailable := append(append([]Key{}, s.VaultKeys...), cached...)
		if len(s.Required) > 0 && supersetOfRequired(kidSet(allAvailable), s.Required) {
			s.Keys = allAvailable
			return nil, nil
		}
		s.Cached = cached
		return nil, apierror.New(apierror.CodeDRMError, "cached_keys incomplete and no challenge offered", nil, false, 0)
	case "license_required":
		challenge, sessionID, err := extractChallenge(parsed)
		if err != nil {
			return nil, err
		}
		s.Challenge = challenge
		s.RemoteSessionID = sessionID
		return challenge, nil
	default:
		return nil, apierror.New(apierror.CodeDRMError, "unrecognized response shape from get_request", nil, false, 0)
	}
}

// ParseLicense implements the parse_license algorithm: it exchanges the
// license message for keys, merges them with any vault/cached keys without
// duplication, persists content keys into the vault, and clears
// intermediate state.
func (p *Provider) ParseLicense(ctx context.Context, s *Session, licenseMessage []byte) error {
	if len(s.Keys) > 0 && len(s.Cached) == 0 {
		return nil
	}
	if s.Challenge == nil || s.RemoteSessionID == "" {
		return apierror.New(apierror.CodeDRMError, "parse_license called without an outstanding challenge", nil, false, 0)
	}

	body := map[string]any{
		"scheme":            p.cfg.Scheme,
		"remote_session_id": s.RemoteSessionID,
		"init_data":         s.InitData,
		"challenge":         base64Encode(s.Challenge),
		"license_message":   base64Encode(licenseMessage),
	}

	resp, err := p.post(ctx, p.cfg.DecryptResponse, body)
	if err != nil {
		return err
	}

	parsed, err := parseResponse(resp, p.cfg.Response)
	if err != nil {
		return err
	}

	licenseKeys, err := extractKeys(parsed, "license_keys")
	if err != nil {
		return err
	}

	allKeys := append([]Key{}, s.VaultKeys...)
	allKeys = append(allKeys, s.Cached...)
	have := kidSet(allKeys)
	for _, lk := range licenseKeys {
		if _, ok := have[lk.KID]; !ok {
			allKeys = append(allKeys, lk)
			have[lk.KID] = struct{}{}
		}
	}

	s.Keys = allKeys

	if p.vault != nil {
		var content []Key
		for _, k := range allKeys {
			if k.Kind == KindContent {
				content = append(content, k)
			}
		}
		if len(content) > 0 {
			if err := p.vault.PutKeys(s.Service, content); err != nil {
				return apierror.New(apierror.CodeDRMError, fmt.Sprintf("persist keys to vault: %v", err), nil, false, 0)
			}
		}
	}

	s.Cached = nil
	s.VaultKeys = nil
	return nil
}

func (p *Provider) post(ctx context.Context, ep Endpoint, body map[string]any) (map[string]any, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, apierror.New(apierror.CodeNetworkError, fmt.Sprintf("rate limit wait: %v", err), nil, true, 0)
		}
	}

	if err := applyBodyAuth(body, p.cfg.Auth); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apierror.New(apierror.CodeInternalError, fmt.Sprintf("marshal request body: %v", err), nil, false, 0)
	}

	url := p.cfg.Host + ep.Path
	if p.cfg.Auth.Strategy == AuthQuery {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + p.cfg.Auth.QueryParam + "=" + p.cfg.Auth.Value
	}

	method := ep.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, apierror.New(apierror.CodeInternalError, fmt.Sprintf("build request: %v", err), nil, false, 0)
	}
	req.Header.Set("Content-Type", "application/json")
	applyHeaderAuth(req, p.cfg.Auth)

	client := p.client
	if ep.Timeout > 0 {
		c := *p.client
		c.Timeout = ep.Timeout
		client = &c
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, apierror.New(apierror.CodeNetworkError, fmt.Sprintf("drm request failed: %v", err), nil, true, 0)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err.Error() != "EOF" {
		return nil, apierror.New(apierror.CodeDRMError, fmt.Sprintf("decode drm response: %v", err), nil, false, 0)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apierror.New(apierror.CodeDRMError, fmt.Sprintf("drm endpoint returned status %d", resp.StatusCode), out, false, 0)
	}

	return out, nil
}

func nonZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return true
		}
	}
	return len(b) > 0
}

func applyHeaderAuth(req *http.Request, auth AuthConfig) {
	switch auth.Strategy {
	case AuthHeader:
		if auth.HeaderName != "" {
			req.Header.Set(auth.HeaderName, auth.Value)
		}
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+auth.Value)
	case AuthBasic:
		req.SetBasicAuth(auth.Username, auth.Password)
	}
}

func applyBodyAuth(body map[string]any, auth AuthConfig) error {
	if auth.Strategy == AuthBody {
		body[auth.HeaderName] = auth.Value
	}
	return nil
}
