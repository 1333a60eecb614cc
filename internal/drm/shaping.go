// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package drm

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vinefeeder/envied/internal/apierror"
)

// buildRequest applies the seven-step shaping pipeline to base params,
// producing the final outbound request body.
func buildRequest(base map[string]any, m RequestMapping) (map[string]any, error) {
	params := make(map[string]any, len(base))
	for k, v := range base {
		params[k] = v
	}

	// 2. rename keys.
	for oldKey, newKey := range m.Rename {
		if v, ok := params[oldKey]; ok {
			delete(params, oldKey)
			params[newKey] = v
		}
	}

	// 3. static parameters.
	for k, v := range m.Static {
		params[k] = v
	}

	// 4. conditional parameters.
	for _, cp := range m.Conditional {
		if cp.Condition.eval(params) {
			params[cp.Field] = cp.Value
		}
	}

	// 5. per-field transforms.
	for field, t := range m.Transforms {
		v, ok := params[field]
		if !ok {
			continue
		}
		out, err := applyTransform(t, v)
		if err != nil {
			return nil, fmt.Errorf("transform field %q: %w", field, err)
		}
		params[field] = out
	}

	// 6. group fields into nested objects.
	for group, fields := range m.Group {
		nested := map[string]any{}
		for _, f := range fields {
			if v, ok := params[f]; ok {
				nested[f] = v
				delete(params, f)
			}
		}
		params[group] = nested
	}

	// 7. drop excluded keys.
	for _, f := range m.Exclude {
		delete(params, f)
	}

	return params, nil
}

func applyTransform(t Transform, v any) (any, error) {
	switch t {
	case TransformBase64Encode:
		b, err := toBytes(v)
		if err != nil {
			return nil, err
		}
		return base64.StdEncoding.EncodeToString(b), nil
	case TransformBase64Decode:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("base64_decode expects a string")
		}
		return base64.StdEncoding.DecodeString(s)
	case TransformHexEncode:
		b, err := toBytes(v)
		if err != nil {
			return nil, err
		}
		return hex.EncodeToString(b), nil
	case TransformHexDecode:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("hex_decode expects a string")
		}
		return hex.DecodeString(s)
	case TransformJSONStringify:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case TransformJSONParse:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("json_parse expects a string")
		}
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, err
		}
		return out, nil
	case TransformParseKeyStr:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("parse_key_string expects a string")
		}
		return parseKeyString(s), nil
	default:
		return v, nil
	}
}

func toBytes(v any) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		return nil, fmt.Errorf("cannot convert %T to bytes", v)
	}
}

// parseKeyString accepts `kid:key` lines, optionally prefixed with
// `--key `, and returns a []Key of kind Content.
func parseKeyString(s string) []Key {
	var keys []Key
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimPrefix(line, "--key ")
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		kid := NormalizeKID(strings.TrimSpace(parts[0]))
		keyHex := strings.TrimSpace(parts[1])
		keyBytes, err := hex.DecodeString(keyHex)
		if err != nil {
			continue
		}
		keys = append(keys, Key{KID: kid, Key: keyBytes, Kind: KindContent})
	}
	return keys
}

// parseResponse reads the standardized fields out of raw by dotted path,
// applies any configured per-field transforms, and fails with DRM_ERROR
// (carrying the joined ErrorFields text) unless every SuccessFields entry
// is present and truthy.
func parseResponse(raw map[string]any, m ResponseMapping) (map[string]any, error) {
	out := make(map[string]any, len(m.Fields)+len(raw))
	for k, v := range raw {
		out[k] = v
	}
	for name, path := range m.Fields {
		v, ok := dottedGet(raw, path)
		if !ok {
			continue
		}
		if t, ok := m.Transforms[name]; ok {
			transformed, err := applyTransform(t, v)
			if err != nil {
				return nil, apierror.New(apierror.CodeDRMError, fmt.Sprintf("transform response field %q: %v", name, err), nil, false, 0)
			}
			v = transformed
		}
		out[name] = v
	}
	for _, f := range m.SuccessFields {
		if v, ok := out[f]; !ok || v == nil || v == false || v == "" || v == float64(0) {
			var msgs []string
			for _, ef := range m.ErrorFields {
				if ev, ok := out[ef]; ok && ev != nil {
					msgs = append(msgs, fmt.Sprint(ev))
				}
			}
			return nil, apierror.New(apierror.CodeDRMError, fmt.Sprintf("drm response failed success condition %q: %s", f, strings.Join(msgs, "; ")), nil, false, 0)
		}
	}
	return out, nil
}

func dottedGet(m map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = m
	for _, p := range parts {
		asMap, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := asMap[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// classifyResponse evaluates rules in order and returns the first matching
// type, or "" if none match.
func classifyResponse(parsed map[string]any, rules []ResponseTypeRule) string {
	for _, r := range rules {
		if r.Condition.eval(parsed) {
			return r.Type
		}
	}
	return ""
}

// extractKeys reads parsed[field] as a list of {kid, key, type} maps and
// converts them to normalized Keys.
func extractKeys(parsed map[string]any, field string) ([]Key, error) {
	raw, ok := parsed[field]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, apierror.New(apierror.CodeDRMError, fmt.Sprintf("field %q is not a list", field), nil, false, 0)
	}
	var keys []Key
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		kid, _ := entry["kid"].(string)
		keyStr, _ := entry["key"].(string)
		kind, _ := entry["type"].(string)
		if kind == "" {
			kind = string(KindContent)
		}
		keyBytes, err := hex.DecodeString(keyStr)
		if err != nil {
			return nil, apierror.New(apierror.CodeDRMError, fmt.Sprintf("invalid key hex in %q: %v", field, err), nil, false, 0)
		}
		keys = append(keys, Key{KID: NormalizeKID(kid), Key: keyBytes, Kind: KeyKind(strings.ToUpper(kind))})
	}
	return keys, nil
}

// extractChallenge reads the challenge and remote_session_id fields from a
// parsed license_required response.
func extractChallenge(parsed map[string]any) ([]byte, string, error) {
	challengeB64, _ := parsed["challenge"].(string)
	sessionID, _ := parsed["remote_session_id"].(string)
	if challengeB64 == "" || sessionID == "" {
		return nil, "", apierror.New(apierror.CodeDRMError, "license_required response missing challenge or remote_session_id", nil, false, 0)
	}
	challenge, err := base64.StdEncoding.DecodeString(challengeB64)
	if err != nil {
		return nil, "", apierror.New(apierror.CodeDRMError, fmt.Sprintf("decode challenge: %v", err), nil, false, 0)
	}
	return challenge, sessionID, nil
}
