// SPDX-License-Identifier: MIT

// Package telemetry provides OpenTelemetry tracing utilities for the envied application.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Job attributes
	JobIDKey       = "job.id"
	JobServiceKey  = "job.service"
	JobStatusKey   = "job.status"
	JobDurationKey = "job.duration_ms"

	// DRM attributes
	DRMSessionIDKey = "drm.session_id"
	DRMServiceKey   = "drm.service"
	DRMKeyCountKey  = "drm.key_count"

	// Cache attributes
	CacheKeyKey = "cache.key"
	CacheHitKey = "cache.hit"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// JobAttributes creates job-related span attributes.
func JobAttributes(jobID, service, status string, durationMS int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobIDKey, jobID),
		attribute.String(JobServiceKey, service),
		attribute.String(JobStatusKey, status),
		attribute.Int64(JobDurationKey, durationMS),
	}
}

// DRMAttributes creates DRM-session-related span attributes.
func DRMAttributes(sessionID, service string, keyCount int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(DRMSessionIDKey, sessionID),
		attribute.String(DRMServiceKey, service),
		attribute.Int(DRMKeyCountKey, keyCount),
	}
}

// CacheAttributes creates cache-lookup span attributes.
func CacheAttributes(key string, hit bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(CacheKeyKey, key),
		attribute.Bool(CacheHitKey, hit),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
