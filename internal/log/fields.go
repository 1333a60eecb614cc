// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"
	FieldJobID         = "job_id"
	FieldSessionID     = "session_id"
	FieldPrincipal     = "principal"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Job fields
	FieldService   = "service"
	FieldTitleID   = "title_id"
	FieldWorkerPID = "worker_pid"
	FieldExitCode  = "exit_code"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath     = "path"
	FieldCacheKey = "cache_key"
)
