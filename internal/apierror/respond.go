// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package apierror

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/vinefeeder/envied/internal/log"
)

// envelope is the wire shape of an error response.
type envelope struct {
	Status    string         `json:"status"`
	ErrorCode Code           `json:"error_code"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Retryable *bool          `json:"retryable,omitempty"`
	DebugInfo map[string]any `json:"debug_info,omitempty"`
}

// Write serializes err as a JSON error envelope and writes it to w.
// Non-*Error values are categorized first. When debugMode is set, the
// original error type is included under debug_info; extraDebugInfo is
// merged in alongside it.
func Write(w http.ResponseWriter, r *http.Request, err error, debugMode bool, extraDebugInfo map[string]any) {
	ae, ok := err.(*Error)
	if !ok {
		ae = Categorize(err, nil)
	}

	env := envelope{
		Status:    "error",
		ErrorCode: ae.Code,
		Message:   ae.Message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Details:   ae.Details,
	}
	if ae.Retryable {
		retryable := true
		env.Retryable = &retryable
	}
	if r != nil {
		env.RequestID = log.RequestIDFromContext(r.Context())
	}
	if debugMode {
		env.DebugInfo = map[string]any{"exception_type": errorTypeName(err)}
		for k, v := range extraDebugInfo {
			env.DebugInfo[k] = v
		}
	}

	w.Header().Set("Content-Type", "application/json")
	status := ae.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func errorTypeName(err error) string {
	if ae, ok := err.(*Error); ok {
		return string(ae.Code)
	}
	return "error"
}
