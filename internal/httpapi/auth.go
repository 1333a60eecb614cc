// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package httpapi

import (
	"net/http"

	"github.com/vinefeeder/envied/internal/apierror"
	"github.com/vinefeeder/envied/internal/auth"
	"github.com/vinefeeder/envied/internal/log"
)

// RequireToken builds middleware enforcing a bearer API token against
// expectedToken. An empty expectedToken disables enforcement (local/dev
// mode), matching the teacher's permissive-default convention. On success it
// attaches the resolved auth.Principal to the request context so handlers
// downstream (handleDownload, in particular) can attribute a submitted job
// to its caller.
func RequireToken(expectedToken string, allowQueryToken bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expectedToken == "" {
				next.ServeHTTP(w, r)
				return
			}
			token := auth.ExtractToken(r, allowQueryToken)
			if !auth.AuthorizeToken(token, expectedToken) {
				apierror.Write(w, r, apierror.New(apierror.CodeAuthRequired, "missing or invalid API token", nil, false, 0), false, nil)
				return
			}
			principal := auth.NewPrincipal(token, "", nil)
			ctx := auth.ContextWithPrincipal(r.Context(), principal)
			ctx = log.ContextWithPrincipalID(ctx, principal.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
