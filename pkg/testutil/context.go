package testutil

import (
	"net/http"
	"time"

	id "vellum/pkg/domain"
	"vellum/pkg/requestcontext"
)

// WithUserID adds a user ID to the request context.
// This simulates what the auth middleware would do for authenticated requests.
// If the userID is not a valid UUID, it will not be added to the context.
func WithUserID(req *http.Request, userID string) *http.Request {
	if parsedUserID, err := id.ParseUserID(userID); err == nil {
		return req.WithContext(requestcontext.WithUserID(req.Context(), parsedUserID))
	}
	return req
}

// WithOrgID adds an organization scope to the request context.
// If the orgID is not a valid UUID, it will not be added to the context.
func WithOrgID(req *http.Request, orgID string) *http.Request {
	if parsedOrgID, err := id.ParseOrgID(orgID); err == nil {
		return req.WithContext(requestcontext.WithOrgID(req.Context(), parsedOrgID))
	}
	return req
}

// WithActor adds both user ID and organization scope to the request context.
// This is the typical state for an authenticated request.
// Invalid IDs are silently ignored.
func WithActor(req *http.Request, userID, orgID string) *http.Request {
	ctx := req.Context()
	if userID != "" {
		if parsedUserID, err := id.ParseUserID(userID); err == nil {
			ctx = requestcontext.WithUserID(ctx, parsedUserID)
		}
	}
	if orgID != "" {
		if parsedOrgID, err := id.ParseOrgID(orgID); err == nil {
			ctx = requestcontext.WithOrgID(ctx, parsedOrgID)
		}
	}
	return req.WithContext(ctx)
}

// WithRequestTime pins the request-scoped clock so handlers under test observe
// a deterministic "now".
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}

// WithRequestID adds a request ID to the request context, as the tracing
// middleware would.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// WithClientMetadata adds client IP and User-Agent to the request context.
func WithClientMetadata(req *http.Request, clientIP, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), clientIP, userAgent))
}
