package testutil

import (
	"net/http"

	id "pharmatrace/pkg/domain"
	"pharmatrace/pkg/requestcontext"
)

// WithOrg stamps the request context the way the auth middleware would for an
// authenticated organization. An unparseable org ID is silently ignored.
func WithOrg(req *http.Request, orgID, role string) *http.Request {
	ctx := req.Context()
	if parsed, err := id.ParseOrgID(orgID); err == nil {
		ctx = requestcontext.WithOrgID(ctx, parsed)
	}
	if role != "" {
		ctx = requestcontext.WithOrgRole(ctx, role)
	}
	return req.WithContext(ctx)
}

// WithRequestID stamps a request ID onto the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// WithScannerDevice stamps a scanner device class onto the request context.
func WithScannerDevice(req *http.Request, device string) *http.Request {
	return req.WithContext(requestcontext.WithScannerDevice(req.Context(), device))
}
