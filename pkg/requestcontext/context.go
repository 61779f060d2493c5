// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// This package defines context keys and getter/setter functions for values that are
// typically set by middleware but consumed by services. By keeping this package free
// of net/http dependencies, services can import only what they need without pulling
// in HTTP-related code.
//
// Usage in services (read values):
//
//	orgID := requestcontext.OrgID(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithOrgID(ctx, orgID)
//	ctx = requestcontext.WithRequestID(ctx, requestID)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithScannerDevice(ctx, "mobile")
package requestcontext

import (
	"context"
	"time"

	id "pharmatrace/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	orgIDKey         struct{}
	orgRoleKey       struct{}
	scannerDeviceKey struct{}
	requestIDKey     struct{}
	requestTimeKey   struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyOrgID         = orgIDKey{}
	ContextKeyOrgRole       = orgRoleKey{}
	ContextKeyScannerDevice = scannerDeviceKey{}
	ContextKeyRequestID     = requestIDKey{}
	ContextKeyRequestTime   = requestTimeKey{}
)

// OrgID retrieves the authenticated caller's organization ID from the context.
// Returns the zero value (nil UUID) if not set.
func OrgID(ctx context.Context) id.OrgID {
	if orgID, ok := ctx.Value(ContextKeyOrgID).(id.OrgID); ok {
		return orgID
	}
	return id.OrgID{}
}

// WithOrgID injects an organization ID into the context.
func WithOrgID(ctx context.Context, orgID id.OrgID) context.Context {
	return context.WithValue(ctx, ContextKeyOrgID, orgID)
}

// OrgRole retrieves the caller's role claim (manufacturer, distributor,
// pharmacy, hospital, regulator) from the context.
func OrgRole(ctx context.Context) string {
	if role, ok := ctx.Value(ContextKeyOrgRole).(string); ok {
		return role
	}
	return ""
}

// WithOrgRole injects a role claim into the context.
func WithOrgRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, ContextKeyOrgRole, role)
}

// ScannerDevice retrieves the device class ("mobile", "desktop", "bot")
// derived from the User-Agent of a verification scan.
func ScannerDevice(ctx context.Context) string {
	if device, ok := ctx.Value(ContextKeyScannerDevice).(string); ok {
		return device
	}
	return ""
}

// WithScannerDevice injects a scanner device class into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithScannerDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, ContextKeyScannerDevice, device)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Service unit tests that don't run the full HTTP middleware chain
//   - Keeping one consistent timestamp across a bulk mint
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
