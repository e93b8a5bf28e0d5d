// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// This package defines context keys and getter/setter functions for values that are
// typically set by middleware but consumed by services. By keeping this package free
// of net/http dependencies, services can import only what they need without pulling
// in HTTP-related code.
//
// Usage in services (read values):
//
//	caller := requestcontext.CallerDID(ctx)
//	requestID := requestcontext.RequestID(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithCallerDID(ctx, did)
//	ctx = requestcontext.WithRequestID(ctx, requestID)
package requestcontext

import (
	"context"
	"time"

	id "attestor/pkg/domain"
)

// Role describes what a caller is entitled to do with credentials.
type Role string

const (
	RoleIssuer   Role = "issuer"
	RoleHolder   Role = "holder"
	RoleVerifier Role = "verifier"
)

// Context key types (unexported for encapsulation).
type (
	callerDIDKey   struct{}
	roleKey        struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyCallerDID   = callerDIDKey{}
	ContextKeyRole        = roleKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// CallerDID retrieves the authenticated caller's DID from the context.
// Returns the zero value if not set.
func CallerDID(ctx context.Context) id.DID {
	if did, ok := ctx.Value(ContextKeyCallerDID).(id.DID); ok {
		return did
	}
	return ""
}

// WithCallerDID injects a caller DID into the context.
func WithCallerDID(ctx context.Context, did id.DID) context.Context {
	return context.WithValue(ctx, ContextKeyCallerDID, did)
}

// CallerRole retrieves the authenticated caller's role from the context.
func CallerRole(ctx context.Context) Role {
	if role, ok := ctx.Value(ContextKeyRole).(Role); ok {
		return role
	}
	return ""
}

// WithCallerRole injects a caller role into the context.
func WithCallerRole(ctx context.Context, role Role) context.Context {
	return context.WithValue(ctx, ContextKeyRole, role)
}

// RequestID retrieves the request correlation ID from the context.
func RequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now returns the request arrival time if set, otherwise the current time.
// Tests inject a fixed time with WithTime to make issuance timestamps deterministic.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a request time into the context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
