// Package auth authenticates API callers. Tokens are minted by the platform's
// identity layer and carry the caller's DID plus a role; this middleware
// validates them and populates the request context for downstream handlers.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "attestor/pkg/domain"
	"attestor/pkg/requestcontext"
)

// TokenValidator defines the interface for validating access tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*TokenClaims, error)
}

// TokenRevocationChecker defines the interface for checking if tokens are revoked.
type TokenRevocationChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// TokenClaims represents the claims we expect from the token validator.
type TokenClaims struct {
	DID  string
	Role string
	JTI  string // token ID for revocation tracking
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// revocationResult represents the outcome of a token revocation check.
type revocationResult int

const (
	revocationOK         revocationResult = iota // Token is valid, not revoked
	revocationMissingJTI                         // Token missing required JTI claim
	revocationRevoked                            // Token has been revoked
	revocationError                              // Error checking revocation status
)

// checkRevocation verifies that a token has not been revoked.
func checkRevocation(ctx context.Context, checker TokenRevocationChecker, jti string, logger *slog.Logger) revocationResult {
	if checker == nil {
		return revocationOK
	}

	if jti == "" {
		logger.WarnContext(ctx, "unauthorized access - missing token jti",
			"request_id", requestcontext.RequestID(ctx),
		)
		return revocationMissingJTI
	}

	revoked, err := checker.IsTokenRevoked(ctx, jti)
	if err != nil {
		logger.ErrorContext(ctx, "failed to check token revocation",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return revocationError
	}

	if revoked {
		logger.WarnContext(ctx, "unauthorized access - token revoked",
			"jti", jti,
			"request_id", requestcontext.RequestID(ctx),
		)
		return revocationRevoked
	}

	return revocationOK
}

// parseClaims converts the string DID and role from token claims to typed values.
func parseClaims(claims *TokenClaims) (id.DID, requestcontext.Role, error) {
	did, err := id.ParseDID(claims.DID)
	if err != nil {
		return "", "", fmt.Errorf("invalid did: %w", err)
	}

	role := requestcontext.Role(claims.Role)
	switch role {
	case requestcontext.RoleIssuer, requestcontext.RoleHolder, requestcontext.RoleVerifier:
	default:
		return "", "", fmt.Errorf("unknown role %q", claims.Role)
	}

	return did, role, nil
}

// RequireAuth returns middleware that validates access tokens and populates
// the context with the caller's DID and role. It validates the token, checks
// revocation status, and stores typed values in context.
func RequireAuth(validator TokenValidator, revocationChecker TokenRevocationChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")

			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			switch checkRevocation(ctx, revocationChecker, claims.JTI, logger) {
			case revocationMissingJTI, revocationRevoked:
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Token has been revoked")
				return
			case revocationError:
				writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to validate token")
				return
			}

			did, role, err := parseClaims(claims)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed token claims",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithCallerDID(ctx, did)
			ctx = requestcontext.WithCallerRole(ctx, role)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth behaves like RequireAuth for requests that carry a bearer
// token, and lets anonymous requests through untouched. Verification is open
// to anonymous callers, so its routes mount this instead of RequireAuth.
func OptionalAuth(validator TokenValidator, revocationChecker TokenRevocationChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	required := RequireAuth(validator, revocationChecker, logger)
	return func(next http.Handler) http.Handler {
		guarded := required(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			guarded.ServeHTTP(w, r)
		})
	}
}
