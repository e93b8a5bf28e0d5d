package jwttoken

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/requestcontext"
)

const testSigningKey = "test-signing-key-at-least-32-bytes!"

func newTestService() *JWTService {
	return NewJWTService(testSigningKey, "https://attestor.example.com", "attestor-api", time.Hour)
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	token, err := svc.GenerateAccessToken(ctx, "did:web:issuer.example.com", requestcontext.RoleIssuer)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "did:web:issuer.example.com", claims.DID)
	assert.Equal(t, string(requestcontext.RoleIssuer), claims.Role)
	assert.Equal(t, "did:web:issuer.example.com", claims.Subject)
	assert.NotEmpty(t, claims.ID, "token should carry a jti")
}

func TestGenerateAccessTokenRejectsEmptyDID(t *testing.T) {
	svc := newTestService()

	_, err := svc.GenerateAccessToken(context.Background(), id.DID(""), requestcontext.RoleHolder)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := NewJWTService(testSigningKey, "https://attestor.example.com", "attestor-api", time.Minute)
	ctx := requestcontext.WithTime(context.Background(), time.Now().Add(-time.Hour))

	token, err := svc.GenerateAccessToken(ctx, "did:web:issuer.example.com", requestcontext.RoleIssuer)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateTokenRejectsWrongKey(t *testing.T) {
	svc := newTestService()
	other := NewJWTService("a-completely-different-signing-key!!", "https://attestor.example.com", "attestor-api", time.Hour)

	token, err := other.GenerateAccessToken(context.Background(), "did:web:issuer.example.com", requestcontext.RoleIssuer)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestValidateTokenRejectsWrongIssuer(t *testing.T) {
	svc := newTestService()
	other := NewJWTService(testSigningKey, "https://evil.example.com", "attestor-api", time.Hour)

	token, err := other.GenerateAccessToken(context.Background(), "did:web:issuer.example.com", requestcontext.RoleIssuer)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestValidateTokenRejectsWrongAlgorithm(t *testing.T) {
	svc := newTestService()

	// Token signed with "none" must never validate, regardless of claims.
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, AccessTokenClaims{
		DID:  "did:web:issuer.example.com",
		Role: "issuer",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://attestor.example.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := newTestService()

	_, err := svc.ValidateToken("not.a.jwt")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
