package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "trivigil/pkg/domainerrors"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService("test-signing-key", "trivigil", "issuer-api")

	token, err := svc.GenerateToken("web-store", time.Minute)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "web-store", claims.Storefront)
	assert.Equal(t, "trivigil", claims.Issuer)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	svc := NewJWTService("test-signing-key", "trivigil", "issuer-api")

	token, err := svc.GenerateToken("web-store", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.True(t, dErrors.Is(err, dErrors.CodeUnauthorized))
	assert.Contains(t, err.Error(), "expired")
}

func TestValidateRejectsWrongKey(t *testing.T) {
	minted := NewJWTService("key-one", "trivigil", "issuer-api")
	verifier := NewJWTService("key-two", "trivigil", "issuer-api")

	token, err := minted.GenerateToken("web-store", time.Minute)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.True(t, dErrors.Is(err, dErrors.CodeUnauthorized))
}

func TestValidateRejectsGarbage(t *testing.T) {
	svc := NewJWTService("test-signing-key", "trivigil", "issuer-api")
	_, err := svc.ValidateToken("not-a-jwt")
	assert.True(t, dErrors.Is(err, dErrors.CodeUnauthorized))
}
