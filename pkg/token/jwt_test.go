package token

import (
	"testing"

	"report-intake-go/pkg/errs"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", 1)
	tok, err := m.GenerateToken("auditor", RoleAdmin)
	require.NoError(t, err)

	claims, err := m.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "auditor", claims.Subject)
	assert.True(t, claims.IsAdmin())
}

func TestJWTManager_RejectsForeignSecret(t *testing.T) {
	tok, err := NewJWTManager("other", 1).GenerateToken("u", "USER")
	require.NoError(t, err)

	_, err = NewJWTManager("test-secret", 1).VerifyToken(tok)
	assert.True(t, errs.IsKind(err, errs.PermissionDenied))
}

func TestJWTManager_RejectsExpired(t *testing.T) {
	m := NewJWTManager("test-secret", -1)
	tok, err := m.GenerateToken("u", "USER")
	require.NoError(t, err)

	_, err = m.VerifyToken(tok)
	assert.True(t, errs.IsKind(err, errs.PermissionDenied))
}

func TestJWTManager_RejectsOtherAlgorithm(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u"},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = NewJWTManager("test-secret", 1).VerifyToken(tok)
	assert.Error(t, err)
}

func TestJWTManager_RequiresSubject(t *testing.T) {
	tok, err := NewJWTManager("test-secret", 1).GenerateToken("", "USER")
	require.NoError(t, err)

	_, err = NewJWTManager("test-secret", 1).VerifyToken(tok)
	assert.True(t, errs.IsKind(err, errs.PermissionDenied))
}
