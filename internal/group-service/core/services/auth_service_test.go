package services

import (
	"testing"
	"time"

	"group-ride/internal/group-service/core/myerrors"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidateToken(t *testing.T) {
	auth := NewAuthService("secret")

	token, err := auth.IssueToken("rider-7", time.Hour)
	require.NoError(t, err)

	userID, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "rider-7", userID)

	userID, err = auth.ValidateToken("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "rider-7", userID)
}

func TestValidateTokenRejects(t *testing.T) {
	auth := NewAuthService("secret")
	expired, err := auth.IssueToken("rider-7", -time.Minute)
	require.NoError(t, err)
	foreign, err := NewAuthService("other").IssueToken("rider-7", time.Hour)
	require.NoError(t, err)
	driver, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "rider-7", "role": "DRIVER",
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	anonymous, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": RiderRole,
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":      "",
		"garbage":    "not.a.token",
		"expired":    expired,
		"wrong key":  foreign,
		"wrong role": driver,
		"no user id": anonymous,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := auth.ValidateToken(token)
			assert.ErrorIs(t, err, myerrors.ErrInvalidToken)
		})
	}
}

func TestValidateAdmin(t *testing.T) {
	auth := NewAuthService("secret")

	admin, err := auth.IssueAdminToken("ops-1", time.Hour)
	require.NoError(t, err)
	rider, err := auth.IssueToken("rider-7", time.Hour)
	require.NoError(t, err)

	userID, err := auth.ValidateAdmin("Bearer " + admin)
	require.NoError(t, err)
	assert.Equal(t, "ops-1", userID)

	_, err = auth.ValidateAdmin(rider)
	assert.ErrorIs(t, err, myerrors.ErrNotAdmin)

	_, err = auth.ValidateToken(admin)
	assert.ErrorIs(t, err, myerrors.ErrInvalidToken)

	_, err = auth.ValidateAdmin("garbage")
	assert.ErrorIs(t, err, myerrors.ErrInvalidToken)
}
