package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIssueParseRoundTrip(t *testing.T) {
	token, exp, err := Issue("STU1", "Jane Doe", RoleStudent, "campusqr", "secret", time.Hour)
	require.NoError(t, err)
	require.True(t, exp.After(time.Now()))

	claims, err := Parse(token, "secret", "campusqr")
	require.NoError(t, err)
	require.Equal(t, "STU1", claims.Subject)
	require.Equal(t, "Jane Doe", claims.Name)
	require.Equal(t, RoleStudent, claims.Role)
}

func TestParseRejectsWrongKey(t *testing.T) {
	token, _, err := Issue("STU1", "Jane Doe", RoleStudent, "campusqr", "secret", time.Hour)
	require.NoError(t, err)

	_, err = Parse(token, "other-secret", "campusqr")
	require.Error(t, err)
}

func TestParseRejectsIssuerMismatch(t *testing.T) {
	token, _, err := Issue("STU1", "Jane Doe", RoleStudent, "someone-else", "secret", time.Hour)
	require.NoError(t, err)

	_, err = Parse(token, "secret", "campusqr")
	require.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	token, _, err := Issue("STU1", "Jane Doe", RoleStudent, "campusqr", "secret", -time.Minute)
	require.NoError(t, err)

	_, err = Parse(token, "secret", "campusqr")
	require.Error(t, err)
}

func TestIsStaff(t *testing.T) {
	require.True(t, IsStaff(RoleLecturer))
	require.True(t, IsStaff(RoleAdmin))
	require.False(t, IsStaff(RoleStudent))
	require.False(t, IsStaff(""))
}
