package tokens

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Secret:     []byte("test-secret"),
		Issuer:     "taskify-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	})
	require.NoError(t, err)
	return m
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(Config{AccessTTL: time.Minute, RefreshTTL: time.Hour})
	assert.Error(t, err)

	_, err = NewManager(Config{Secret: []byte("s"), AccessTTL: 0, RefreshTTL: time.Hour})
	assert.Error(t, err)
}

func TestIssuePair_RoundTrip(t *testing.T) {
	m := newTestManager(t)
	userID := uuid.Must(uuid.NewV4())

	pair, err := m.IssuePair(userID, "a@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, pair.Access, pair.Refresh)
	assert.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))

	access, err := m.ParseAccess(pair.Access)
	require.NoError(t, err)
	id, err := access.UserID()
	require.NoError(t, err)
	assert.Equal(t, userID, id)
	assert.Equal(t, "a@x.com", access.Email)
	assert.Equal(t, TypeAccess, access.Type)
	assert.Equal(t, "taskify-test", access.Issuer)

	refresh, err := m.ParseRefresh(pair.Refresh)
	require.NoError(t, err)
	assert.Equal(t, TypeRefresh, refresh.Type)
	assert.NotEmpty(t, refresh.ID)
	assert.NotEqual(t, access.ID, refresh.ID)
}

func TestParse_RejectsWrongType(t *testing.T) {
	m := newTestManager(t)
	pair, err := m.IssuePair(uuid.Must(uuid.NewV4()), "a@x.com")
	require.NoError(t, err)

	_, err = m.ParseRefresh(pair.Access)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	_, err = m.ParseAccess(pair.Refresh)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestParse_Expired(t *testing.T) {
	m := newTestManager(t)
	issuedAt := time.Now().Add(-time.Hour)
	past := m.WithClock(func() time.Time { return issuedAt })

	token, _, err := past.IssueAccess(uuid.Must(uuid.NewV4()), "a@x.com")
	require.NoError(t, err)

	_, err = m.ParseAccess(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestParse_Malformed(t *testing.T) {
	m := newTestManager(t)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		_, err := m.ParseAccess(token)
		assert.ErrorIs(t, err, ErrTokenMalformed, "token %q", token)
	}
}

func TestParse_TamperedSignature(t *testing.T) {
	m := newTestManager(t)
	token, _, err := m.IssueAccess(uuid.Must(uuid.NewV4()), "a@x.com")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[2] = strings.Repeat("A", len(parts[2]))
	_, err = m.ParseAccess(strings.Join(parts, "."))
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestParse_RejectsOtherSecretAndIssuer(t *testing.T) {
	m := newTestManager(t)

	other, err := NewManager(Config{Secret: []byte("other"), Issuer: "taskify-test", AccessTTL: time.Minute, RefreshTTL: time.Hour})
	require.NoError(t, err)
	token, _, err := other.IssueAccess(uuid.Must(uuid.NewV4()), "a@x.com")
	require.NoError(t, err)
	_, err = m.ParseAccess(token)
	assert.ErrorIs(t, err, ErrTokenMalformed)

	foreign, err := NewManager(Config{Secret: []byte("test-secret"), Issuer: "someone-else", AccessTTL: time.Minute, RefreshTTL: time.Hour})
	require.NoError(t, err)
	token, _, err = foreign.IssueAccess(uuid.Must(uuid.NewV4()), "a@x.com")
	require.NoError(t, err)
	_, err = m.ParseAccess(token)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestParse_RejectsNoneAlgorithm(t *testing.T) {
	m := newTestManager(t)

	claims := Claims{
		Type: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.Must(uuid.NewV4()).String(),
			ID:        "jti",
			Issuer:    "taskify-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = m.ParseAccess(token)
	assert.True(t, errors.Is(err, ErrTokenMalformed))
}
