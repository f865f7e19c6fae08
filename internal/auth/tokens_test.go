package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestTokenIssueAndParse(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	issuer := NewTokenIssuer("access-secret", 15*time.Minute, AudienceAccess, c.Now)
	id := uuid.New()

	token, expires, err := issuer.Issue(id)
	require.NoError(t, err)
	assert.Equal(t, c.now.Add(15*time.Minute), expires)

	got, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	var claims jwt.RegisteredClaims
	_, _, err = jwt.NewParser().ParseUnverified(token, &claims)
	require.NoError(t, err)
	assert.Equal(t, id.String(), claims.Subject)
	assert.Equal(t, c.now.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, c.now.Unix(), claims.NotBefore.Unix())
	assert.NotEmpty(t, claims.ID)
}

func TestTokenExpired(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	issuer := NewTokenIssuer("access-secret", time.Minute, AudienceAccess, c.Now)
	token, _, err := issuer.Issue(uuid.New())
	require.NoError(t, err)

	c.now = c.now.Add(2 * time.Minute)
	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenRejections(t *testing.T) {
	access := NewTokenIssuer("access-secret", time.Minute, AudienceAccess, nil)
	refresh := NewTokenIssuer("refresh-secret", time.Hour, AudienceRefresh, nil)
	sameSecretRefresh := NewTokenIssuer("access-secret", time.Hour, AudienceRefresh, nil)

	_, err := access.Parse("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = access.Parse("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	refreshToken, _, err := refresh.Issue(uuid.New())
	require.NoError(t, err)
	_, err = access.Parse(refreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong secret")

	swapped, _, err := sameSecretRefresh.Issue(uuid.New())
	require.NoError(t, err)
	_, err = access.Parse(swapped)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong audience")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		Audience:  jwt.ClaimStrings{AudienceAccess},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = access.Parse(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken, "alg none")

	noSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "not-a-uuid",
		Audience:  jwt.ClaimStrings{AudienceAccess},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := noSubject.SignedString([]byte("access-secret"))
	require.NoError(t, err)
	_, err = access.Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken, "bad subject")
}
