package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func newTestService(t *testing.T, secret string, clock *fakeClock) *Service {
	t.Helper()
	svc, err := New(Config{Secret: secret, TTL: time.Hour, Now: clock.Now})
	require.NoError(t, err)
	return svc
}

func TestNew_RequiresSecret(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNew_DefaultTTL(t *testing.T) {
	svc, err := New(Config{Secret: "s"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, svc.TTL())
}

func TestIssueAndValidate(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	svc := newTestService(t, "super-secret", clock)

	tok, err := svc.Issue(1, "alice")
	require.NoError(t, err)

	claims, err := svc.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "1", claims.Subject)
	assert.True(t, claims.ExpiresAt.Time.Equal(clock.t.Add(time.Hour)))
	assert.True(t, claims.IssuedAt.Time.Equal(clock.t))
}

func TestValidate_Expired(t *testing.T) {
	issuedAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: issuedAt}
	svc := newTestService(t, "super-secret", clock)

	tok, err := svc.Issue(7, "bob")
	require.NoError(t, err)

	clock.t = issuedAt.Add(time.Hour - time.Second)
	_, err = svc.Validate(tok)
	require.NoError(t, err, "token must still be valid just before expiry")

	clock.t = issuedAt.Add(time.Hour + time.Second)
	_, err = svc.Validate(tok)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestValidate_ExpiresExactlyAtExpiry(t *testing.T) {
	issuedAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: issuedAt}
	svc := newTestService(t, "super-secret", clock)

	tok, err := svc.Issue(7, "bob")
	require.NoError(t, err)

	clock.t = issuedAt.Add(time.Hour)
	_, err = svc.Validate(tok)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestValidate_WrongSecret(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	signer := newTestService(t, "right-secret", clock)
	verifier := newTestService(t, "wrong-secret", clock)

	tok, err := signer.Issue(2, "carol")
	require.NoError(t, err)

	_, err = verifier.Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestValidate_TamperedPayload(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	svc := newTestService(t, "super-secret", clock)

	tok, err := svc.Issue(2, "carol")
	require.NoError(t, err)
	other, err := svc.Issue(3, "mallory")
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	otherParts := strings.Split(other, ".")
	forged := parts[0] + "." + otherParts[1] + "." + parts[2]

	_, err = svc.Validate(forged)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestValidate_SignatureCheckedBeforeExpiry(t *testing.T) {
	issuedAt := time.Now()
	clock := &fakeClock{t: issuedAt}
	signer := newTestService(t, "right-secret", clock)
	verifier := newTestService(t, "wrong-secret", clock)

	tok, err := signer.Issue(2, "carol")
	require.NoError(t, err)

	clock.t = issuedAt.Add(2 * time.Hour)
	_, err = verifier.Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestValidate_RejectsOtherAlgorithms(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	svc := newTestService(t, "super-secret", clock)

	claims := Claims{
		UserID:   1,
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("super-secret"))
	require.NoError(t, err)

	_, err = svc.Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestValidate_Malformed(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	svc := newTestService(t, "super-secret", clock)

	for _, tok := range []string{"", "not.a.jwt", "abc", "a.b.c.d"} {
		_, err := svc.Validate(tok)
		assert.ErrorIs(t, err, ErrMalformed, "token %q", tok)

		var tokErr *Error
		assert.True(t, errors.As(err, &tokErr))
	}
}

func TestValidate_MissingUserID(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	svc := newTestService(t, "super-secret", clock)

	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour))}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("super-secret"))
	require.NoError(t, err)

	_, err = svc.Validate(tok)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestValidate_MissingExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	svc := newTestService(t, "super-secret", clock)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: 1, Username: "alice"}).
		SignedString([]byte("super-secret"))
	require.NoError(t, err)

	_, err = svc.Validate(tok)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrExpired))
}
