package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	auth "github.com/hirelane/jobboard-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewTokenService(t *testing.T) {
	t.Run("defaults the ttl", func(t *testing.T) {
		service := auth.NewTokenService([]byte(testSigningKey), 0, "issuer", nil)
		assert.Equal(t, auth.DefaultTokenExpiration, service.TTL())
	})

	t.Run("from config", func(t *testing.T) {
		cfg := newTestConfig()
		cfg.ttl = time.Hour

		service := auth.NewTokenServiceFromConfig(cfg)
		assert.Equal(t, time.Hour, service.TTL())
	})
}

func TestTokenServiceIssue(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	service := auth.NewTokenServiceFromConfig(newTestConfig(), auth.WithTokenClock(func() time.Time { return now }))
	accountID := uuid.NewString()

	token, expiresAt, err := service.Issue(accountID, auth.RoleEmployer)
	require.NoError(t, err)
	assert.Equal(t, now.Add(7*24*time.Hour), expiresAt)
	assert.Len(t, strings.Split(token, "."), 3)

	claims, err := service.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, accountID, claims.Subject())
	assert.Equal(t, accountID, claims.AccountID())
	assert.Equal(t, auth.RoleEmployer, claims.Role())
	assert.NotEmpty(t, claims.TokenID())
	assert.True(t, claims.HasRole(auth.RoleAdmin, auth.RoleEmployer))
	assert.False(t, claims.HasRole(auth.RoleJobSeeker))
	assert.Equal(t, expiresAt, claims.Expires().UTC())
	assert.Equal(t, now, claims.IssuedAt().UTC())

	t.Run("unique token ids", func(t *testing.T) {
		second, _, err := service.Issue(accountID, auth.RoleEmployer)
		require.NoError(t, err)

		other, err := service.Verify(second)
		require.NoError(t, err)
		assert.NotEqual(t, claims.TokenID(), other.TokenID())
	})
}

func TestTokenServiceVerifyRejects(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	current := now
	clock := func() time.Time { return current }

	cfg := newTestConfig()
	service := auth.NewTokenServiceFromConfig(cfg, auth.WithTokenClock(clock))
	token, _, err := service.Issue(uuid.NewString(), auth.RoleJobSeeker)
	require.NoError(t, err)

	t.Run("empty", func(t *testing.T) {
		_, err := service.Verify("")
		assert.True(t, auth.Matches(err, auth.ErrInvalidToken))
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := service.Verify("not-a-token")
		assert.True(t, auth.Matches(err, auth.ErrInvalidToken))
		assert.ErrorIs(t, err, jwt.ErrTokenMalformed)
	})

	t.Run("tampered signature", func(t *testing.T) {
		parts := strings.Split(token, ".")
		sig := []byte(parts[2])
		if sig[0] == 'A' {
			sig[0] = 'B'
		} else {
			sig[0] = 'A'
		}
		_, err := service.Verify(parts[0] + "." + parts[1] + "." + string(sig))
		assert.True(t, auth.Matches(err, auth.ErrInvalidToken))
	})

	t.Run("other key", func(t *testing.T) {
		otherCfg := newTestConfig()
		otherCfg.signingKey = "another-signing-key-0123456789abcdef"
		other := auth.NewTokenServiceFromConfig(otherCfg, auth.WithTokenClock(clock))

		_, err := other.Verify(token)
		assert.True(t, auth.Matches(err, auth.ErrInvalidToken))
	})

	t.Run("wrong issuer", func(t *testing.T) {
		otherCfg := newTestConfig()
		otherCfg.issuer = "someone-else"
		other := auth.NewTokenServiceFromConfig(otherCfg, auth.WithTokenClock(clock))

		_, err := other.Verify(token)
		assert.True(t, auth.Matches(err, auth.ErrInvalidToken))
	})

	t.Run("wrong audience", func(t *testing.T) {
		otherCfg := newTestConfig()
		otherCfg.audience = []string{"admin-panel"}
		other := auth.NewTokenServiceFromConfig(otherCfg, auth.WithTokenClock(clock))

		_, err := other.Verify(token)
		assert.True(t, auth.Matches(err, auth.ErrInvalidToken))
	})

	t.Run("alg none", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"sub": uuid.NewString(),
			"iss": cfg.issuer,
			"aud": cfg.audience,
			"exp": now.Add(time.Hour).Unix(),
		})
		raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = service.Verify(raw)
		assert.True(t, auth.Matches(err, auth.ErrInvalidToken))
	})

	t.Run("missing expiry", func(t *testing.T) {
		claims := &auth.JWTClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:  uuid.NewString(),
				Issuer:   cfg.issuer,
				Audience: cfg.audience,
			},
		}
		raw, err := service.SignClaims(claims)
		require.NoError(t, err)

		_, err = service.Verify(raw)
		assert.True(t, auth.Matches(err, auth.ErrInvalidToken))
	})

	t.Run("expired", func(t *testing.T) {
		current = now.Add(cfg.ttl + time.Second)
		defer func() { current = now }()

		_, err := service.Verify(token)
		assert.True(t, auth.Matches(err, auth.ErrInvalidToken))
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})
}

func TestTokenServiceLogsVerificationCause(t *testing.T) {
	logger := &MockLogger{}
	logger.On("Debug", "token verification failed: %v", mock.Anything).Once()

	service := auth.NewTokenServiceFromConfig(newTestConfig(), auth.WithTokenLogger(logger))

	_, err := service.Verify("garbage.token.value")
	assert.True(t, auth.Matches(err, auth.ErrInvalidToken))
	logger.AssertExpectations(t)
}

func TestTokenServiceSignClaimsRejectsNil(t *testing.T) {
	service := auth.NewTokenServiceFromConfig(newTestConfig())
	_, err := service.SignClaims(nil)
	assert.Error(t, err)
}
