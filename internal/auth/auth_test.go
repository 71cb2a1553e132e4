package auth

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miravex/cinerec/internal/config"
)

func newTestService(ttl time.Duration) *Service {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return NewService(&config.AuthConfig{
		JWTSecret: "test-secret",
		TokenTTL:  ttl,
	}, logger, nil)
}

func TestService_TokenRoundTrip(t *testing.T) {
	service := newTestService(time.Hour)

	token, err := service.GenerateToken("user-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "github.com/miravex/cinerec", claims.Issuer)
}

func TestService_ExpiredToken(t *testing.T) {
	service := newTestService(-time.Minute)

	token, err := service.GenerateToken("user-1")
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.Error(t, err)
}

func TestService_WrongSecret(t *testing.T) {
	issuer := newTestService(time.Hour)
	token, err := issuer.GenerateToken("user-1")
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	verifier := NewService(&config.AuthConfig{
		JWTSecret: "different-secret",
		TokenTTL:  time.Hour,
	}, logger, nil)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestService_GarbageToken(t *testing.T) {
	service := newTestService(time.Hour)

	_, err := service.ValidateToken("not-a-token")
	assert.Error(t, err)
}
