package auth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/cast-hub-go/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		APISecret:      "0123456789abcdef0123456789abcdef",
		TokenExpirySec: 3600,
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cfg := testConfig()

	token, err := GenerateToken(cfg, "dashboard")
	require.NoError(t, err)

	name, err := VerifyToken(cfg, token)
	require.NoError(t, err)
	require.Equal(t, "dashboard", name)
}

func TestTokenWrongSecret(t *testing.T) {
	cfg := testConfig()

	token, err := GenerateToken(cfg, "dashboard")
	require.NoError(t, err)

	other := cfg
	other.APISecret = "ffffffffffffffffffffffffffffffff"
	_, err = VerifyToken(other, token)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenExpired(t *testing.T) {
	cfg := testConfig()
	cfg.TokenExpirySec = -10

	token, err := GenerateToken(cfg, "dashboard")
	require.NoError(t, err)

	_, err = VerifyToken(cfg, token)
	require.ErrorIs(t, err, ErrTokenExpired)
}
