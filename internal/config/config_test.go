package config

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://app@localhost:5432/licenses?sslmode=disable")
	t.Setenv("DEV_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.AdminSessionTTL)
	assert.Equal(t, 14, cfg.TrialDays)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.False(t, cfg.IsProduction())

	key, err := cfg.SigningKey()
	require.NoError(t, err)
	assert.Nil(t, key)
}

func TestLoad_requiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DEV_MODE", "true")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_requiresSigningKeyOutsideDevMode(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/licenses")
	t.Setenv("DEV_MODE", "false")
	t.Setenv("LICENSE_SIGNING_KEY", "")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LICENSE_SIGNING_KEY")
}

func TestLoad_signingKey(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	t.Setenv("DATABASE_URL", "postgres://localhost/licenses")
	t.Setenv("LICENSE_SIGNING_KEY", base64.StdEncoding.EncodeToString(seed))

	cfg, err := Load()
	require.NoError(t, err)
	key, err := cfg.SigningKey()
	require.NoError(t, err)
	assert.Equal(t, ed25519.NewKeyFromSeed(seed), key)

	t.Setenv("LICENSE_SIGNING_KEY", base64.StdEncoding.EncodeToString([]byte("short")))
	_, err = Load()
	require.Error(t, err)
}

func TestLoadClient_verifyKey(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	t.Setenv("LICENSE_PUBLIC_KEY", base64.StdEncoding.EncodeToString(pub))
	t.Setenv("LICENSE_SERVER_URL", "")

	cfg, err := LoadClient()
	require.NoError(t, err)
	got, err := cfg.VerifyKey()
	require.NoError(t, err)
	assert.Equal(t, pub, got)
}
