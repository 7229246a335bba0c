package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKeyPair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

func TestLicenseToken_signAndVerify(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	_, priv := newKeyPair(t)

	signer := NewLicenseTokenSigner(priv, 7*24*time.Hour, WithClock(clock))
	grant := LicenseGrant{
		LicenseID:  uuid.New(),
		SchoolID:   uuid.New(),
		DeviceID:   "device-1",
		IsTrial:    true,
		IsActive:   true,
		ExpiryDate: now.AddDate(0, 0, 14),
	}
	token, err := signer.Sign(grant)
	require.NoError(t, err)

	claims, err := NewLicenseTokenVerifier(signer.PublicKey(), WithClock(clock)).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, grant.LicenseID, claims.Grant().LicenseID)
	assert.Equal(t, grant.SchoolID, claims.SchoolID)
	assert.Equal(t, "device-1", claims.DeviceID)
	assert.True(t, claims.IsTrial)
	assert.True(t, grant.ExpiryDate.Equal(claims.ExpiryDate))
	assert.True(t, now.Add(7*24*time.Hour).Equal(claims.ExpiresAt.Time))
}

func TestLicenseToken_expired(t *testing.T) {
	now := time.Now()
	_, priv := newKeyPair(t)
	signer := NewLicenseTokenSigner(priv, time.Hour, WithClock(func() time.Time { return now }))
	token, err := signer.Sign(LicenseGrant{LicenseID: uuid.New(), ExpiryDate: now.AddDate(1, 0, 0)})
	require.NoError(t, err)

	later := func() time.Time { return now.Add(2 * time.Hour) }
	_, err = NewLicenseTokenVerifier(signer.PublicKey(), WithClock(later)).Verify(token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidLicenseToken))
	assert.True(t, errors.Is(err, jwt.ErrTokenExpired))
}

func TestLicenseToken_wrongKey(t *testing.T) {
	_, priv := newKeyPair(t)
	otherPub, _ := newKeyPair(t)
	token, err := NewLicenseTokenSigner(priv, time.Hour).Sign(LicenseGrant{LicenseID: uuid.New()})
	require.NoError(t, err)

	_, err = NewLicenseTokenVerifier(otherPub).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidLicenseToken)
}

func TestLicenseToken_rejectsHMAC(t *testing.T) {
	pub, _ := newKeyPair(t)
	claims := &LicenseClaims{
		LicenseID: uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(pub))
	require.NoError(t, err)

	_, err = NewLicenseTokenVerifier(pub).Verify(forged)
	assert.ErrorIs(t, err, ErrInvalidLicenseToken)
}

func TestLicenseToken_noKey(t *testing.T) {
	_, err := NewLicenseTokenVerifier(nil).Verify("a.b.c")
	assert.ErrorIs(t, err, ErrInvalidLicenseToken)
}
