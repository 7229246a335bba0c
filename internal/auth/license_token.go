package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// LicenseGrant is the license state a device is allowed to cache offline
type LicenseGrant struct {
	LicenseID  uuid.UUID
	SchoolID   uuid.UUID
	DeviceID   string
	IsTrial    bool
	IsActive   bool
	ExpiryDate time.Time
}

// LicenseClaims is the payload of a signed license certificate
type LicenseClaims struct {
	LicenseID  uuid.UUID `json:"license_id"`
	SchoolID   uuid.UUID `json:"school_id"`
	DeviceID   string    `json:"device_id"`
	IsTrial    bool      `json:"is_trial"`
	IsActive   bool      `json:"is_active"`
	ExpiryDate time.Time `json:"expiry_date"`
	jwt.RegisteredClaims
}

// Grant returns the license state carried by the claims
func (c *LicenseClaims) Grant() LicenseGrant {
	return LicenseGrant{
		LicenseID:  c.LicenseID,
		SchoolID:   c.SchoolID,
		DeviceID:   c.DeviceID,
		IsTrial:    c.IsTrial,
		IsActive:   c.IsActive,
		ExpiryDate: c.ExpiryDate,
	}
}

// LicenseTokenSigner issues Ed25519-signed license certificates
type LicenseTokenSigner struct {
	key ed25519.PrivateKey
	ttl time.Duration
	now func() time.Time
}

// NewLicenseTokenSigner creates a signer. The certificate's own exp is now+ttl and is independent
// of the license expiry it carries; clients must re-check the server before it lapses.
func NewLicenseTokenSigner(key ed25519.PrivateKey, ttl time.Duration, opts ...Option) *LicenseTokenSigner {
	o := buildOptions(opts)
	return &LicenseTokenSigner{key: key, ttl: ttl, now: o.now}
}

// PublicKey returns the key clients verify certificates with
func (s *LicenseTokenSigner) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// Sign creates a certificate for the grant
func (s *LicenseTokenSigner) Sign(g LicenseGrant) (string, error) {
	now := s.now()

	claims := &LicenseClaims{
		LicenseID:  g.LicenseID,
		SchoolID:   g.SchoolID,
		DeviceID:   g.DeviceID,
		IsTrial:    g.IsTrial,
		IsActive:   g.IsActive,
		ExpiryDate: g.ExpiryDate,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   g.LicenseID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	tokenString, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign license token: %w", err)
	}
	return tokenString, nil
}

// LicenseTokenVerifier checks certificates with the server's public key
type LicenseTokenVerifier struct {
	key ed25519.PublicKey
	now func() time.Time
}

// NewLicenseTokenVerifier creates a verifier
func NewLicenseTokenVerifier(key ed25519.PublicKey, opts ...Option) *LicenseTokenVerifier {
	o := buildOptions(opts)
	return &LicenseTokenVerifier{key: key, now: o.now}
}

// ErrInvalidLicenseToken is returned for certificates that fail verification
var ErrInvalidLicenseToken = errors.New("invalid license token")

// Verify verifies and parses a license certificate
func (v *LicenseTokenVerifier) Verify(tokenString string) (*LicenseClaims, error) {
	if len(v.key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: no verification key", ErrInvalidLicenseToken)
	}
	token, err := jwt.ParseWithClaims(tokenString, &LicenseClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLicenseToken, err)
	}

	claims, ok := token.Claims.(*LicenseClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidLicenseToken
	}
	return claims, nil
}
