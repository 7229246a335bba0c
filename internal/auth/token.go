package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

const sessionTokenBytes = 32

// issuedSession is a freshly minted admin session. Token goes to the admin once; only Hash
// and ExpiresAt reach system_admin_sessions.
type issuedSession struct {
	Token     string
	Hash      string
	ExpiresAt time.Time
}

// newSessionToken mints an opaque admin token valid for ttl from now. The expiry is fixed at
// issue time; activity never extends it.
func newSessionToken(now time.Time, ttl time.Duration) (issuedSession, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return issuedSession{}, fmt.Errorf("read random: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(b)
	return issuedSession{
		Token:     token,
		Hash:      HashSessionToken(token),
		ExpiresAt: now.Add(ttl),
	}, nil
}

// HashSessionToken returns the token_hash a presented admin token is looked up by
func HashSessionToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
