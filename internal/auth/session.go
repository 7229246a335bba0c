package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/schoolresults/server/internal/apperr"
	"github.com/schoolresults/server/internal/repo"
)

// SessionVerifier validates opaque admin session tokens against the session table.
// It never extends expires_at; only last_activity is refreshed.
type SessionVerifier struct {
	sessions repo.SessionRepo
	opts     options
}

// NewSessionVerifier creates a new session verifier
func NewSessionVerifier(sessions repo.SessionRepo, opts ...Option) *SessionVerifier {
	return &SessionVerifier{sessions: sessions, opts: buildOptions(opts)}
}

// Verify resolves a token to its admin id. An expired session is deleted on the way out,
// so a second attempt with the same token reports InvalidSession.
func (v *SessionVerifier) Verify(ctx context.Context, token string) (adminID uuid.UUID, err error) {
	defer func() { v.opts.metrics.SessionCheck(err) }()

	token = strings.TrimSpace(token)
	if token == "" {
		return uuid.Nil, apperr.New(apperr.KindUnauthenticated, "missing admin session token")
	}

	session, err := v.sessions.FindByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return uuid.Nil, apperr.New(apperr.KindInvalidSession, "invalid session")
		}
		return uuid.Nil, apperr.Store(err)
	}

	now := v.opts.now()
	if session.ExpiresAt.Before(now) {
		if err := v.sessions.Delete(ctx, session.ID); err != nil {
			return uuid.Nil, apperr.Store(err)
		}
		v.opts.log.Info("expired admin session removed",
			zapAdmin(session.AdminID),
		)
		return uuid.Nil, apperr.New(apperr.KindSessionExpired, "session expired")
	}

	if err := v.sessions.Touch(ctx, session.ID, now); err != nil {
		return uuid.Nil, apperr.Store(err)
	}
	return session.AdminID, nil
}
