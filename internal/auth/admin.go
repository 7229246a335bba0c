package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/schoolresults/server/internal/apperr"
	"github.com/schoolresults/server/internal/model"
	"github.com/schoolresults/server/internal/repo"
	"github.com/schoolresults/server/internal/validation"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when the username is unknown so both paths cost a bcrypt check
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)

// AdminService handles system admin accounts and their sessions
type AdminService struct {
	admins     repo.AdminRepo
	sessions   repo.SessionRepo
	sessionTTL time.Duration
	opts       options
}

// NewAdminService creates a new admin service
func NewAdminService(admins repo.AdminRepo, sessions repo.SessionRepo, sessionTTL time.Duration, opts ...Option) *AdminService {
	return &AdminService{
		admins:     admins,
		sessions:   sessions,
		sessionTTL: sessionTTL,
		opts:       buildOptions(opts),
	}
}

// Credentials is the login input
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// AdminSessionToken is an issued opaque session token
type AdminSessionToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CreateAdmin stores a new system admin with a bcrypt password hash
func (s *AdminService) CreateAdmin(ctx context.Context, in Credentials) (model.SystemAdmin, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := validation.Struct(in); err != nil {
		return model.SystemAdmin{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return model.SystemAdmin{}, fmt.Errorf("hash password: %w", err)
	}

	admin, err := s.admins.Create(ctx, in.Username, string(hashed))
	if err != nil {
		if errors.Is(err, repo.ErrAdminExists) {
			return model.SystemAdmin{}, apperr.Validation(fmt.Sprintf("admin %q already exists", in.Username))
		}
		return model.SystemAdmin{}, apperr.Store(err)
	}
	return admin, nil
}

// Login checks the credentials and opens a session valid for the configured TTL
func (s *AdminService) Login(ctx context.Context, in Credentials) (AdminSessionToken, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" {
		return AdminSessionToken{}, apperr.Validation("username and password are required")
	}

	admin, err := s.admins.GetByUsername(ctx, in.Username)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return AdminSessionToken{}, apperr.Store(err)
		}
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(in.Password))
		return AdminSessionToken{}, apperr.New(apperr.KindInvalidCredentials, "invalid username or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(in.Password)); err != nil {
		return AdminSessionToken{}, apperr.New(apperr.KindInvalidCredentials, "invalid username or password")
	}

	now := s.opts.now()
	issued, err := newSessionToken(now, s.sessionTTL)
	if err != nil {
		return AdminSessionToken{}, fmt.Errorf("generate session token: %w", err)
	}

	session, err := s.sessions.Create(ctx, admin.ID, issued.Hash, issued.ExpiresAt, now)
	if err != nil {
		return AdminSessionToken{}, apperr.Store(err)
	}

	s.opts.log.Info("admin logged in", zap.String("username", admin.Username), zapAdmin(admin.ID))
	return AdminSessionToken{Token: issued.Token, ExpiresAt: session.ExpiresAt}, nil
}

// Logout deletes the session identified by token
func (s *AdminService) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperr.New(apperr.KindUnauthenticated, "missing admin session token")
	}
	session, err := s.sessions.FindByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return apperr.New(apperr.KindInvalidSession, "invalid session")
		}
		return apperr.Store(err)
	}
	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		return apperr.Store(err)
	}
	return nil
}

func zapAdmin(id uuid.UUID) zap.Field {
	return zap.String("admin_id", id.String())
}
