// Package admins manages admin panel accounts: registration from the claims
// bot, password login and bearer sessions.
package admins

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/internal/domain"
)

// Repository stores accounts and sessions.
type Repository interface {
	Create(ctx context.Context, a domain.Administrator) (domain.Administrator, error)
	ByLogin(ctx context.Context, login string) (domain.Administrator, error)
	ByTgID(ctx context.Context, tgID int64) (domain.Administrator, error)
	BySession(ctx context.Context, token string, now time.Time) (domain.Administrator, error)
	StartSession(ctx context.Context, adminID int64, token string, expires time.Time) error
	EndSession(ctx context.Context, token string) error
}

// ErrBadCredentials is returned for an unknown login, a wrong password or an
// inactive account alike.
var ErrBadCredentials = errors.New("invalid login or password")

// Session is an issued bearer token.
type Session struct {
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expires_at"`
	Admin     domain.Administrator `json:"admin"`
}

// Service implements account operations.
type Service struct {
	repo Repository
	ttl  time.Duration
	now  func() time.Time
}

// New wires the service. A zero ttl means 24 hours.
func New(repo Repository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{repo: repo, ttl: ttl, now: time.Now}
}

// Register creates the panel account of a Telegram admin.
func (s *Service) Register(ctx context.Context, tgID int64, login, password string) (domain.Administrator, error) {
	login = strings.TrimSpace(login)
	if login == "" || strings.TrimSpace(password) == "" {
		return domain.Administrator{}, domain.Invalid("login and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Administrator{}, err
	}
	a, err := s.repo.Create(ctx, domain.Administrator{TgID: &tgID, Login: login, PasswordHash: string(hash)})
	if err != nil {
		return a, err
	}
	logger.LogEvent(ctx, logger.L, slog.LevelInfo, "admin.register",
		slog.Int64("admin_id", a.AdminID),
		slog.Int64("tg_id", tgID),
		slog.String("login", login),
	)
	return a, nil
}

// Account returns the panel account linked to a Telegram user.
func (s *Service) Account(ctx context.Context, tgID int64) (domain.Administrator, error) {
	return s.repo.ByTgID(ctx, tgID)
}

// Login checks the password and issues a session token.
func (s *Service) Login(ctx context.Context, login, password string) (Session, error) {
	a, err := s.repo.ByLogin(ctx, strings.TrimSpace(login))
	if errors.Is(err, domain.ErrNotFound) {
		return Session{}, ErrBadCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !a.IsActive || bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrBadCredentials
	}
	token, err := newToken()
	if err != nil {
		return Session{}, err
	}
	expires := s.now().Add(s.ttl)
	if err := s.repo.StartSession(ctx, a.AdminID, token, expires); err != nil {
		return Session{}, err
	}
	logger.LogEvent(ctx, logger.HTTP, slog.LevelInfo, "admin.login",
		slog.Int64("admin_id", a.AdminID),
		slog.Time("expires_at", expires),
	)
	return Session{Token: token, ExpiresAt: expires, Admin: a}, nil
}

// Authenticate resolves a bearer token to its account.
func (s *Service) Authenticate(ctx context.Context, token string) (domain.Administrator, error) {
	if token == "" {
		return domain.Administrator{}, ErrBadCredentials
	}
	a, err := s.repo.BySession(ctx, token, s.now())
	if errors.Is(err, domain.ErrNotFound) {
		return a, ErrBadCredentials
	}
	return a, err
}

// Logout drops the session.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.repo.EndSession(ctx, token)
}

func newToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
