// Package auth manages accounts, session tokens and login throttling, and
// notifies listeners when a user signs in or fully signs out.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"pennylogs/internal/core"
	"pennylogs/internal/ports"
)

const (
	DefaultSessionTTL    = 30 * 24 * time.Hour
	DefaultMaxAttempts   = 5
	DefaultAttemptWindow = 15 * time.Minute
	MinPasswordLength    = 8
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrTooManyAttempts    = errors.New("too many failed login attempts")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("password too short")
)

// StateListener is told about sign-in (user != nil) and about the end of a
// user's last session (user == nil).
type StateListener interface {
	AuthStateChanged(ctx context.Context, uid string, user *core.User)
}

// ListenerFunc adapts a function to StateListener.
type ListenerFunc func(ctx context.Context, uid string, user *core.User)

func (f ListenerFunc) AuthStateChanged(ctx context.Context, uid string, user *core.User) {
	f(ctx, uid, user)
}

type Config struct {
	SessionTTL    time.Duration
	MaxAttempts   int
	AttemptWindow time.Duration
	BcryptCost    int
}

func DefaultConfig() Config {
	return Config{
		SessionTTL:    DefaultSessionTTL,
		MaxAttempts:   DefaultMaxAttempts,
		AttemptWindow: DefaultAttemptWindow,
		BcryptCost:    bcrypt.DefaultCost,
	}
}

// Store is the persistence the service needs.
type Store interface {
	ports.UserStore
	ports.SessionStore
	ports.AttemptStore
}

// Session is an issued token; only its hash is persisted.
type Session struct {
	Token     string    `json:"token"`
	User      core.User `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Service struct {
	store Store
	cfg   Config
	now   func() time.Time

	mu        sync.RWMutex
	listeners map[int]StateListener
	nextID    int
}

func NewService(store Store, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.AttemptWindow <= 0 {
		cfg.AttemptWindow = def.AttemptWindow
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = def.BcryptCost
	}
	return &Service{store: store, cfg: cfg, now: time.Now, listeners: make(map[int]StateListener)}
}

// WithClock replaces the clock; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// OnAuthStateChanged registers l and returns a function that removes it.
func (s *Service) OnAuthStateChanged(l StateListener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Service) notify(ctx context.Context, uid string, user *core.User) {
	s.mu.RLock()
	ls := make([]StateListener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.mu.RUnlock()

	for _, l := range ls {
		l.AuthStateChanged(ctx, uid, user)
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%q: %w", email, ErrInvalidEmail)
	}
	return email, nil
}

// Register creates an account.
func (s *Service) Register(ctx context.Context, email, password string) (core.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return core.User{}, err
	}
	if len(password) < MinPasswordLength {
		return core.User{}, ErrWeakPassword
	}
	hash, err := hashPasswordCost(password, s.cfg.BcryptCost)
	if err != nil {
		return core.User{}, err
	}
	u, err := s.store.CreateUser(ctx, email, hash)
	if err != nil {
		return core.User{}, err
	}
	slog.InfoContext(ctx, "User registered", "user_id", u.ID)
	return u, nil
}

// Login checks credentials and issues a session. Failures are counted per
// email; once MaxAttempts failures fall inside AttemptWindow further attempts
// are refused until the window has passed.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, ErrInvalidCredentials
	}
	now := s.now()

	attempts, err := s.store.GetAttempts(ctx, email)
	if err != nil {
		return Session{}, fmt.Errorf("load login attempts: %w", err)
	}
	if s.windowExpired(attempts, now) {
		attempts = ports.LoginAttempts{}
	}
	if attempts.Failures >= s.cfg.MaxAttempts {
		slog.WarnContext(ctx, "Login throttled", "failures", attempts.Failures)
		return Session{}, ErrTooManyAttempts
	}

	user, hash, err := s.store.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	if err != nil || !CheckPassword(hash, password) {
		s.recordFailure(ctx, email, attempts, now)
		return Session{}, ErrInvalidCredentials
	}

	if err := s.store.ResetAttempts(ctx, email); err != nil {
		slog.WarnContext(ctx, "Failed to reset login attempts", "user_id", user.ID, "error", err)
	}

	token, err := GenerateSessionToken()
	if err != nil {
		return Session{}, err
	}
	expires := now.Add(s.cfg.SessionTTL)
	if err := s.store.CreateSession(ctx, HashToken(token), user.ID, expires); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}

	slog.InfoContext(ctx, "User logged in", "user_id", user.ID)
	s.notify(ctx, user.ID, &user)
	return Session{Token: token, User: user, ExpiresAt: expires}, nil
}

func (s *Service) windowExpired(a ports.LoginAttempts, now time.Time) bool {
	return a.WindowStart.IsZero() || !now.Before(a.WindowStart.Add(s.cfg.AttemptWindow))
}

func (s *Service) recordFailure(ctx context.Context, email string, a ports.LoginAttempts, now time.Time) {
	if a.Failures == 0 {
		a.WindowStart = now
	}
	a.Failures++
	if err := s.store.PutAttempts(ctx, email, a); err != nil {
		slog.ErrorContext(ctx, "Failed to record login attempt", "error", err)
	}
}

// Authenticate resolves a live session token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (core.User, error) {
	if token == "" {
		return core.User{}, ErrUnauthenticated
	}
	uid, err := s.store.GetSession(ctx, HashToken(token), s.now())
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, ErrUnauthenticated
	}
	if err != nil {
		return core.User{}, fmt.Errorf("load session: %w", err)
	}
	u, err := s.store.GetUser(ctx, uid)
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, ErrUnauthenticated
	}
	return u, err
}

// Logout ends the session. Listeners hear (uid, nil) once the user has no
// live session left.
func (s *Service) Logout(ctx context.Context, token string) error {
	uid, err := s.store.DeleteSession(ctx, HashToken(token))
	if errors.Is(err, core.ErrNotFound) {
		return ErrUnauthenticated
	}
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	remaining, err := s.store.CountSessions(ctx, uid, s.now())
	if err != nil {
		slog.WarnContext(ctx, "Failed to count remaining sessions", "user_id", uid, "error", err)
		return nil
	}
	slog.InfoContext(ctx, "User logged out", "user_id", uid, "remaining_sessions", remaining)
	if remaining == 0 {
		s.notify(ctx, uid, nil)
	}
	return nil
}
