// Package session owns the operator's login state. It pairs the bearer token with
// the user record, persists both, and hands out a context that dies with the session
// so work started under one login never lands in the next.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jask/despacho/internal/api"
	"github.com/jask/despacho/internal/apperr"
	"github.com/jask/despacho/internal/logging"
	"github.com/jask/despacho/internal/secrets"
)

// Keys under which the session is persisted.
const (
	TokenKey = "token"
	UserKey  = "usuario"
)

// Store is durable key/value storage; *secrets.Store satisfies it.
type Store interface {
	Put(key, value string) error
	Get(key string) (string, error)
	Delete(keys ...string) error
}

// Authenticator performs the credential exchange; *api.Client satisfies it.
type Authenticator interface {
	Login(ctx context.Context, creds api.Credentials) (api.LoginResponse, error)
}

// Change is delivered to listeners whenever the session starts or ends.
type Change struct {
	Authenticated bool
	User          *api.User
	// Reason is set when the backend forced the session to end.
	Reason error
}

type Manager struct {
	store Store
	auth  Authenticator
	log   *slog.Logger
	now   func() time.Time

	mu        sync.RWMutex
	token     string
	user      *api.User
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	listeners []func(Change)
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.log = l } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func NewManager(store Store, auth Authenticator, opts ...Option) *Manager {
	m := &Manager{store: store, auth: auth, log: logging.Discard(), now: time.Now}
	for _, o := range opts {
		o(m)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.cancel()
	return m
}

var errIncompleteLogin = apperr.InvalidErr("Resposta inválida do servidor (token ou usuário ausente).", nil)

// Login exchanges credentials for a session. The response must carry both a token
// and a user; anything less leaves the manager logged out.
func (m *Manager) Login(ctx context.Context, email, password string) (api.User, error) {
	creds := api.Credentials{Email: strings.TrimSpace(email), Password: password}
	resp, err := m.auth.Login(ctx, creds)
	if err != nil {
		m.log.LogAttrs(ctx, slog.LevelWarn, "login_failed", slog.String("email", creds.Email), slog.String("error", err.Error()))
		return api.User{}, err
	}
	if strings.TrimSpace(resp.AccessToken) == "" || resp.User == nil {
		m.log.LogAttrs(ctx, slog.LevelWarn, "login_incomplete", slog.String("email", creds.Email))
		return api.User{}, errIncompleteLogin
	}
	if err := m.persist(resp.AccessToken, *resp.User); err != nil {
		return api.User{}, apperr.Wrap(err)
	}
	user := *resp.User
	m.begin(resp.AccessToken, &user)
	m.log.LogAttrs(ctx, slog.LevelInfo, "login", slog.Int("user_id", user.ID), slog.String("role", user.Role))
	return user, nil
}

// Restore loads a persisted session. Missing, half-written or expired sessions
// are cleared and reported as not restored.
func (m *Manager) Restore() bool {
	tok, err := m.store.Get(TokenKey)
	if err != nil {
		if !errors.Is(err, secrets.ErrNotFound) {
			m.log.Warn("session_restore_failed", slog.String("error", err.Error()))
		}
		m.clearStore()
		return false
	}
	raw, err := m.store.Get(UserKey)
	if err != nil {
		m.clearStore()
		return false
	}
	var user api.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil || tok == "" {
		m.clearStore()
		return false
	}
	if m.expired(tok) {
		m.log.Info("session_restore_expired", slog.Int("user_id", user.ID))
		m.clearStore()
		return false
	}
	m.begin(tok, &user)
	return true
}

// Logout ends the session. Calling it while logged out is a no-op apart from
// making sure nothing is left in the store.
func (m *Manager) Logout() {
	m.end(nil)
}

// Terminate ends the session because the backend rejected it.
func (m *Manager) Terminate(reason error) {
	m.end(reason)
}

func (m *Manager) end(reason error) {
	m.mu.Lock()
	was := m.token != ""
	m.token, m.user, m.id = "", nil, ""
	m.cancel()
	listeners := append([]func(Change){}, m.listeners...)
	m.mu.Unlock()

	m.clearStore()
	if !was {
		return
	}
	attrs := []slog.Attr{}
	if reason != nil {
		attrs = append(attrs, slog.String("reason", string(apperr.KindOf(reason))))
	}
	m.log.LogAttrs(context.Background(), slog.LevelInfo, "logout", attrs...)
	for _, fn := range listeners {
		fn(Change{Authenticated: false, Reason: reason})
	}
}

func (m *Manager) begin(token string, user *api.User) {
	m.mu.Lock()
	m.cancel()
	m.token, m.user = token, user
	m.id = uuid.NewString()
	m.ctx, m.cancel = context.WithCancel(context.Background())
	listeners := append([]func(Change){}, m.listeners...)
	m.mu.Unlock()

	u := *user
	for _, fn := range listeners {
		fn(Change{Authenticated: true, User: &u})
	}
}

func (m *Manager) persist(token string, user api.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := m.store.Put(TokenKey, token); err != nil {
		return err
	}
	return m.store.Put(UserKey, string(raw))
}

func (m *Manager) clearStore() {
	if err := m.store.Delete(TokenKey, UserKey); err != nil {
		m.log.Warn("session_clear_failed", slog.String("error", err.Error()))
	}
}

// expired reads the exp claim without verifying the signature; the backend is the
// authority, this only avoids starting up with a token it will reject anyway.
func (m *Manager) expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !m.now().Before(exp.Time)
}

// Subscribe registers fn for session changes.
func (m *Manager) Subscribe(fn func(Change)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *Manager) User() (api.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return api.User{}, false
	}
	return *m.user, true
}

func (m *Manager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != "" && m.user != nil
}

// ID identifies the current login; empty when logged out.
func (m *Manager) ID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.id
}

// Context is cancelled when the current session ends. While logged out it is
// already cancelled.
func (m *Manager) Context() context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ctx
}
