package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/jask/despacho/internal/api"
	"github.com/jask/despacho/internal/apperr"
	"github.com/jask/despacho/internal/secrets"
)

type stubAuth struct {
	resp  api.LoginResponse
	err   error
	creds api.Credentials
}

func (s *stubAuth) Login(_ context.Context, creds api.Credentials) (api.LoginResponse, error) {
	s.creds = creds
	return s.resp, s.err
}

func mint(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestLoginPersistsSession(t *testing.T) {
	t.Parallel()

	store := secrets.NewStore(t.TempDir())
	auth := &stubAuth{resp: api.LoginResponse{AccessToken: "t1", User: &api.User{ID: 1, Name: "A"}}}
	m := NewManager(store, auth)

	var changes []Change
	m.Subscribe(func(c Change) { changes = append(changes, c) })

	u, err := m.Login(context.Background(), "  op@example.com ", "pw")
	require.NoError(t, err)
	require.Equal(t, "A", u.Name)
	require.Equal(t, "op@example.com", auth.creds.Email)
	require.True(t, m.Authenticated())
	require.Equal(t, "t1", m.Token())
	require.NotEmpty(t, m.ID())
	require.NoError(t, m.Context().Err())

	tok, err := store.Get(TokenKey)
	require.NoError(t, err)
	require.Equal(t, "t1", tok)
	raw, err := store.Get(UserKey)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":1,"email":"","nome":"A","categoria":""}`, raw)

	require.Len(t, changes, 1)
	require.True(t, changes[0].Authenticated)
}

func TestLoginRequiresTokenAndUser(t *testing.T) {
	t.Parallel()

	cases := map[string]api.LoginResponse{
		"no user":  {AccessToken: "t1"},
		"no token": {User: &api.User{ID: 1}},
		"empty":    {},
	}
	for name, resp := range cases {
		t.Run(name, func(t *testing.T) {
			store := secrets.NewStore(t.TempDir())
			m := NewManager(store, &stubAuth{resp: resp})

			_, err := m.Login(context.Background(), "op@example.com", "pw")
			require.Equal(t, apperr.Invalid, apperr.KindOf(err))
			require.False(t, m.Authenticated())
			_, err = store.Get(TokenKey)
			require.ErrorIs(t, err, secrets.ErrNotFound)
		})
	}
}

func TestLoginErrorPassesThrough(t *testing.T) {
	t.Parallel()

	want := apperr.InvalidErr("Email ou senha inválidos", nil)
	m := NewManager(secrets.NewStore(t.TempDir()), &stubAuth{err: want})
	_, err := m.Login(context.Background(), "op@example.com", "bad")
	require.ErrorIs(t, err, want)
	require.False(t, m.Authenticated())
}

func TestLogoutIsIdempotent(t *testing.T) {
	t.Parallel()

	store := secrets.NewStore(t.TempDir())
	m := NewManager(store, &stubAuth{resp: api.LoginResponse{AccessToken: "t1", User: &api.User{ID: 1}}})
	_, err := m.Login(context.Background(), "op@example.com", "pw")
	require.NoError(t, err)

	sessCtx := m.Context()
	var logouts int
	m.Subscribe(func(c Change) {
		if !c.Authenticated {
			logouts++
		}
	})

	m.Logout()
	m.Logout()

	require.False(t, m.Authenticated())
	require.Empty(t, m.Token())
	require.Error(t, sessCtx.Err())
	require.Equal(t, 1, logouts)
	_, err = store.Get(UserKey)
	require.ErrorIs(t, err, secrets.ErrNotFound)
}

func TestTerminateCarriesReason(t *testing.T) {
	t.Parallel()

	m := NewManager(secrets.NewStore(t.TempDir()), &stubAuth{resp: api.LoginResponse{AccessToken: "t1", User: &api.User{ID: 1}}})
	_, err := m.Login(context.Background(), "op@example.com", "pw")
	require.NoError(t, err)

	var got Change
	m.Subscribe(func(c Change) { got = c })
	m.Terminate(apperr.SessionExpiredErr())

	require.False(t, got.Authenticated)
	require.True(t, apperr.IsSession(got.Reason))
	require.False(t, m.Authenticated())
}

func TestNewLoginCancelsPreviousContext(t *testing.T) {
	t.Parallel()

	m := NewManager(secrets.NewStore(t.TempDir()), &stubAuth{resp: api.LoginResponse{AccessToken: "t1", User: &api.User{ID: 1}}})
	require.Error(t, m.Context().Err(), "logged out context must be done")

	_, err := m.Login(context.Background(), "op@example.com", "pw")
	require.NoError(t, err)
	first, firstID := m.Context(), m.ID()

	_, err = m.Login(context.Background(), "op@example.com", "pw")
	require.NoError(t, err)
	require.True(t, errors.Is(first.Err(), context.Canceled))
	require.NotEqual(t, firstID, m.ID())
}

func TestRestore(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("valid", func(t *testing.T) {
		store := secrets.NewStore(t.TempDir())
		require.NoError(t, store.Put(TokenKey, mint(t, now.Add(time.Hour))))
		require.NoError(t, store.Put(UserKey, `{"id":7,"nome":"Bia","categoria":"ADMIN"}`))

		m := NewManager(store, &stubAuth{}, WithClock(func() time.Time { return now }))
		require.True(t, m.Restore())
		u, ok := m.User()
		require.True(t, ok)
		require.True(t, u.IsAdmin())
	})

	t.Run("expired", func(t *testing.T) {
		store := secrets.NewStore(t.TempDir())
		require.NoError(t, store.Put(TokenKey, mint(t, now.Add(-time.Minute))))
		require.NoError(t, store.Put(UserKey, `{"id":7}`))

		m := NewManager(store, &stubAuth{}, WithClock(func() time.Time { return now }))
		require.False(t, m.Restore())
		_, err := store.Get(TokenKey)
		require.ErrorIs(t, err, secrets.ErrNotFound)
	})

	t.Run("opaque token kept", func(t *testing.T) {
		store := secrets.NewStore(t.TempDir())
		require.NoError(t, store.Put(TokenKey, "not-a-jwt"))
		require.NoError(t, store.Put(UserKey, `{"id":7}`))

		m := NewManager(store, &stubAuth{})
		require.True(t, m.Restore())
	})

	t.Run("token without user", func(t *testing.T) {
		store := secrets.NewStore(t.TempDir())
		require.NoError(t, store.Put(TokenKey, "t1"))

		m := NewManager(store, &stubAuth{})
		require.False(t, m.Restore())
		require.False(t, m.Authenticated())
	})
}
