package secrets

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutGetDelete(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewStore(dir)

	require.NoError(t, s.Put("token", "abc.def.ghi"))
	require.NoError(t, s.Put("usuario", `{"id":1}`))

	got, err := s.Get("TOKEN")
	require.NoError(t, err)
	require.Equal(t, "abc.def.ghi", got)

	raw, err := os.ReadFile(filepath.Join(dir, fileName))
	require.NoError(t, err)
	require.False(t, strings.Contains(string(raw), "abc.def.ghi"), "value stored in plain text")

	info, err := os.Stat(filepath.Join(dir, fileName))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, s.Delete("token", "usuario", "missing"))
	_, err = s.Get("token")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteOnEmptyStore(t *testing.T) {
	t.Parallel()

	s := NewStore(t.TempDir())
	require.NoError(t, s.Delete("token"))
	_, err := s.Get("token")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDefaultStoreUsesConfigDir(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_CONFIG_HOME only drives os.UserConfigDir on linux")
	}
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)

	s, err := DefaultStore()
	require.NoError(t, err)
	require.NoError(t, s.Put("k", "v"))
	_, err = os.Stat(filepath.Join(dir, "despacho", fileName))
	require.NoError(t, err)
}
