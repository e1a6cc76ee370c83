package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTempDir_AcquireUnique(t *testing.T) {
	td := newTestTempDir(t)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		h, err := td.Acquire(".lua")
		require.NoError(t, err)
		require.False(t, seen[h.Path()], "duplicate path %s", h.Path())
		seen[h.Path()] = true
		require.True(t, strings.HasSuffix(h.Path(), ".lua"))
		require.Equal(t, td.Dir(), filepath.Dir(h.Path()))

		info, err := os.Stat(h.Path())
		require.NoError(t, err)
		require.Zero(t, info.Size())
		h.Release()
	}
	requireEmptyDir(t, td.Dir())
}

func TestTempDir_DefaultSuffix(t *testing.T) {
	td := newTestTempDir(t)
	h, err := td.Acquire("")
	require.NoError(t, err)
	defer h.Release()
	require.True(t, strings.HasSuffix(h.Path(), DefaultSourceSuffix))
}

func TestHandle_ReleaseIdempotent(t *testing.T) {
	td := newTestTempDir(t)
	h, err := td.Acquire(".lua")
	require.NoError(t, err)

	h.Release()
	_, err = os.Stat(h.Path())
	require.True(t, os.IsNotExist(err), "file should be gone after first release")

	require.NotPanics(t, h.Release)
	require.NoError(t, h.release())
}

func TestHandle_ReleaseDoesNotDeleteReplacement(t *testing.T) {
	td := newTestTempDir(t)
	h, err := td.Acquire(".lua")
	require.NoError(t, err)
	h.Release()

	// Something else now owns the path; a second release must not touch it.
	require.NoError(t, os.WriteFile(h.Path(), []byte("other"), 0o600))
	h.Release()
	_, err = os.Stat(h.Path())
	require.NoError(t, err)
}

func TestHandle_ReleaseMissingFile(t *testing.T) {
	td := newTestTempDir(t)
	h, err := td.Acquire(".lua")
	require.NoError(t, err)
	require.NoError(t, os.Remove(h.Path()))

	require.NoError(t, h.release())
}

func TestScope_CloseReleasesAll(t *testing.T) {
	td := newTestTempDir(t)
	scope := td.NewScope(quietLogger())

	for i := 0; i < 3; i++ {
		_, err := scope.Acquire(".lua")
		require.NoError(t, err)
	}
	require.Equal(t, 3, scope.Acquired())

	scope.Close()
	requireEmptyDir(t, td.Dir())

	require.NotPanics(t, scope.Close)
	_, err := scope.Acquire(".lua")
	require.ErrorIs(t, err, errScopeClosed)
	require.Equal(t, 3, scope.Acquired())
}

func TestScope_ManualReleaseThenClose(t *testing.T) {
	td := newTestTempDir(t)
	scope := td.NewScope(quietLogger())

	h, err := scope.Acquire(".lua")
	require.NoError(t, err)
	h.Release()

	require.NotPanics(t, scope.Close)
	requireEmptyDir(t, td.Dir())
}
