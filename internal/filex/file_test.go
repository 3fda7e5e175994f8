package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	return func() { _ = os.Chdir(old) }
}

func TestEnsureDataDir_CreatesDirectoryInCWD(t *testing.T) {
	tmp := t.TempDir()
	defer chdir(t, tmp)()

	got, err := EnsureDataDir("myid-data")
	require.NoError(t, err)

	// TempDir may be behind a symlink (macOS), compare resolved paths.
	wantResolved, err := filepath.EvalSymlinks(filepath.Join(tmp, "myid-data"))
	require.NoError(t, err)
	gotResolved, err := filepath.EvalSymlinks(got)
	require.NoError(t, err)
	require.Equal(t, wantResolved, gotResolved)

	fi, err := os.Stat(got)
	require.NoError(t, err)
	require.True(t, fi.IsDir(), "should create a directory")

	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), fi.Mode().Perm()&0o700)
	}
}

func TestEnsureDataDir_AbsolutePath(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	got, err := EnsureDataDir(dir)
	require.NoError(t, err)
	require.Equal(t, dir, got)

	fi, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, fi.IsDir())
}

func TestEnsureDataDir_Idempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	first, err := EnsureDataDir(dir)
	require.NoError(t, err)

	second, err := EnsureDataDir(dir)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestEnsureDataDir_FailsIfFileWithSameNameExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err := EnsureDataDir(path)
	require.Error(t, err, "should fail when a file exists with the same name")
}
