package plotfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIndexRestoreHitsCacheAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	addr := "00de6e40c12db0920348ed0ebb136e3a926bad4a3a"
	mustTouch(t, dir, "unoptimized."+addr+"-0-15.dat")

	idx := OpenIndex(filepath.Join(t.TempDir(), "index.bolt"))
	defer idx.Close()

	first, err := idx.Restore(dir)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Add a second plot file, then put the directory's mtime back to the
	// value the cache recorded: the second call must be served from the
	// cache, so it still returns only the first listing.
	info, err := os.Stat(dir)
	require.NoError(t, err)
	mustTouch(t, dir, "unoptimized."+addr+"-15-40.dat")
	require.NoError(t, os.Chtimes(dir, info.ModTime(), info.ModTime()))

	second, err := idx.Restore(dir)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, first[0].Name(), second[0].Name())
}

func TestIndexRestoreDetectsDirectoryChange(t *testing.T) {
	dir := t.TempDir()
	addr := "00de6e40c12db0920348ed0ebb136e3a926bad4a3a"
	mustTouch(t, dir, "unoptimized."+addr+"-0-15.dat")

	idx := OpenIndex(filepath.Join(t.TempDir(), "index.bolt"))
	defer idx.Close()

	_, err := idx.Restore(dir)
	require.NoError(t, err)

	mustTouch(t, dir, "unoptimized."+addr+"-15-40.dat")
	// Force the directory mtime forward so the cache entry is provably
	// stale even on filesystems with coarse mtime resolution.
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(dir, future, future))

	got, err := idx.Restore(dir)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestOpenIndexFallsBackOnUnwritablePath(t *testing.T) {
	idx := OpenIndex(filepath.Join("/nonexistent-parent-dir", "index.bolt"))
	defer idx.Close()

	dir := t.TempDir()
	addr := "00de6e40c12db0920348ed0ebb136e3a926bad4a3a"
	mustTouch(t, dir, "unoptimized."+addr+"-0-15.dat")

	got, err := idx.Restore(dir)
	require.NoError(t, err)
	require.Len(t, got, 1)
}
