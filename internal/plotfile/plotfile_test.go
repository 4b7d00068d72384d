package plotfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustTouch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
}

func TestRestoreFromDirOrdersAndSkipsUnrelated(t *testing.T) {
	dir := t.TempDir()
	addr := "00de6e40c12db0920348ed0ebb136e3a926bad4a3a"

	mustTouch(t, dir, "unoptimized."+addr+"-15-40.dat")
	mustTouch(t, dir, "unoptimized."+addr+"-0-15.dat")
	mustTouch(t, dir, "notes.txt")
	mustTouch(t, dir, "optimized."+addr+"-0-40.dat")

	got, err := RestoreFromDir(dir)
	require.NoError(t, err)
	require.Len(t, got, 3)

	require.Equal(t, Unoptimized, got[0].Flag)
	require.EqualValues(t, 0, got[0].Start)
	require.EqualValues(t, 15, got[0].End)

	require.Equal(t, Unoptimized, got[1].Flag)
	require.EqualValues(t, 15, got[1].Start)
	require.EqualValues(t, 40, got[1].End)

	require.Equal(t, Optimized, got[2].Flag)
	require.EqualValues(t, 0, got[2].Start)
	require.EqualValues(t, 40, got[2].End)
}

func TestRestoreFromDirEmpty(t *testing.T) {
	dir := t.TempDir()
	got, err := RestoreFromDir(dir)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestRestoreFromDirMissingDir(t *testing.T) {
	_, err := RestoreFromDir(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}

func TestParseRoundTrip(t *testing.T) {
	addr := mustAddrBytes(t, "00de6e40c12db0920348ed0ebb136e3a926bad4a3a")
	pf := PlotFile{Flag: Unoptimized, Addr: addr, Start: 0, End: 15}

	parsed, err := Parse(pf.Name())
	require.NoError(t, err)
	pf.Path = pf.Name() // Parse stamps Path with the argument it was given
	require.Equal(t, pf, parsed)
}

func TestParseRejectsMalformedName(t *testing.T) {
	_, err := Parse("not-a-plot-file.dat")
	require.Error(t, err)
}

func mustAddrBytes(t *testing.T, s string) [AddrLen]byte {
	t.Helper()
	pf, err := Parse("unoptimized." + s + "-0-1.dat")
	require.NoError(t, err)
	return pf.Addr
}
