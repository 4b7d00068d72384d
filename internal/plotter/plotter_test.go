package plotter

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashplot/pocminer/internal/plotfile"
	"github.com/hashplot/pocminer/internal/poc"
)

func mustAddr(t *testing.T, s string) [plotfile.AddrLen]byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != plotfile.AddrLen {
		t.Fatalf("bad address %q", s)
	}
	var addr [plotfile.AddrLen]byte
	copy(addr[:], b)
	return addr
}

func TestPlotWritesNonceMajorOrder(t *testing.T) {
	addr := mustAddr(t, "00de6e40c12db0920348ed0ebb136e3a926bad4a3a")
	dir := t.TempDir()

	pf, err := Plot(context.Background(), addr, 0, 5, dir, Options{Workers: 2})
	if err != nil {
		t.Fatalf("Plot: %v", err)
	}
	if pf.Start != 0 || pf.End != 5 || pf.Flag != plotfile.Unoptimized {
		t.Fatalf("unexpected descriptor: %+v", pf)
	}

	data, err := os.ReadFile(pf.Path)
	if err != nil {
		t.Fatalf("read plot file: %v", err)
	}
	if len(data) != 5*poc.FullLen {
		t.Fatalf("len(data) = %d, want %d", len(data), 5*poc.FullLen)
	}

	cache := poc.NewCache()
	want := poc.NewOutput()
	for nonce := uint32(0); nonce < 5; nonce++ {
		poc.GenerateFull(addr, nonce, want, cache)
		got := data[int(nonce)*poc.FullLen : (int(nonce)+1)*poc.FullLen]
		if string(got) != string(want) {
			t.Fatalf("nonce %d: plot file contents do not match GenerateFull output", nonce)
		}
	}
}

func TestPlotRejectsEmptyRange(t *testing.T) {
	addr := mustAddr(t, "00de6e40c12db0920348ed0ebb136e3a926bad4a3a")
	if _, err := Plot(context.Background(), addr, 10, 10, t.TempDir(), Options{}); err == nil {
		t.Fatal("expected an error for an empty nonce range")
	}
}

func TestPlotLeavesNoTmpFileOnSuccess(t *testing.T) {
	addr := mustAddr(t, "00de6e40c12db0920348ed0ebb136e3a926bad4a3a")
	dir := t.TempDir()

	pf, err := Plot(context.Background(), addr, 0, 3, dir, Options{})
	if err != nil {
		t.Fatalf("Plot: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != filepath.Base(pf.Path) {
		t.Fatalf("expected exactly one published plot file, got %+v", entries)
	}
}
