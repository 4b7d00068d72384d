package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseAddr(t *testing.T) {
	addr, err := parseAddr("00de6e40c12db0920348ed0ebb136e3a926bad4a3a")
	if err != nil {
		t.Fatalf("parseAddr failed on a valid address: %v", err)
	}
	if addr[0] != 0x00 || addr[20] != 0x3a {
		t.Errorf("parseAddr decoded wrong bytes: %x", addr)
	}
}

func TestParseAddrRejectsBadInput(t *testing.T) {
	cases := []string{
		"",                     // empty
		"zz",                   // not hex
		"00de6e40",             // too short
		"00de6e40c12db0920348ed0ebb136e3a926bad4a3a00", // too long
	}
	for _, in := range cases {
		if _, err := parseAddr(in); err == nil {
			t.Errorf("parseAddr(%q) succeeded, want error", in)
		}
	}
}

func TestParseHash32(t *testing.T) {
	h, err := parseHash32("df98f659f3f31cbf3494b96e44697729e3d018b6308a6de8fefa5fd4b378d025")
	if err != nil {
		t.Fatalf("parseHash32 failed on a valid hash: %v", err)
	}
	if h[0] != 0xdf || h[31] != 0x25 {
		t.Errorf("parseHash32 decoded wrong bytes: %x", h)
	}

	if _, err := parseHash32("df98f6"); err == nil {
		t.Error("parseHash32 accepted a short hash")
	}
}

func TestSweepStaleTmp(t *testing.T) {
	dir := t.TempDir()

	stale := filepath.Join(dir, "unoptimized.00-0-1.tmp")
	if err := os.WriteFile(stale, nil, 0644); err != nil {
		t.Fatalf("create stale tmp: %v", err)
	}
	// Backdate the stale file well before process start.
	old := processStart.Add(-time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("backdate stale tmp: %v", err)
	}

	fresh := filepath.Join(dir, "unoptimized.00-1-2.tmp")
	if err := os.WriteFile(fresh, nil, 0644); err != nil {
		t.Fatalf("create fresh tmp: %v", err)
	}
	future := processStart.Add(time.Hour)
	if err := os.Chtimes(fresh, future, future); err != nil {
		t.Fatalf("postdate fresh tmp: %v", err)
	}

	kept := filepath.Join(dir, "unoptimized.00-2-3.dat")
	if err := os.WriteFile(kept, nil, 0644); err != nil {
		t.Fatalf("create dat file: %v", err)
	}
	if err := os.Chtimes(kept, old, old); err != nil {
		t.Fatalf("backdate dat file: %v", err)
	}

	sweepStaleTmp(dir)

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale .tmp survived the sweep")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh .tmp was swept; it may belong to a concurrent run")
	}
	if _, err := os.Stat(kept); err != nil {
		t.Error(".dat file was swept; only .tmp files are fair game")
	}
}
