// Package plotfile implements the plot-file naming convention and
// directory index: parsing and formatting `unoptimized.<addr>-<start>-<end>.dat`
// and `optimized.<addr>-<start>-<end>.dat` names, and enumerating a
// directory's plot files in a stable order.
package plotfile

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/hashplot/pocminer/internal/pocerr"
)

// Flag distinguishes an unoptimized (nonce-major) plot file from an
// optimized (scope-major) one.
type Flag int

const (
	Unoptimized Flag = iota
	Optimized
)

func (f Flag) String() string {
	switch f {
	case Unoptimized:
		return "unoptimized"
	case Optimized:
		return "optimized"
	default:
		return "unknown"
	}
}

// AddrLen is the fixed address size plot file names encode as 42 lowercase
// hex characters.
const AddrLen = 21

// PlotFile is the immutable descriptor of one plot file on disk.
type PlotFile struct {
	Flag  Flag
	Path  string
	Addr  [AddrLen]byte
	Start uint64
	End   uint64
}

// Name returns the canonical filename for this record (without directory),
// using the .dat extension.
func (p PlotFile) Name() string {
	return fmt.Sprintf("%s.%s-%d-%d.dat", p.Flag, hex.EncodeToString(p.Addr[:]), p.Start, p.End)
}

var filenameRe = regexp.MustCompile(`^(unoptimized|optimized)\.([0-9a-f]+)-([0-9]+)-([0-9]+)\.dat$`)

// Parse interprets a single path's basename as a plot-file name. Unlike
// RestoreFromDir, a malformed name is reported as an error rather than
// silently skipped, since Parse is used when the caller names a specific
// file (e.g. on the command line) and a typo should be visible.
func Parse(path string) (PlotFile, error) {
	name := filepath.Base(path)
	pf, ok := parseName(name)
	if !ok {
		return PlotFile{}, pocerr.New(pocerr.Precondition, "parse_plot_file", fmt.Errorf("%q does not match the plot file naming convention", name))
	}
	pf.Path = path
	return pf, nil
}

func parseName(name string) (PlotFile, bool) {
	m := filenameRe.FindStringSubmatch(name)
	if m == nil {
		return PlotFile{}, false
	}

	var flag Flag
	switch m[1] {
	case "unoptimized":
		flag = Unoptimized
	case "optimized":
		flag = Optimized
	default:
		return PlotFile{}, false
	}

	addrBytes, err := hex.DecodeString(m[2])
	if err != nil || len(addrBytes) != AddrLen {
		return PlotFile{}, false
	}

	start, err := strconv.ParseUint(m[3], 10, 64)
	if err != nil {
		return PlotFile{}, false
	}
	end, err := strconv.ParseUint(m[4], 10, 64)
	if err != nil {
		return PlotFile{}, false
	}

	var addr [AddrLen]byte
	copy(addr[:], addrBytes)

	return PlotFile{Flag: flag, Addr: addr, Start: start, End: end}, true
}

// RestoreFromDir reads dir and returns every plot file whose name matches
// the naming convention. Entries with an invalid address length, malformed
// integers, or an unknown flag are skipped silently; stray files in a plot
// directory are none of this function's business.
//
// Ordering: entries are grouped by Flag (Unoptimized before Optimized) and
// sorted ascending by Start within each group.
func RestoreFromDir(dir string) ([]PlotFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, pocerr.New(pocerr.IO, "restore_from_dir", err)
	}

	var result []PlotFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		pf, ok := parseName(entry.Name())
		if !ok {
			continue
		}
		pf.Path = filepath.Join(dir, entry.Name())
		result = append(result, pf)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Flag != result[j].Flag {
			return result[i].Flag < result[j].Flag
		}
		return result[i].Start < result[j].Start
	})

	return result, nil
}
