// Command pocminer drives the proof-of-capacity plotting and mining
// pipeline from the shell: generating plot files, transposing them into
// optimized form, and scanning an optimized file for a winning nonce.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/hashplot/pocminer/internal/optimizer"
	"github.com/hashplot/pocminer/internal/plotfile"
	"github.com/hashplot/pocminer/internal/plotter"
	"github.com/hashplot/pocminer/internal/poc"
	"github.com/hashplot/pocminer/internal/seeker"
)

// processStart marks when this invocation began, so --sweep-tmp can tell
// a stale .tmp left by an earlier crashed run from one a concurrent
// invocation is actively writing right now.
var processStart = time.Now()

func main() {
	app := &cli.App{
		Name:  "pocminer",
		Usage: "proof-of-capacity plot generation, optimization, and seeking",
		Commands: []*cli.Command{
			plotCommand(),
			optimizeCommand(),
			restoreCommand(),
			seekCommand(),
			hashCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func plotCommand() *cli.Command {
	return &cli.Command{
		Name:  "plot",
		Usage: "generate an unoptimized plot file for a nonce range",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Required: true, Usage: "hex-encoded 21-byte address"},
			&cli.Uint64Flag{Name: "start", Required: true},
			&cli.Uint64Flag{Name: "end", Required: true},
			&cli.StringFlag{Name: "tmp-dir", Value: ".", Usage: "directory to write the plot file into"},
			&cli.IntFlag{Name: "workers", Value: 0, Usage: "concurrent hashing workers (0 = NumCPU)"},
			&cli.BoolFlag{Name: "sweep-tmp", Usage: "delete stale *.tmp files in tmp-dir left by a crashed run before plotting"},
		},
		Action: func(c *cli.Context) error {
			addr, err := parseAddr(c.String("addr"))
			if err != nil {
				return err
			}
			start := c.Uint64("start")
			end := c.Uint64("end")

			if c.Bool("sweep-tmp") {
				sweepStaleTmp(c.String("tmp-dir"))
			}

			started := time.Now()
			pf, err := plotter.Plot(context.Background(), addr, start, end, c.String("tmp-dir"), plotter.Options{
				Workers:      c.Int("workers"),
				ShowProgress: true,
			})
			if err != nil {
				return err
			}

			size, statErr := fileSize(pf.Path)
			if statErr == nil {
				fmt.Printf("wrote %s (%s) in %s\n", pf.Path, humanize.Bytes(size), time.Since(started).Round(time.Millisecond))
			} else {
				fmt.Printf("wrote %s in %s\n", pf.Path, time.Since(started).Round(time.Millisecond))
			}
			return nil
		},
	}
}

func optimizeCommand() *cli.Command {
	return &cli.Command{
		Name:      "optimize",
		Usage:     "transpose contiguous unoptimized plot files into one optimized file",
		ArgsUsage: "<unoptimized-file>...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out-dir", Value: ".", Usage: "directory to write the optimized file into"},
			&cli.BoolFlag{Name: "sweep-tmp", Usage: "delete stale *.tmp files in out-dir left by a crashed run before optimizing"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("optimize requires at least one unoptimized plot file", 1)
			}

			if c.Bool("sweep-tmp") {
				sweepStaleTmp(c.String("out-dir"))
			}

			files := make([]plotfile.PlotFile, 0, c.NArg())
			for _, path := range c.Args().Slice() {
				pf, err := plotfile.Parse(path)
				if err != nil {
					return err
				}
				files = append(files, pf)
			}

			started := time.Now()
			out, err := optimizer.Convert(files, c.String("out-dir"), optimizer.Options{ShowProgress: true})
			if err != nil {
				return err
			}

			fmt.Printf("wrote %s in %s\n", out.Path, time.Since(started).Round(time.Millisecond))
			return nil
		},
	}
}

func restoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "list the plot files found in a directory",
		ArgsUsage: "<dir>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "cache", Usage: "bbolt database path caching this directory's listing across repeated restores (empty = scan fresh every time)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("restore requires exactly one directory argument", 1)
			}
			dir := c.Args().First()

			var files []plotfile.PlotFile
			var err error
			if cachePath := c.String("cache"); cachePath != "" {
				idx := plotfile.OpenIndex(cachePath)
				defer idx.Close()
				files, err = idx.Restore(dir)
			} else {
				files, err = plotfile.RestoreFromDir(dir)
			}
			if err != nil {
				return err
			}
			for _, pf := range files {
				fmt.Printf("%-12s %s %d-%d\n", pf.Flag, hex.EncodeToString(pf.Addr[:]), pf.Start, pf.End)
			}
			return nil
		},
	}
}

func seekCommand() *cli.Command {
	return &cli.Command{
		Name:      "seek",
		Usage:     "scan an optimized plot file for a nonce that satisfies a target",
		ArgsUsage: "<optimized-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "previous-hash", Required: true},
			&cli.StringFlag{Name: "target", Required: true},
			&cli.Uint64Flag{Name: "time", Required: true},
			&cli.BoolFlag{Name: "multi", Usage: "split the scan across NumCPU goroutines"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("seek requires exactly one optimized plot file argument", 1)
			}
			pf, err := plotfile.Parse(c.Args().First())
			if err != nil {
				return err
			}
			previousHash, err := parseHash32(c.String("previous-hash"))
			if err != nil {
				return err
			}
			target, err := parseHash32(c.String("target"))
			if err != nil {
				return err
			}

			started := time.Now()
			result, err := seeker.Seek(pf.Path, pf.Start, pf.End, previousHash, target, uint32(c.Uint64("time")), c.Bool("multi"))
			if err != nil {
				return err
			}

			fmt.Printf("nonce=%d work=%s (%s)\n", result.Nonce, hex.EncodeToString(result.Work[:]), time.Since(started).Round(time.Millisecond))
			return nil
		},
	}
}

func hashCommand() *cli.Command {
	return &cli.Command{
		Name:  "hash",
		Usage: "compute a single proof-of-capacity work value (debugging aid)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Required: true},
			&cli.Uint64Flag{Name: "nonce", Required: true},
			&cli.Uint64Flag{Name: "time", Required: true},
			&cli.StringFlag{Name: "previous-hash", Required: true},
		},
		Action: func(c *cli.Context) error {
			addr, err := parseAddr(c.String("addr"))
			if err != nil {
				return err
			}
			previousHash, err := parseHash32(c.String("previous-hash"))
			if err != nil {
				return err
			}
			work := poc.Hash(addr, uint32(c.Uint64("nonce")), uint32(c.Uint64("time")), previousHash)
			fmt.Println(hex.EncodeToString(work[:]))
			return nil
		},
	}
}

func parseAddr(s string) ([poc.AddrLen]byte, error) {
	var addr [poc.AddrLen]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return addr, cli.Exit(fmt.Sprintf("invalid address hex: %v", err), 1)
	}
	if len(b) != poc.AddrLen {
		return addr, cli.Exit(fmt.Sprintf("address must be %d bytes, got %d", poc.AddrLen, len(b)), 1)
	}
	copy(addr[:], b)
	return addr, nil
}

func parseHash32(s string) ([32]byte, error) {
	var h [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, cli.Exit(fmt.Sprintf("invalid hash hex: %v", err), 1)
	}
	if len(b) != 32 {
		return h, cli.Exit(fmt.Sprintf("hash must be 32 bytes, got %d", len(b)), 1)
	}
	copy(h[:], b)
	return h, nil
}

// sweepStaleTmp deletes every *.tmp file in dir whose modification time
// predates this process's start. A .tmp newer than processStart belongs
// to a plot/optimize run racing this one and is left alone; errors
// removing an individual file are logged, not fatal, since a sweep is a
// best-effort courtesy, not part of the plot/optimize contract.
func sweepStaleTmp(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(processStart) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Printf("sweep-tmp: could not remove %s: %v", path, err)
			continue
		}
		log.Printf("sweep-tmp: removed stale %s", path)
	}
}

func fileSize(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return uint64(info.Size()), nil
}
