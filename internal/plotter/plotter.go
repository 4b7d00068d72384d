// Package plotter generates unoptimized plot files: it walks a contiguous
// nonce range for one address, computing each nonce's full buffer and
// writing it in nonce-major order, with the hash work spread across a
// bounded worker pool.
package plotter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/semaphore"

	"github.com/hashplot/pocminer/internal/plotfile"
	"github.com/hashplot/pocminer/internal/poc"
	"github.com/hashplot/pocminer/internal/pocerr"
)

// TaskCount is the number of nonce sub-ranges a plot job is split into,
// regardless of worker count. A fixed task count keeps chunk size roughly
// even as (end-start) grows, and caps the writer's in-flight backlog.
const TaskCount = 1000

// queueCapacity bounds how many finished chunks can sit in memory waiting
// for the writer goroutine, so a slow disk applies backpressure to the
// workers instead of letting them race arbitrarily far ahead.
const queueCapacity = 4

// Options tunes a Plot call. The zero value plots with runtime.NumCPU()
// workers and no progress output.
type Options struct {
	// Workers caps concurrent hashing goroutines. Zero means runtime.NumCPU().
	Workers int
	// ShowProgress renders an mpb progress bar to standard output while
	// plotting.
	ShowProgress bool
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.NumCPU()
}

type chunkResult struct {
	index int
	start uint64
	data  []byte
}

// Plot computes the full buffers for every nonce in [start, end) under
// addr and writes them, in ascending nonce order, to a new unoptimized
// file under tmpDir. The file is written to a .tmp path and atomically
// renamed to its final .dat name only once every byte has been flushed,
// so a crash mid-plot never leaves a file that RestoreFromDir would pick
// up as complete.
func Plot(ctx context.Context, addr [plotfile.AddrLen]byte, start, end uint64, tmpDir string, opts Options) (plotfile.PlotFile, error) {
	if end <= start {
		return plotfile.PlotFile{}, pocerr.New(pocerr.Precondition, "plot_unoptimized", fmt.Errorf("end %d must be greater than start %d", end, start))
	}

	total := end - start
	taskCount := uint64(TaskCount)
	if taskCount > total {
		taskCount = total
	}

	target := plotfile.PlotFile{Flag: plotfile.Unoptimized, Addr: addr, Start: start, End: end}
	tmpPath := tmpPathFor(tmpDir, target)
	finalPath := finalPathFor(tmpDir, target)

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return plotfile.PlotFile{}, pocerr.New(pocerr.IO, "plot_unoptimized", err)
	}
	defer f.Close()

	if err := f.Truncate(int64(total) * int64(poc.FullLen)); err != nil {
		return plotfile.PlotFile{}, pocerr.New(pocerr.IO, "plot_unoptimized", err)
	}

	var bar *mpb.Bar
	var progress *mpb.Progress
	if opts.ShowProgress {
		progress = mpb.New(mpb.WithWidth(64))
		bar = progress.New(int64(total),
			mpb.BarStyle().Rbound("|"),
			mpb.PrependDecorators(decor.Name("plot ")),
			mpb.AppendDecorators(decor.Percentage()),
		)
	}

	sem := semaphore.NewWeighted(int64(opts.workers()))
	results := make(chan chunkResult, queueCapacity)
	errCh := make(chan error, 1)

	boundaries := chunkBoundaries(start, end, taskCount)

	// Launcher: admit one worker per chunk through the semaphore. The
	// results channel is closed only after every launched worker has
	// finished (or bailed on cancellation), never while a send is pending.
	go func() {
		var wg sync.WaitGroup
		defer func() {
			wg.Wait()
			close(results)
		}()
		for i := 0; i < len(boundaries)-1; i++ {
			chunkStart, chunkEnd := boundaries[i], boundaries[i+1]
			if err := sem.Acquire(ctx, 1); err != nil {
				select {
				case errCh <- err:
				default:
				}
				return
			}
			wg.Add(1)
			go func(index int, chunkStart, chunkEnd uint64) {
				defer wg.Done()
				defer sem.Release(1)
				data := generateChunk(addr, chunkStart, chunkEnd)
				select {
				case results <- chunkResult{index: index, start: chunkStart, data: data}:
				case <-ctx.Done():
				}
			}(i, chunkStart, chunkEnd)
		}
	}()

	// Writer: each chunk lands at its absolute offset via a positioned
	// write, so arrival order doesn't matter and nothing is buffered
	// beyond the channel itself.
	received := uint64(0)
	for r := range results {
		received++
		if bar != nil {
			bar.IncrBy(int(chunkLen(boundaries, r.index)))
		}
		offset := int64(r.start-start) * int64(poc.FullLen)
		if _, err := f.WriteAt(r.data, offset); err != nil {
			return plotfile.PlotFile{}, pocerr.New(pocerr.IO, "plot_unoptimized", err)
		}
	}
	if progress != nil {
		progress.Wait()
	}

	select {
	case err := <-errCh:
		return plotfile.PlotFile{}, pocerr.New(pocerr.IO, "plot_unoptimized", err)
	default:
	}

	if received != taskCount {
		return plotfile.PlotFile{}, pocerr.New(pocerr.IO, "plot_unoptimized", fmt.Errorf("wrote %d of %d chunks", received, taskCount))
	}

	if err := f.Sync(); err != nil {
		return plotfile.PlotFile{}, pocerr.New(pocerr.IO, "plot_unoptimized", err)
	}
	if err := f.Close(); err != nil {
		return plotfile.PlotFile{}, pocerr.New(pocerr.IO, "plot_unoptimized", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return plotfile.PlotFile{}, pocerr.New(pocerr.IO, "plot_unoptimized", err)
	}

	target.Path = finalPath
	return target, nil
}

// generateChunk computes the nonce-major full buffers for [chunkStart,
// chunkEnd), reusing one output/cache pair across the whole chunk.
func generateChunk(addr [plotfile.AddrLen]byte, chunkStart, chunkEnd uint64) []byte {
	n := chunkEnd - chunkStart
	data := make([]byte, n*uint64(poc.FullLen))
	cache := poc.NewCache()
	for i := uint64(0); i < n; i++ {
		out := data[i*uint64(poc.FullLen) : (i+1)*uint64(poc.FullLen)]
		poc.GenerateFull(addr, uint32(chunkStart+i), out, cache)
	}
	return data
}

func chunkBoundaries(start, end, taskCount uint64) []uint64 {
	total := end - start
	bounds := make([]uint64, 0, taskCount+1)
	base := total / taskCount
	remainder := total % taskCount
	cur := start
	bounds = append(bounds, cur)
	for i := uint64(0); i < taskCount; i++ {
		size := base
		if i < remainder {
			size++
		}
		cur += size
		bounds = append(bounds, cur)
	}
	return bounds
}

func chunkLen(boundaries []uint64, index int) uint64 {
	return boundaries[index+1] - boundaries[index]
}

func tmpPathFor(dir string, pf plotfile.PlotFile) string {
	return filepath.Join(dir, pf.Name()+".tmp")
}

func finalPathFor(dir string, pf plotfile.PlotFile) string {
	return filepath.Join(dir, pf.Name())
}
