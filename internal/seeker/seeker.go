// Package seeker scans an optimized plot file for a nonce whose work
// value satisfies a target, either sequentially or split across a
// worker per CPU.
package seeker

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/hashplot/pocminer/internal/poc"
	"github.com/hashplot/pocminer/internal/pocerr"
	"github.com/hashplot/pocminer/internal/xuint256"
)

// Result is a successful seek outcome.
type Result struct {
	Nonce uint32
	Work  [32]byte
}

// Seek scans the scope band for previousHash across nonces [start, end) in
// an already-optimized plot file and returns the first nonce whose work
// value is less than target. When multi is true the band is split into at
// most runtime.NumCPU() contiguous sub-ranges of bandLen/NumCPU+1 nonces
// (the last one shorter), each scanned by its own goroutine; the first
// goroutine to find a satisfying nonce wins; since
// goroutines run concurrently, which one reports first - and therefore
// which nonce is returned when more than one satisfies the target - is not
// deterministic. A caller that needs the lowest satisfying nonce should use
// the single-threaded path.
func Seek(path string, start, end uint64, previousHash, target [32]byte, blockTime uint32, multi bool) (Result, error) {
	if end <= start {
		return Result{}, pocerr.New(pocerr.Precondition, "seek_file", fmt.Errorf("end %d must be greater than start %d", end, start))
	}

	f, err := os.Open(path)
	if err != nil {
		return Result{}, pocerr.New(pocerr.IO, "seek_file", err)
	}
	defer f.Close()

	scopeIndex := poc.ScopeIndex(previousHash)
	bandLen := end - start
	startPos := int64(scopeIndex) * 32 * int64(bandLen)

	started := time.Now()

	if multi {
		return seekMulti(f, startPos, start, end, previousHash, target, blockTime, started)
	}
	return seekSingle(f, startPos, start, end, previousHash, target, blockTime, started)
}

func seekSingle(f *os.File, startPos int64, start, end uint64, previousHash, target [32]byte, blockTime uint32, started time.Time) (Result, error) {
	if _, err := f.Seek(startPos, io.SeekStart); err != nil {
		return Result{}, pocerr.New(pocerr.IO, "seek_file", err)
	}

	// One buffered reader over the scope band: the band is read
	// sequentially 32 bytes at a time, which would otherwise be one
	// syscall per nonce.
	r := bufio.NewReaderSize(f, 64*1024)

	var buf [32]byte
	for nonce := start; nonce < end; nonce++ {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Result{}, pocerr.New(pocerr.IO, "seek_file", fmt.Errorf("reading scope slice for nonce %d: %w", nonce, err))
		}
		work := poc.WorkFromScope(blockTime, buf, previousHash)
		if xuint256.LessLE(work, target) {
			return Result{Nonce: uint32(nonce), Work: work}, nil
		}
	}
	return Result{}, pocerr.New(pocerr.NotFound, "seek_file", fmt.Errorf("full seeked but not found enough work, %s elapsed", time.Since(started)))
}

type workerFound struct {
	found bool
	res   Result
}

func seekMulti(f *os.File, startPos int64, start, end uint64, previousHash, target [32]byte, blockTime uint32, started time.Time) (Result, error) {
	if _, err := f.Seek(startPos, io.SeekStart); err != nil {
		return Result{}, pocerr.New(pocerr.IO, "seek_file", err)
	}

	cpuCount := runtime.NumCPU()
	bandLen := end - start
	stepSize := bandLen/uint64(cpuCount) + 1

	results := make(chan workerFound, cpuCount)
	dispatched := 0
	pos := start

	for i := 0; i < cpuCount && pos < end; i++ {
		chunkLen := stepSize
		if pos+chunkLen > end {
			chunkLen = end - pos
		}
		buf := make([]byte, chunkLen*32)
		n, err := readFull(f, buf)
		if err != nil {
			return Result{}, pocerr.New(pocerr.IO, "seek_file", err)
		}
		nonceCount := uint64(n) / 32
		chunkStart := pos
		chunkEnd := chunkStart + nonceCount
		pos += nonceCount
		dispatched++

		go func(chunkStart, chunkEnd uint64, buf []byte) {
			for nonce := chunkStart; nonce < chunkEnd; nonce++ {
				idx := nonce - chunkStart
				var scopeHash [32]byte
				copy(scopeHash[:], buf[idx*32:idx*32+32])
				work := poc.WorkFromScope(blockTime, scopeHash, previousHash)
				if xuint256.LessLE(work, target) {
					results <- workerFound{found: true, res: Result{Nonce: uint32(nonce), Work: work}}
					return
				}
			}
			results <- workerFound{found: false}
		}(chunkStart, chunkEnd, buf)

		if nonceCount < chunkLen {
			break
		}
	}

	var winner *Result
	for i := 0; i < dispatched; i++ {
		r := <-results
		if r.found && winner == nil {
			winner = &r.res
		}
	}

	if winner == nil {
		return Result{}, pocerr.New(pocerr.NotFound, "seek_file", fmt.Errorf("full seeked but not found enough work, %s elapsed", time.Since(started)))
	}
	return *winner, nil
}

// readFull reads until buf is full or the file is exhausted, returning a
// short count (and no error) on a clean EOF instead of io.ErrUnexpectedEOF.
// seekMulti already sizes each buffer to its chunk, so a short count only
// happens when the file ends before the band does; seekMulti then scans
// the nonces it did read and dispatches no further chunks.
func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil && err != io.EOF {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}
