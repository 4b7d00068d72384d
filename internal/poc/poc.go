// Package poc implements the proof-of-capacity generator: a fixed,
// bit-exact derivation that turns (address, nonce) into a 524288-byte
// full buffer, plus the scope reduction and work-hash wrapper built on
// top of it.
//
// The hot loop below runs LoopCount BLAKE2b-512 calls per nonce, so it
// uses the SIMD-accelerated github.com/minio/blake2b-simd engine rather
// than a pure-Go digest.
package poc

import (
	"fmt"

	"github.com/minio/blake2b-simd"

	"github.com/hashplot/pocminer/internal/xuint256"
)

const (
	// LoopCount is the number of BLAKE2b-512 iterations folded into the
	// generator cache, and the number of 64-byte rows in the full buffer.
	LoopCount = 8192
	// HashLen is the BLAKE2b-512 digest size in bytes.
	HashLen = 64
	// AddrLen is the fixed address size: a 1-byte type prefix plus a
	// 20-byte hash.
	AddrLen = 21
	// SeedLen is the address plus the 4-byte little-endian nonce.
	SeedLen = AddrLen + 4
	// FullLen is the size of one nonce's full buffer.
	FullLen = LoopCount * HashLen
	// CacheLen is the size of the scratch cache GenerateFull needs.
	CacheLen = SeedLen + FullLen
	// ScopeSize is the width of one scope slice.
	ScopeSize = 32
	// ScopeCount is the number of scope slices per full buffer.
	ScopeCount = FullLen / ScopeSize
)

// NewOutput returns a zeroed buffer sized for GenerateFull's out
// parameter. Callers that generate many nonces in a row should allocate
// this once and reuse it.
func NewOutput() []byte { return make([]byte, FullLen) }

// NewCache returns a zeroed scratch buffer sized for GenerateFull's cache
// parameter. Safe to reuse across nonces: every byte of cache[0:FullLen]
// is overwritten by the fold loop before it is read, and the seed region
// is overwritten explicitly at the start of every call.
func NewCache() []byte { return make([]byte, CacheLen) }

// GenerateFull populates out with the 524288-byte full buffer for
// (addr, nonce). out must be exactly FullLen bytes and cache exactly
// CacheLen bytes; both are programmer preconditions and panic on
// mismatch. GenerateFull is pure and allocation-free given correctly
// sized buffers.
func GenerateFull(addr [AddrLen]byte, nonce uint32, out, cache []byte) {
	if len(out) != FullLen {
		panic(fmt.Sprintf("poc: out must be %d bytes, got %d", FullLen, len(out)))
	}
	if len(cache) != CacheLen {
		panic(fmt.Sprintf("poc: cache must be %d bytes, got %d", CacheLen, len(cache)))
	}

	// seed: ..-[addr 21 bytes]-[nonce 4 bytes] at the tail of cache
	xuint256.PutUint32LE(cache[CacheLen-4:], nonce)
	copy(cache[CacheLen-SeedLen:CacheLen-4], addr[:])

	// fold: hash[i] = BLAKE2b-512(cache[start:min(start+1024,CacheLen)]),
	// written immediately before the window it was read from, walking
	// from the tail toward the head. The window's upper bound is clamped
	// to CacheLen for the first iterations, which is intentional: the first
	// window is just the 25-byte seed, and each later window grows by 64
	// bytes until it reaches the full 1024.
	startIndex := CacheLen - SeedLen
	for i := 0; i < LoopCount; i++ {
		start := startIndex - i*HashLen
		end := start + 1024
		if end > CacheLen {
			end = CacheLen
		}
		h := blake2b.Sum512(cache[start:end])
		copy(cache[start-HashLen:start], h[:])
	}

	finalHash := blake2b.Sum512(cache)

	for p := 0; p < FullLen; p++ {
		inner := p % HashLen
		outer := p / HashLen
		out[p] = finalHash[inner] ^ cache[(LoopCount-outer-1)*HashLen+inner]
	}
}

// ScopeIndex selects the 32-byte scope used for mining a given block:
// previousHash read as a little-endian 256-bit integer, mod ScopeCount.
func ScopeIndex(previousHash [32]byte) uint16 {
	return xuint256.Mod16384LE(previousHash)
}

// WorkFromScope computes the final 32-byte work value from a scope slice
// that has already been picked out of a full buffer (or read directly off
// an optimized plot file, which is exactly that slice on disk).
func WorkFromScope(blockTime uint32, scopeHash, previousHash [32]byte) [32]byte {
	var buf [4 + 32 + 32]byte
	xuint256.PutUint32LE(buf[0:4], blockTime)
	copy(buf[4:36], scopeHash[:])
	copy(buf[36:68], previousHash[:])
	sum := blake2b.Sum512(buf[:])
	var work [32]byte
	copy(work[:], sum[:32])
	return work
}

// Hash is the one-shot convenience wrapper: generate the full buffer for
// (addr, nonce), pick its scope slice per previousHash, and fold that into
// the final work value. It allocates a fresh output/cache pair each call;
// callers generating many nonces (the plotter) should call GenerateFull
// directly with reused buffers instead.
func Hash(addr [AddrLen]byte, nonce uint32, blockTime uint32, previousHash [32]byte) [32]byte {
	out := NewOutput()
	cache := NewCache()
	GenerateFull(addr, nonce, out, cache)

	idx := ScopeIndex(previousHash)
	var scopeHash [32]byte
	copy(scopeHash[:], out[int(idx)*ScopeSize:int(idx)*ScopeSize+ScopeSize])

	return WorkFromScope(blockTime, scopeHash, previousHash)
}
