// Package xuint256 holds the handful of little-endian 256-bit integer
// operations the PoC engine needs: the scope-index reduction and the
// work-vs-target comparison. Nothing here is PoC-specific; it is kept
// separate so both poc and seeker can depend on it without a cycle.
package xuint256

import (
	"encoding/binary"
	"math/big"
)

// ScopeCount is the number of 32-byte scopes in one nonce's full buffer
// (LOOP_COUNT * HASH_LEN / 32).
const ScopeCount = 16384

// PutUint32LE writes v into buf[0:4] as little-endian bytes. buf must be
// at least 4 bytes long; this is a thin, explicitly-named wrapper around
// binary.LittleEndian.PutUint32 so callers encoding a nonce don't reach
// for encoding/binary directly.
func PutUint32LE(buf []byte, v uint32) {
	binary.LittleEndian.PutUint32(buf, v)
}

// Uint32LE reads a little-endian uint32 from buf[0:4]. buf must be at
// least 4 bytes long.
func Uint32LE(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf)
}

// Mod16384LE interprets hash as a little-endian 256-bit unsigned integer
// and returns hash mod ScopeCount. math/big.Int.SetBytes expects
// big-endian input, so the byte order is reversed first.
func Mod16384LE(hash [32]byte) uint16 {
	var rev [32]byte
	for i, b := range hash {
		rev[31-i] = b
	}
	v := new(big.Int).SetBytes(rev[:])
	v.Mod(v, big.NewInt(ScopeCount))
	return uint16(v.Uint64())
}

// LessLE reports whether work < target, interpreting both as 256-bit
// little-endian unsigned integers. It walks from the most significant
// byte (index 31) down to the least significant (index 0).
func LessLE(work, target [32]byte) bool {
	for i := 31; i >= 0; i-- {
		switch {
		case work[i] < target[i]:
			return true
		case work[i] > target[i]:
			return false
		}
	}
	return false
}
