// Package siphash implements the compile-time SipHash-2-4-over-a-single-
// 64-bit-input routine used by the CFF pass's optional state-hash layer
// (§4.5, §4.7), plus the emitter that builds the same function as LLVM
// IR in the target module so the exact same function also runs at
// runtime.
//
// The runtime definition is constructed instruction by instruction with
// the IR builder (see ir.go); no IR text is carried or parsed. It lives
// in the target module rather than in a Go package because the consumer
// of the hash is the obfuscated binary itself, not the obfuscator
// process.
package siphash

import "math/bits"

// CT computes SipHash-2-4 over a single 64-bit input, byte-exactly
// matching the IR emitted by Emit (see ir.go), so the CFF pass can check
// for hash collisions among candidate states before committing to a key
// schedule.
func CT(in, k0, k1, v0, v1, v2, v3 uint64) uint64 {
	v0 ^= k0
	v1 ^= k1
	v2 ^= k0
	v3 ^= k1
	v3 ^= in

	sipRound(&v0, &v1, &v2, &v3)
	sipRound(&v0, &v1, &v2, &v3)

	v0 ^= in
	v2 ^= 0xff

	sipRound(&v0, &v1, &v2, &v3)
	sipRound(&v0, &v1, &v2, &v3)
	sipRound(&v0, &v1, &v2, &v3)
	sipRound(&v0, &v1, &v2, &v3)

	return v0 ^ v1 ^ v2 ^ v3
}

func sipRound(v0, v1, v2, v3 *uint64) {
	*v0 += *v1
	*v1 = bits.RotateLeft64(*v1, 13)
	*v1 ^= *v0
	*v0 = bits.RotateLeft64(*v0, 32)

	*v2 += *v3
	*v3 = bits.RotateLeft64(*v3, 16)
	*v3 ^= *v2

	*v0 += *v3
	*v3 = bits.RotateLeft64(*v3, 21)
	*v3 ^= *v0

	*v2 += *v1
	*v1 = bits.RotateLeft64(*v1, 17)
	*v1 ^= *v2
	*v2 = bits.RotateLeft64(*v2, 32)
}

// DefaultIV returns the four default SipHash initialization constants
// ("somepseudorandomlygeneratedbytes" split into 64-bit little-endian
// words), used whenever a caller doesn't supply its own v0..v3.
func DefaultIV() (v0, v1, v2, v3 uint64) {
	return 0x736f6d6570736575, 0x646f72616e646f6d, 0x6c7967656e657261, 0x7465646279746573
}
