// Package rng provides the single seeded pseudorandom stream that drives
// every pass's nondeterministic choices: percent-chance gates, uniform
// index selection, and inclusive ranges.
//
// A seed of 0 means "draw a seed from a nondeterministic source"; the
// drawn seed is reported by Stream.Seed so callers can log it for
// reproduction.
package rng

import (
	"crypto/rand"
	"encoding/binary"
	mathrand "math/rand"
)

// Stream is a deterministic 64-bit random stream. It is not safe for
// concurrent use: each module is obfuscated single-threaded, and a
// Stream is owned by exactly one caller at a time.
type Stream struct {
	r    *mathrand.Rand
	seed uint64
}

// New constructs a Stream. A seed of 0 draws a fresh seed from
// crypto/rand and reports it via Seed so the caller can log it.
func New(seed uint64) *Stream {
	if seed == 0 {
		seed = drawSeed()
	}
	return &Stream{
		r:    mathrand.New(mathrand.NewSource(int64(seed))),
		seed: seed,
	}
}

func drawSeed() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is effectively unrecoverable on any real
		// platform; fall back to a fixed, clearly-non-random seed rather
		// than panic, so a single bad draw cannot crash a whole pipeline.
		return 0x9E3779B97F4A7C15
	}
	return binary.LittleEndian.Uint64(buf[:])
}

// Seed returns the seed this stream was constructed from (the drawn value
// when the caller passed 0).
func (s *Stream) Seed() uint64 { return s.seed }

// Chance reports true with probability p%, 0 <= p <= 100.
func (s *Stream) Chance(p int) bool {
	if p <= 0 {
		return false
	}
	if p >= 100 {
		return true
	}
	return s.r.Intn(100) < p
}

// RangeU64 returns a uniform value in [lo, hi] inclusive. Panics if
// hi < lo, which indicates a programming error in the caller.
func (s *Stream) RangeU64(lo, hi uint64) uint64 {
	if hi < lo {
		panic("rng: RangeU64 hi < lo")
	}
	span := hi - lo
	if span == 0 {
		return lo
	}
	if span == ^uint64(0) {
		return lo + s.r.Uint64()
	}
	return lo + s.r.Uint64()%(span+1)
}

// UniformIndex returns a uniform value in [0, n).
func (s *Stream) UniformIndex(n int) int {
	if n <= 0 {
		panic("rng: UniformIndex n <= 0")
	}
	return s.r.Intn(n)
}

// Uint32 returns a uniform 32-bit value.
func (s *Stream) Uint32() uint32 { return s.r.Uint32() }

// Uint64 returns a uniform 64-bit value.
func (s *Stream) Uint64() uint64 { return s.r.Uint64() }

// Bytes fills buf with uniform random bytes drawn from the stream.
func (s *Stream) Bytes(buf []byte) {
	_, _ = s.r.Read(buf)
}

// Shuffle permutes a slice of length n in place using the stream,
// matching math/rand.Shuffle's Fisher-Yates algorithm so the sequence of
// draws is reproducible across platforms for a given seed.
func (s *Stream) Shuffle(n int, swap func(i, j int)) {
	s.r.Shuffle(n, swap)
}
