package rng

import (
	"testing"

	"github.com/go-quicktest/qt"
)

func TestSeededDeterminism(t *testing.T) {
	a := New(42)
	b := New(42)

	var seqA, seqB []uint64
	for i := 0; i < 64; i++ {
		seqA = append(seqA, a.RangeU64(0, 1000))
		seqB = append(seqB, b.RangeU64(0, 1000))
	}
	qt.Assert(t, qt.DeepEquals(seqA, seqB))
}

func TestChanceBoundaries(t *testing.T) {
	s := New(7)
	qt.Assert(t, qt.IsFalse(s.Chance(0)))
	qt.Assert(t, qt.IsTrue(s.Chance(100)))
}

func TestRangeU64Bounds(t *testing.T) {
	s := New(1)
	for i := 0; i < 10000; i++ {
		v := s.RangeU64(10, 20)
		qt.Assert(t, qt.IsTrue(v >= 10 && v <= 20))
	}
}

func TestRangeU64SingletonRange(t *testing.T) {
	s := New(1)
	qt.Assert(t, qt.Equals(s.RangeU64(5, 5), uint64(5)))
}

func TestUniformIndexBounds(t *testing.T) {
	s := New(3)
	for i := 0; i < 1000; i++ {
		v := s.UniformIndex(7)
		qt.Assert(t, qt.IsTrue(v >= 0 && v < 7))
	}
}

func TestZeroSeedDrawsNondeterministic(t *testing.T) {
	a := New(0)
	b := New(0)
	qt.Assert(t, qt.IsTrue(a.Seed() != 0))
	qt.Assert(t, qt.IsTrue(b.Seed() != 0))
	// Not a strict guarantee, but with 64 bits of entropy a collision
	// across two draws indicates a broken entropy source.
	qt.Assert(t, qt.IsTrue(a.Seed() != b.Seed()))
}

func FuzzSplitMix32Stream(f *testing.F) {
	f.Add(uint32(0), 16)
	f.Add(uint32(12345), 31)
	f.Add(uint32(0xFFFFFFFF), 1)
	f.Fuzz(func(t *testing.T, seed uint32, n int) {
		if n < 0 || n > 4096 {
			t.Skip()
		}
		original := make([]byte, n)
		for i := range original {
			original[i] = byte(i * 31)
		}

		ciphertext := append([]byte(nil), original...)
		NewSplitMix32(seed).XORStream(ciphertext)

		plaintext := append([]byte(nil), ciphertext...)
		NewSplitMix32(seed).XORStream(plaintext)

		qt.Assert(t, qt.DeepEquals(plaintext, original))
	})
}

func TestSeedForIndex(t *testing.T) {
	qt.Assert(t, qt.Equals(SeedForIndex(0, 0), uint32(0)))
	qt.Assert(t, qt.Equals(SeedForIndex(5, 3), uint32(6)))
}
