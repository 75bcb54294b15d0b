package opaque

import (
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/llobf/llobf/internal/rng"
)

func TestInvertRecoversOriginal(t *testing.T) {
	s := rng.New(11)
	for i := 0; i < 200; i++ {
		width := 64
		if i%2 == 0 {
			width = 32
		}
		chain := Generate(s, width)
		x := s.Uint64()
		if width == 32 {
			x &= 0xFFFFFFFF
		}
		y := chain.TransformConstant(x)
		got := chain.Invert(y)
		mask := widthMask(width)
		qt.Assert(t, qt.Equals(got&mask, x&mask))
	}
}

func TestChainLengthWithinBounds(t *testing.T) {
	s := rng.New(3)
	for i := 0; i < 100; i++ {
		c := Generate(s, 64)
		qt.Assert(t, qt.IsTrue(len(c.Steps) >= minSteps && len(c.Steps) <= maxSteps))
	}
}

func FuzzOpaqueTransformRoundTrip(f *testing.F) {
	f.Add(uint64(1), uint64(42), 64)
	f.Add(uint64(7), uint64(0), 32)
	f.Fuzz(func(t *testing.T, seed, x uint64, width int) {
		if width != 32 && width != 64 {
			t.Skip()
		}
		s := rng.New(seed | 1)
		chain := Generate(s, width)
		y := chain.TransformConstant(x)
		qt.Assert(t, qt.Equals(chain.Invert(y)&widthMask(width), x&widthMask(width)))
	})
}
