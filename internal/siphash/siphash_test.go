package siphash

import (
	"testing"

	"github.com/go-quicktest/qt"
)

func TestCTDeterministic(t *testing.T) {
	v0, v1, v2, v3 := DefaultIV()
	a := CT(42, 1, 2, v0, v1, v2, v3)
	b := CT(42, 1, 2, v0, v1, v2, v3)
	qt.Assert(t, qt.Equals(a, b))
}

func TestCTSensitiveToEachInput(t *testing.T) {
	v0, v1, v2, v3 := DefaultIV()
	base := CT(42, 1, 2, v0, v1, v2, v3)

	qt.Assert(t, qt.IsTrue(CT(43, 1, 2, v0, v1, v2, v3) != base))
	qt.Assert(t, qt.IsTrue(CT(42, 2, 2, v0, v1, v2, v3) != base))
	qt.Assert(t, qt.IsTrue(CT(42, 1, 3, v0, v1, v2, v3) != base))
	qt.Assert(t, qt.IsTrue(CT(42, 1, 2, v0+1, v1, v2, v3) != base))
}

func FuzzCTNoCollisionOnAdjacentInputs(f *testing.F) {
	f.Add(uint64(0), uint64(1))
	f.Add(uint64(0xFFFFFFFFFFFFFFFF), uint64(12345))
	f.Fuzz(func(t *testing.T, in, key uint64) {
		v0, v1, v2, v3 := DefaultIV()
		a := CT(in, key, key, v0, v1, v2, v3)
		b := CT(in+1, key, key, v0, v1, v2, v3)
		// Not a cryptographic guarantee, but catches gross bugs like an
		// input parameter being ignored entirely.
		qt.Assert(t, qt.IsTrue(a != b || in+1 == in))
	})
}
