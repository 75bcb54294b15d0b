package mba

import (
	"math/bits"
	"testing"

	"github.com/go-quicktest/qt"
)

// These mirror the pure arithmetic identities each rewriteFunc emits as
// IR (§4.3's table), checked directly over uint64 to confirm the
// formulas hold over 64-bit modular arithmetic before trusting the IR
// builders in catalogue.go to encode them faithfully.

func subFormula(x, y uint64) uint64 { return (x ^ (-y)) + 2*(x&(-y)) }

func addNotFormula(x, y uint64) uint64 { return ^(-x + (-x + ^y)) }

func xorDeMorganFormula(a, b uint64) uint64 { return (^a & b) | (a & ^b) }
func xorOrAndNotFormula(a, b uint64) uint64 { return (a | b) & ^(a & b) }
func xorAddSubFormula(a, b uint64) uint64   { return (a + b) - 2*(a&b) }
func xorDoubleNegFormula(a, b uint64) uint64 {
	return ^(^a & ^b) & ^(a & b)
}

func orNotFormula(a, b uint64) uint64    { return ^(^a & ^b) }
func orXorAndFormula(a, b uint64) uint64 { return a ^ b ^ (a & b) }
func orAddSubFormula(a, b uint64) uint64 { return (a + b) - (a & b) }

func mulOrAndFormula(b, c uint64) uint64 {
	return (b|c)*(b&c) + (b & ^c)*(c & ^b)
}

func FuzzMBAEquivalence(f *testing.F) {
	f.Add(uint64(0), uint64(0))
	f.Add(uint64(1), uint64(2))
	f.Add(^uint64(0), uint64(12345))
	f.Fuzz(func(t *testing.T, x, y uint64) {
		qt.Assert(t, qt.Equals(subFormula(x, y), x-y))
		qt.Assert(t, qt.Equals(addNotFormula(x, y), x+y))

		qt.Assert(t, qt.Equals(xorDeMorganFormula(x, y), x^y))
		qt.Assert(t, qt.Equals(xorOrAndNotFormula(x, y), x^y))
		qt.Assert(t, qt.Equals(xorAddSubFormula(x, y), x^y))
		qt.Assert(t, qt.Equals(xorDoubleNegFormula(x, y), x^y))

		qt.Assert(t, qt.Equals(orNotFormula(x, y), x|y))
		qt.Assert(t, qt.Equals(orXorAndFormula(x, y), x|y))
		qt.Assert(t, qt.Equals(orAddSubFormula(x, y), x|y))

		qt.Assert(t, qt.Equals(mulOrAndFormula(x, y), x*y))
	})
}

func TestRotateSanity(t *testing.T) {
	qt.Assert(t, qt.Equals(bits.RotateLeft64(1, 1), uint64(2)))
}
