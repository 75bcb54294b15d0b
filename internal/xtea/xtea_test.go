package xtea

import (
	"testing"

	"github.com/go-quicktest/qt"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
)

func TestRoundTripTable(t *testing.T) {
	cases := []Params{
		{Key: [4]uint32{1, 2, 3, 4}, Delta: 0x9E3779B9, Rounds: 1},
		{Key: [4]uint32{0xDEADBEEF, 0, 1, 0xFFFFFFFF}, Delta: 0x9E3779B9, Rounds: 2},
		{Key: [4]uint32{0x11111111, 0x22222222, 0x33333333, 0x44444444}, Delta: 0x61C88647, Rounds: 3},
	}
	plaintexts := []uint64{0, 1, 0xFFFFFFFFFFFFFFFF, 0x0123456789ABCDEF, 0x8000000000000000}

	for _, p := range cases {
		for _, pt := range plaintexts {
			ct := EncipherCT(pt, p)
			got := DecipherCT(ct, p)
			qt.Assert(t, qt.Equals(got, pt))
		}
	}
}

func TestEmitDecipherSplitsIntoThreeBlocks(t *testing.T) {
	m := ir.NewModule()
	fn := m.NewFunc("f", types.I64)
	entry := fn.NewBlock("entry")

	p := Params{Key: [4]uint32{1, 2, 3, 4}, Delta: 0x9E3779B9, Rounds: 2}
	ct := constant.NewInt(types.I64, int64(EncipherCT(0x42, p)))
	cont, plain := EmitDecipher(fn, entry, ct, p, "t")

	qt.Assert(t, qt.HasLen(fn.Blocks, 3))
	qt.Assert(t, qt.Equals(fn.Blocks[2], cont))
	qt.Assert(t, qt.Not(qt.IsNil(plain)))

	entryBr, ok := entry.Term.(*ir.TermBr)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(entryBr.Target, fn.Blocks[1]))
}

func TestEmitEncipherSplitsIntoThreeBlocks(t *testing.T) {
	m := ir.NewModule()
	fn := m.NewFunc("f", types.I64)
	entry := fn.NewBlock("entry")

	p := Params{Key: [4]uint32{5, 6, 7, 8}, Delta: 0x9E3779B9, Rounds: 3}
	pt := constant.NewInt(types.I64, 0x42)
	cont, cipher := EmitEncipher(fn, entry, pt, p, "t")

	qt.Assert(t, qt.HasLen(fn.Blocks, 3))
	qt.Assert(t, qt.Equals(fn.Blocks[2], cont))
	qt.Assert(t, qt.Not(qt.IsNil(cipher)))
}

func FuzzXTEARoundTrip(f *testing.F) {
	f.Add(uint64(0), uint32(1), uint32(2), uint32(3), uint32(4), uint32(0x9E3779B9), 1)
	f.Add(uint64(0x0123456789ABCDEF), uint32(0xDEADBEEF), uint32(0), uint32(1), uint32(0xFFFFFFFF), uint32(0x61C88647), 3)
	f.Fuzz(func(t *testing.T, v uint64, k0, k1, k2, k3, delta uint32, rounds int) {
		if rounds < 1 || rounds > 3 {
			t.Skip()
		}
		p := Params{Key: [4]uint32{k0, k1, k2, k3}, Delta: delta, Rounds: rounds}
		got := DecipherCT(EncipherCT(v, p), p)
		qt.Assert(t, qt.Equals(got, v))
	})
}
