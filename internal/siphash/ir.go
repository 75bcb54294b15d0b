package siphash

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// FuncName is the base name given to the linked-in SipHash definition.
// Scenario 3 in §8 requires the module to contain at least one
// "___siphash"-named definition after CFF runs with use-siphash enabled.
const FuncName = "___siphash"

// Emit builds the canonical SipHash-2-4-over-single-64-bit-input function
// and inserts it into m with internal linkage, matching the signature
// quoted in §4.5: i64 (i64 in, i64 k0, i64 k1, i64 v0, i64 v1, i64 v2, i64 v3).
//
// The returned function is not yet normalized: callers must run
// irutil.DemoteSSA and irutil.DemotePHI on it before later passes
// inline or transform it, per §4.5's "normalise" step. Emit itself never
// produces PHI nodes (the round function is straight-line code), so that
// step is a no-op in practice but is still required by contract.
func Emit(m *ir.Module) *ir.Func {
	i64 := types.I64

	pIn := ir.NewParam("in", i64)
	pK0 := ir.NewParam("k0", i64)
	pK1 := ir.NewParam("k1", i64)
	pV0 := ir.NewParam("v0", i64)
	pV1 := ir.NewParam("v1", i64)
	pV2 := ir.NewParam("v2", i64)
	pV3 := ir.NewParam("v3", i64)

	fn := m.NewFunc(FuncName, i64, pIn, pK0, pK1, pV0, pV1, pV2, pV3)
	fn.Linkage = enum.LinkageInternal

	entry := fn.NewBlock("entry")

	v0 := entry.NewXor(pV0, pK0)
	v1 := entry.NewXor(pV1, pK1)
	v2 := entry.NewXor(pV2, pK0)
	v3 := entry.NewXor(pV3, pK1)
	v3 = entry.NewXor(v3, pIn)

	v0, v1, v2, v3 = emitRound(entry, v0, v1, v2, v3)
	v0, v1, v2, v3 = emitRound(entry, v0, v1, v2, v3)

	v0 = entry.NewXor(v0, pIn)
	v2 = entry.NewXor(v2, constant.NewInt(i64, 0xff))

	for i := 0; i < 4; i++ {
		v0, v1, v2, v3 = emitRound(entry, v0, v1, v2, v3)
	}

	r := entry.NewXor(v0, v1)
	r = entry.NewXor(r, v2)
	r = entry.NewXor(r, v3)
	entry.NewRet(r)

	return fn
}

// emitRotl emits IR for a 64-bit left rotate by a compile-time-known
// amount: (x << n) | (x >> (64-n)). LLVM has no native rotate
// instruction, so this is the standard shl/lshr/or expansion.
func emitRotl(b *ir.Block, x value.Value, n uint64) value.Value {
	i64 := types.I64
	left := b.NewShl(x, constant.NewInt(i64, int64(n)))
	right := b.NewLShr(x, constant.NewInt(i64, int64(64-n)))
	return b.NewOr(left, right)
}

// emitRound emits one SipHash mix round, mirroring sipRound in
// siphash.go instruction-for-instruction so CT stays byte-exact with the
// IR this produces.
func emitRound(b *ir.Block, v0, v1, v2, v3 value.Value) (value.Value, value.Value, value.Value, value.Value) {
	v0 = b.NewAdd(v0, v1)
	v1 = emitRotl(b, v1, 13)
	v1 = b.NewXor(v1, v0)
	v0 = emitRotl(b, v0, 32)

	v2 = b.NewAdd(v2, v3)
	v3 = emitRotl(b, v3, 16)
	v3 = b.NewXor(v3, v2)

	v0 = b.NewAdd(v0, v3)
	v3 = emitRotl(b, v3, 21)
	v3 = b.NewXor(v3, v0)

	v2 = b.NewAdd(v2, v1)
	v1 = emitRotl(b, v1, 17)
	v1 = b.NewXor(v1, v2)
	v2 = emitRotl(b, v2, 32)

	return v0, v1, v2, v3
}

// Clone re-emits a fresh, independent copy of the canonical SipHash
// definition under a new name with internal linkage, marked alwaysinline
// — the "clone-siphash" option in §4.7/§4.5: each call site targets a
// different definition so static analysis can't key on one fixed symbol.
//
// Clone only ever needs to duplicate Emit's own single-block output (no
// other caller constructs a SipHash definition), so it re-runs the same
// instruction builder under a fresh name rather than walking and
// remapping an arbitrary function body.
func Clone(m *ir.Module, suffix int) *ir.Func {
	clone := Emit(m)
	clone.GlobalIdent = ir.GlobalIdent{GlobalName: fmt.Sprintf("%s_%d", FuncName, suffix)}
	clone.FuncAttrs = append(clone.FuncAttrs, enum.FuncAttrAlwaysInline)
	return clone
}
