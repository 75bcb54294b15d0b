package mba

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/llobf/llobf/internal/rng"
)

// rewriteFunc emits IR computing an algebraic equivalent of some binary
// operator over (lhs, rhs) in b, consuming randomness from s for any
// rewrite that needs a fresh random constant (the add "(b+r) then
// subtract r" form in §4.3's table).
type rewriteFunc func(b *ir.Block, lhs, rhs value.Value, s *rng.Stream) value.Value

var catalogue = map[enum.OpBinary][]rewriteFunc{
	enum.OpSub: {rewriteSub},
	enum.OpAdd: {rewriteAddNot, rewriteAddRandomOffset},
	enum.OpXor: {rewriteXorDeMorgan, rewriteXorOrAndNot, rewriteXorAddSub, rewriteXorDoubleNeg},
	enum.OpOr:  {rewriteOrNot, rewriteOrXorAnd, rewriteOrAddSub},
	enum.OpMul: {rewriteMulOrAnd},
}

func pickRewrite(s *rng.Stream, op enum.OpBinary) (rewriteFunc, bool) {
	choices, ok := catalogue[op]
	if !ok || len(choices) == 0 {
		return nil, false
	}
	return choices[s.UniformIndex(len(choices))], true
}

func negate(b *ir.Block, x value.Value) value.Value {
	zero := constant.NewInt(intType(x), 0)
	return b.NewSub(zero, x)
}

func not(b *ir.Block, x value.Value) value.Value {
	allOnes := constant.NewInt(intType(x), -1)
	return b.NewXor(x, allOnes)
}

func intType(x value.Value) *types.IntType {
	t, ok := x.Type().(*types.IntType)
	if !ok {
		panic("mba: non-integer operand")
	}
	return t
}

// --- sub ---

// x - y == (x ^ -y) + 2*(x & -y)
func rewriteSub(b *ir.Block, x, y value.Value, s *rng.Stream) value.Value {
	negY := negate(b, y)
	xorPart := b.NewXor(x, negY)
	andPart := b.NewAnd(x, negY)
	two := constant.NewInt(intType(x), 2)
	doubled := b.NewMul(andPart, two)
	return b.NewAdd(xorPart, doubled)
}

// --- add ---

// x + y == ^(-x + (-x + ^y))
func rewriteAddNot(b *ir.Block, x, y value.Value, s *rng.Stream) value.Value {
	negX := negate(b, x)
	notY := not(b, y)
	inner := b.NewAdd(negX, notY)
	outer := b.NewAdd(negX, inner)
	return not(b, outer)
}

// (b + r) seeded with random r, then subtract r
func rewriteAddRandomOffset(b *ir.Block, x, y value.Value, s *rng.Stream) value.Value {
	t := intType(x)
	r := constant.NewInt(t, int64(s.Uint64()))
	sum := b.NewAdd(x, r)
	sum2 := b.NewAdd(sum, y)
	return b.NewSub(sum2, r)
}

// --- xor ---

// a ^ b == (~a & b) | (a & ~b)
func rewriteXorDeMorgan(b *ir.Block, a, c value.Value, s *rng.Stream) value.Value {
	notA := not(b, a)
	notC := not(b, c)
	left := b.NewAnd(notA, c)
	right := b.NewAnd(a, notC)
	return b.NewOr(left, right)
}

// (a|b) & ~(a&b)
func rewriteXorOrAndNot(b *ir.Block, a, c value.Value, s *rng.Stream) value.Value {
	or := b.NewOr(a, c)
	and := b.NewAnd(a, c)
	return b.NewAnd(or, not(b, and))
}

// (a+b) - 2*(a&b)
func rewriteXorAddSub(b *ir.Block, a, c value.Value, s *rng.Stream) value.Value {
	sum := b.NewAdd(a, c)
	and := b.NewAnd(a, c)
	two := constant.NewInt(intType(a), 2)
	doubled := b.NewMul(and, two)
	return b.NewSub(sum, doubled)
}

// ~(~a & ~b) & ~(a & b)
func rewriteXorDoubleNeg(b *ir.Block, a, c value.Value, s *rng.Stream) value.Value {
	left := not(b, b.NewAnd(not(b, a), not(b, c)))
	right := not(b, b.NewAnd(a, c))
	return b.NewAnd(left, right)
}

// --- or ---

// a | b == ~(~a & ~b)
func rewriteOrNot(b *ir.Block, a, c value.Value, s *rng.Stream) value.Value {
	return not(b, b.NewAnd(not(b, a), not(b, c)))
}

// a ^ b ^ (a & b)
func rewriteOrXorAnd(b *ir.Block, a, c value.Value, s *rng.Stream) value.Value {
	xor := b.NewXor(a, c)
	and := b.NewAnd(a, c)
	return b.NewXor(xor, and)
}

// (a+b) - (a&b)
func rewriteOrAddSub(b *ir.Block, a, c value.Value, s *rng.Stream) value.Value {
	sum := b.NewAdd(a, c)
	and := b.NewAnd(a, c)
	return b.NewSub(sum, and)
}

// --- mul ---

// b*c == (b|c)*(b&c) + (b & ~c)*(c & ~b)
func rewriteMulOrAnd(b *ir.Block, x, y value.Value, s *rng.Stream) value.Value {
	or := b.NewOr(x, y)
	and := b.NewAnd(x, y)
	left := b.NewMul(or, and)

	xAndNotY := b.NewAnd(x, not(b, y))
	yAndNotX := b.NewAnd(y, not(b, x))
	right := b.NewMul(xAndNotY, yAndNotX)

	return b.NewAdd(left, right)
}
