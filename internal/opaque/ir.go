package opaque

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/llobf/llobf/internal/rng"
)

// GlobalConstChance, when non-nil, decides per-constant whether to load
// the step constant from a private global instead of inlining it, per
// §4.4's "configurable by a percent-chance parameter".
type GlobalConstChance struct {
	Percent int
	Stream  *rng.Stream
}

// TransformValue emits IR computing the forward chain over v, matching
// TransformConstant instruction-for-instruction so the two stay in
// lock-step per the §4.4/§8 contract. m is the module the chain's
// constants may be hoisted into (only used when globalChance fires);
// namePrefix distinguishes the globals of concurrently-emitted chains.
func TransformValue(m *ir.Module, b *ir.Block, v value.Value, c Chain, namePrefix string, globalChance *GlobalConstChance) value.Value {
	intType := intTypeForWidth(c.Width)
	cur := v
	for i, step := range c.Steps {
		k := constantOperand(m, intType, step.Const, fmt.Sprintf("%s_opq%d", namePrefix, i), globalChance)
		cur = emitStep(b, step, cur, k, c.Width)
	}
	return cur
}

func intTypeForWidth(width int) *types.IntType {
	if width <= 32 {
		return types.I32
	}
	return types.I64
}

// constantOperand returns either an inline constant.Int or a freshly
// created private global holding that constant, per GlobalConstChance;
// emitStep loads the global's value before using it.
func constantOperand(m *ir.Module, t *types.IntType, val uint64, name string, gc *GlobalConstChance) value.Value {
	lit := constant.NewInt(t, int64(val))
	if gc == nil || !gc.Stream.Chance(gc.Percent) {
		return lit
	}
	g := m.NewGlobalDef(name, lit)
	g.Linkage = enum.LinkagePrivate
	g.Immutable = true
	// Hand back the global's address; emitStep emits the load in the
	// block being built, once per use site.
	return g
}

// emitStep emits one forward primitive (mirrors applyStep exactly).
func emitStep(b *ir.Block, step Step, v, k value.Value, width int) value.Value {
	// constantOperand may have returned a *ir.Global (address), which
	// needs an explicit load before use as an integer operand.
	if g, ok := k.(*ir.Global); ok {
		k = b.NewLoad(g.ContentType, g)
	}
	switch step.Op {
	case OpXOR:
		return b.NewXor(v, k)
	case OpADD:
		return b.NewAdd(v, k)
	case OpSUB:
		return b.NewSub(v, k)
	case OpROL:
		return emitRotl(b, v, k, width)
	case OpROR:
		return emitRotr(b, v, k, width)
	default:
		panic("opaque: unknown op")
	}
}

// emitRotl emits (v << (k mod width)) | (v >> (width - (k mod width))).
func emitRotl(b *ir.Block, v, k value.Value, width int) value.Value {
	t := intTypeForWidth(width)
	wideConst := constant.NewInt(t, int64(width))
	kmod := b.NewURem(k, wideConst)
	left := b.NewShl(v, kmod)
	inv := b.NewSub(wideConst, kmod)
	right := b.NewLShr(v, inv)
	return b.NewOr(left, right)
}

func emitRotr(b *ir.Block, v, k value.Value, width int) value.Value {
	t := intTypeForWidth(width)
	wideConst := constant.NewInt(t, int64(width))
	kmod := b.NewURem(k, wideConst)
	right := b.NewLShr(v, kmod)
	inv := b.NewSub(wideConst, kmod)
	left := b.NewShl(v, inv)
	return b.NewOr(left, right)
}
