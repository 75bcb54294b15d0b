package cff

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

var rewireCounter int

func freshRewireName(prefix string) string {
	rewireCounter++
	return fmt.Sprintf("%s.%d", prefix, rewireCounter)
}

// rewireTerminator implements §4.7 step 5: every original block's
// terminator is replaced with code that stores the successor's assigned
// state and branches into the dispatcher, rather than branching directly.
// Conditional branches get a pair of tiny state-storing blocks, one per
// arm, so the condition itself survives unmodified. Any other terminator
// (ret, switch, indirectbr, unreachable) is left untouched — those
// blocks are sinks or already out of scope for flattening.
func rewireTerminator(fn *ir.Func, b *ir.Block, stateSlot value.Value, stateType *types.IntType, states map[*ir.Block]uint64, dispatch *ir.Block) {
	switch t := b.Term.(type) {
	case *ir.TermBr:
		storeState(b, stateSlot, stateType, states[t.Target])
		b.NewBr(dispatch)
	case *ir.TermCondBr:
		trueBlock := fn.NewBlock(freshRewireName("cff.true_state"))
		storeState(trueBlock, stateSlot, stateType, states[t.TargetTrue])
		trueBlock.NewBr(dispatch)

		falseBlock := fn.NewBlock(freshRewireName("cff.false_state"))
		storeState(falseBlock, stateSlot, stateType, states[t.TargetFalse])
		falseBlock.NewBr(dispatch)

		b.NewCondBr(t.Cond, trueBlock, falseBlock)
	default:
		// ret, switch, indirectbr, unreachable, invoke: left alone. EH
		// terminators never reach here because eligible rejects the whole
		// function first; switch/indirectbr are valid exits from a
		// flattened region and simply bypass the dispatcher.
	}
}

func storeState(b *ir.Block, stateSlot value.Value, stateType *types.IntType, state uint64) {
	b.NewStore(constant.NewInt(stateType, int64(state)), stateSlot)
}
