// Package mba implements the Mixed-Boolean-Arithmetic substitution pass
// (§4.3): each eligible binary operator in a function is rewritten into
// an algebraically equivalent but syntactically convoluted expression,
// chosen uniformly at random per site, for `iterations` sweeps.
//
// A small catalogue of interchangeable operations is selected at random
// and applied through a single dispatch point, operating directly on
// LLVM IR instructions rather than a source AST.
package mba

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"

	"github.com/llobf/llobf/internal/irutil"
	"github.com/llobf/llobf/internal/rng"
)

// site is a snapshot of one candidate binary instruction, captured
// before any rewriting begins so the mutation loop never reads the
// container it is mutating (the snapshot-semantics rule of §5).
type site struct {
	block *ir.Block
	index int
	inst  *ir.InstBinOp
}

// Run sweeps every function in m for `iterations` passes, replacing
// every eligible binary operator with a uniformly-random equivalent
// rewrite from the catalogue in §4.3. Functions carrying
// exception-handling constructs are skipped per the shared EH-skip rule.
func Run(m *ir.Module, s *rng.Stream, iterations int) {
	for i := 0; i < iterations; i++ {
		for _, fn := range m.Funcs {
			if fn.Blocks == nil {
				continue // declaration only
			}
			if irutil.HasEH(fn) {
				continue
			}
			runOnFunc(fn, s)
		}
	}
}

func runOnFunc(fn *ir.Func, s *rng.Stream) {
	// Collect candidates first (snapshot), then replace, per §4.3's
	// explicit "avoids iterator invalidation" rule: a replacement's own
	// new instructions may themselves contain matching opcodes.
	var sites []site
	for _, b := range fn.Blocks {
		for idx, inst := range b.Insts {
			if bin, ok := inst.(*ir.InstBinOp); ok && eligible(bin) {
				sites = append(sites, site{block: b, index: idx, inst: bin})
			}
		}
	}

	for _, st := range sites {
		rewrite, ok := pickRewrite(s, st.inst.Op)
		if !ok {
			continue
		}
		// rewrite's b.NewXxx calls always append to the tail of
		// st.block.Insts, regardless of where st.inst sits. Record the
		// tail length first, then splice that newly-appended run into
		// st.inst's own position so any same-block, non-rewritten
		// consumer of st.inst (an icmp, a call, ...) still finds its
		// operand defined earlier in the block.
		before := len(st.block.Insts)
		replacement := rewrite(st.block, st.inst.X, st.inst.Y, s)
		spliceRewrite(st.block, st.inst, before)
		irutil.ReplaceValueInFunc(fn, st.inst, replacement)
	}
}

// spliceRewrite moves the instructions rewrite appended at st.block.Insts[before:]
// into target's original position, removing target itself.
func spliceRewrite(b *ir.Block, target ir.Instruction, before int) {
	newInsts := append([]ir.Instruction(nil), b.Insts[before:]...)
	out := make([]ir.Instruction, 0, len(newInsts)+before)
	for _, inst := range b.Insts[:before] {
		if inst == target {
			out = append(out, newInsts...)
			continue
		}
		out = append(out, inst)
	}
	b.Insts = out
}

func eligible(bin *ir.InstBinOp) bool {
	switch bin.Op {
	case enum.OpAdd, enum.OpSub, enum.OpMul, enum.OpXor, enum.OpOr:
		return true
	default:
		return false
	}
}
