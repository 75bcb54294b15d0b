// Package irutil provides the shared IR-shape utilities every pass
// needs before or after rewriting a function's control-flow graph:
// demoting SSA values and PHI nodes to stack slots, keeping allocas in
// the entry block, shuffling block order, computing predecessors on
// demand, and detecting exception-handling constructs to skip.
//
// The rule of thumb throughout: when a rewrite is about to make a
// function's CFG unrecognizable, spill all PHI-fed and cross-block
// values into entry-allocated stack slots first, rather than trying to
// repair SSA form after the fact.
package irutil

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/llobf/llobf/internal/rng"
)

// HasEH reports whether fn contains any exception-handling construct
// (landing pad, resume, invoke). Passes MUST skip the whole function
// when this is true, per §4.7/§4.8's input guards and §9's design note.
func HasEH(fn *ir.Func) bool {
	for _, b := range fn.Blocks {
		switch b.Term.(type) {
		case *ir.TermInvoke, *ir.TermResume:
			return true
		}
		for _, inst := range b.Insts {
			if _, ok := inst.(*ir.InstLandingPad); ok {
				return true
			}
		}
	}
	return false
}

// Predecessors derives the predecessor set of block on demand by
// scanning every other block's terminator for a reference to it. Per
// §9's design note, predecessor pointers are never embedded in the
// block struct itself — blocks are identified by their stable *ir.Block
// handle and predecessors are always recomputed from the function's
// current terminator set.
func Predecessors(fn *ir.Func, block *ir.Block) []*ir.Block {
	var preds []*ir.Block
	for _, b := range fn.Blocks {
		if b == block {
			continue
		}
		for _, succ := range Successors(b) {
			if succ == block {
				preds = append(preds, b)
				break
			}
		}
	}
	return preds
}

// Successors returns the list of blocks a terminator can transfer
// control to.
func Successors(b *ir.Block) []*ir.Block {
	switch t := b.Term.(type) {
	case *ir.TermBr:
		return []*ir.Block{t.Target}
	case *ir.TermCondBr:
		return []*ir.Block{t.TargetTrue, t.TargetFalse}
	case *ir.TermSwitch:
		succs := []*ir.Block{t.TargetDefault}
		for _, c := range t.Cases {
			succs = append(succs, c.Target)
		}
		return succs
	case *ir.TermIndirectBr:
		return append([]*ir.Block(nil), t.ValidTargets...)
	default:
		return nil
	}
}

// EnsureAllocasInEntry moves every alloca instruction in fn to the
// prologue of the entry block, preserving their relative order, so the
// stack frame layout stays stable (§4.2).
func EnsureAllocasInEntry(fn *ir.Func) {
	if len(fn.Blocks) == 0 {
		return
	}
	entry := fn.Blocks[0]

	var allocas []*ir.InstAlloca
	for _, b := range fn.Blocks {
		if b == entry {
			continue
		}
		var kept []ir.Instruction
		for _, inst := range b.Insts {
			if a, ok := inst.(*ir.InstAlloca); ok {
				allocas = append(allocas, a)
				continue
			}
			kept = append(kept, inst)
		}
		b.Insts = kept
	}
	if len(allocas) == 0 {
		return
	}

	// Entry's own allocas must stay first and in place; appended ones go
	// right after them, still before any non-alloca instruction.
	var entryAllocas, rest []ir.Instruction
	for _, inst := range entry.Insts {
		if _, ok := inst.(*ir.InstAlloca); ok {
			entryAllocas = append(entryAllocas, inst)
		} else {
			rest = append(rest, inst)
		}
	}
	merged := make([]ir.Instruction, 0, len(entry.Insts)+len(allocas))
	merged = append(merged, entryAllocas...)
	for _, a := range allocas {
		merged = append(merged, a)
	}
	merged = append(merged, rest...)
	entry.Insts = merged
}

// ShuffleBlocks pseudo-randomly reorders fn's non-entry blocks. The
// relative order of the entry block is fixed (§4.2).
func ShuffleBlocks(fn *ir.Func, s *rng.Stream) {
	if len(fn.Blocks) <= 2 {
		return
	}
	rest := fn.Blocks[1:]
	s.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
}

var demoteCounter int

func freshAllocaName(prefix string) string {
	demoteCounter++
	return fmt.Sprintf("%s.%d", prefix, demoteCounter)
}

// DemotePHI replaces every PHI node in fn with an alloca at function
// entry, a store at the end of each incoming predecessor, and a load at
// the original PHI's position (§4.2). Mandatory before CFF's dispatcher
// rewrite, since PHIs cannot survive having their predecessor set
// rewritten out from under them.
func DemotePHI(fn *ir.Func) {
	if len(fn.Blocks) == 0 {
		return
	}
	entry := fn.Blocks[0]

	for _, b := range fn.Blocks {
		var phis []*ir.InstPhi
		var rest []ir.Instruction
		for _, inst := range b.Insts {
			if p, ok := inst.(*ir.InstPhi); ok {
				phis = append(phis, p)
			} else {
				rest = append(rest, inst)
			}
		}
		if len(phis) == 0 {
			continue
		}
		b.Insts = rest

		for _, p := range phis {
			elemType := p.Type()
			slot := ir.NewAlloca(elemType)
			slot.LocalIdent = ir.LocalIdent{LocalName: freshAllocaName("phi.slot")}
			prependAlloca(entry, slot)

			for _, inc := range p.Incs {
				insertStoreBeforeTerm(inc.Pred, inc.X, slot)
			}

			load := &ir.InstLoad{ElemType: elemType, Src: slot}
			load.LocalIdent = ir.LocalIdent{LocalName: freshAllocaName("phi.val")}
			b.Insts = append([]ir.Instruction{load}, b.Insts...)
			replaceValueInFunc(fn, p, load)
		}
	}
}

func prependAlloca(entry *ir.Block, a *ir.InstAlloca) {
	entry.Insts = append([]ir.Instruction{a}, entry.Insts...)
}

func insertStoreBeforeTerm(b *ir.Block, src value.Value, dst value.Value) {
	store := &ir.InstStore{Src: src, Dst: dst}
	b.Insts = append(b.Insts, store)
}

// DemoteSSA spills every non-void, non-terminator value whose definition
// does not dominate one of its uses to an alloca at function entry: a
// store at the definition, a load before each offending use. Idempotent,
// per §4.2 — running it twice does no additional work.
//
// A full dominance computation is unnecessary here: after CFF rewires
// every block into dispatcher-mediated jumps, essentially every
// cross-block value needs spilling anyway, so the function approximates
// "used outside its defining block" as the demotion trigger (entry-block
// allocas excepted, since they dominate every use), which is a
// safe (if slightly more conservative) superset of the precise
// dominance-failure condition in §4.2.
func DemoteSSA(fn *ir.Func) {
	if len(fn.Blocks) == 0 {
		return
	}
	entry := fn.Blocks[0]

	defBlock := map[value.Value]*ir.Block{}
	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			if v, ok := inst.(value.Value); ok {
				defBlock[v] = b
			}
		}
	}

	for v, home := range defBlock {
		// Entry-block allocas (including the slots this function creates)
		// dominate every use, so they are never spilled.
		if _, isAlloca := v.(*ir.InstAlloca); isAlloca && home == entry {
			continue
		}
		if !hasCrossBlockUse(fn, v, home) {
			continue
		}
		t := v.Type()
		if _, isVoid := t.(*types.VoidType); isVoid {
			continue
		}
		slot := ir.NewAlloca(t)
		slot.LocalIdent = ir.LocalIdent{LocalName: freshAllocaName("ssa.slot")}
		prependAlloca(entry, slot)

		insertStoreAfter(home, v, slot)
		replaceCrossBlockUses(fn, v, home, slot, t)
	}
}

func hasCrossBlockUse(fn *ir.Func, v value.Value, home *ir.Block) bool {
	for _, b := range fn.Blocks {
		if b == home {
			continue
		}
		for _, inst := range b.Insts {
			if usesValue(inst, v) {
				return true
			}
		}
		if termUsesValue(b.Term, v) {
			return true
		}
	}
	return false
}

func insertStoreAfter(home *ir.Block, v value.Value, slot value.Value) {
	inst, ok := v.(ir.Instruction)
	if !ok {
		return
	}
	idx := -1
	for i, other := range home.Insts {
		if other == inst {
			idx = i
			break
		}
	}
	store := &ir.InstStore{Src: v, Dst: slot}
	if idx < 0 {
		home.Insts = append(home.Insts, store)
		return
	}
	out := make([]ir.Instruction, 0, len(home.Insts)+1)
	out = append(out, home.Insts[:idx+1]...)
	out = append(out, store)
	out = append(out, home.Insts[idx+1:]...)
	home.Insts = out
}

// replaceCrossBlockUses inserts a load right before every instruction
// (outside home) that uses v, and rewrites that instruction's operand to
// point at the load.
func replaceCrossBlockUses(fn *ir.Func, v value.Value, home *ir.Block, slot value.Value, t types.Type) {
	for _, b := range fn.Blocks {
		if b == home {
			continue
		}
		var out []ir.Instruction
		for _, inst := range b.Insts {
			if usesValue(inst, v) {
				load := &ir.InstLoad{ElemType: t, Src: slot}
				load.LocalIdent = ir.LocalIdent{LocalName: freshAllocaName("ssa.val")}
				out = append(out, load)
				replaceOperand(inst, v, load)
			}
			out = append(out, inst)
		}
		b.Insts = out

		if termUsesValue(b.Term, v) {
			load := &ir.InstLoad{ElemType: t, Src: slot}
			load.LocalIdent = ir.LocalIdent{LocalName: freshAllocaName("ssa.val")}
			b.Insts = append(b.Insts, load)
			replaceTermOperand(b.Term, v, load)
		}
	}
}

// ReplaceValueInFunc rewrites every operand in fn (instructions and
// terminators) equal to old to point at repl instead. Shared by every
// pass that substitutes one value for another after rewriting an
// instruction (MBA's per-site rewrite, CFF/EIB's terminator rewiring).
func ReplaceValueInFunc(fn *ir.Func, old, repl value.Value) {
	replaceValueInFunc(fn, old, repl)
}

func replaceValueInFunc(fn *ir.Func, old, repl value.Value) {
	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			replaceOperand(inst, old, repl)
		}
		replaceTermOperand(b.Term, old, repl)
	}
}

// FuncDataLayoutWidth reports the dispatcher state integer width for
// the module fn belongs to, per §9: pointer-width integer type, 32 or
// 64 bits depending on the data layout.
func FuncDataLayoutWidth(m *ir.Module) int {
	if m.DataLayout != "" {
		// A handful of common layout strings carry p:64:64 or p:32:32;
		// anything else defaults to 64, matching most host targets.
		for _, token := range splitDataLayout(m.DataLayout) {
			if len(token) > 2 && token[0] == 'p' && token[1] == ':' {
				var bitsWidth int
				fmt.Sscanf(token[2:], "%d", &bitsWidth)
				if bitsWidth == 32 || bitsWidth == 64 {
					return bitsWidth
				}
			}
		}
	}
	return 64
}

func splitDataLayout(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '-' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// PointerIntType returns the integer type matching the module's pointer
// width.
func PointerIntType(m *ir.Module) *types.IntType {
	if FuncDataLayoutWidth(m) == 32 {
		return types.I32
	}
	return types.I64
}
