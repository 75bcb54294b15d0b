package cff

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"go.uber.org/zap"

	"github.com/llobf/llobf/internal/irutil"
	"github.com/llobf/llobf/internal/rng"
)

const minStateValue = 0xF0000

// Run sweeps every function in m for `iterations` passes, flattening
// each eligible function's CFG into a dispatcher state machine.
func Run(m *ir.Module, s *rng.Stream, iterations int, opts Options, log *zap.SugaredLogger) {
	for i := 0; i < iterations; i++ {
		for _, fn := range m.Funcs {
			if !eligible(fn) {
				log.Debugw("cff: skipping function", "func", fn.Ident())
				continue
			}
			flatten(m, fn, s, opts, log)
		}
	}
}

// eligible implements the input guards in §4.7: skip if the function has
// any EH construct, or fewer than 2 blocks.
func eligible(fn *ir.Func) bool {
	if len(fn.Blocks) < 2 {
		return false
	}
	return !irutil.HasEH(fn)
}

func flatten(m *ir.Module, fn *ir.Func, s *rng.Stream, opts Options, log *zap.SugaredLogger) {
	stateType := irutil.PointerIntType(m)
	entry := fn.Blocks[0]

	// 1. Prologue: state slot at entry, initialized to 0.
	stateSlot := &ir.InstAlloca{ElemType: stateType}
	stateSlot.LocalIdent = ir.LocalIdent{LocalName: "cff.state"}
	entry.Insts = append([]ir.Instruction{stateSlot}, entry.Insts...)
	initStore := &ir.InstStore{Src: constant.NewInt(stateType, 0), Dst: stateSlot}
	insertAfterAllocas(entry, initStore)

	// 2. Snapshot the original non-entry blocks.
	originalNonEntry := append([]*ir.Block(nil), fn.Blocks[1:]...)

	// 3. Assign states: uniformly random, unique, excluding small values.
	states := assignStates(s, stateType, originalNonEntry)

	// Build the dispatch chain before rewiring terminators, so the
	// rewire step below can reference the finished dispatch block.
	d := newDispatchBuilder(m, fn, stateSlot, stateType, states, opts, s, log)
	dispatch, defaultBlock := d.build()

	// 5. Rewire terminators: every original block (snapshot) plus entry.
	rewireAll := append([]*ir.Block{entry}, originalNonEntry...)
	for _, b := range rewireAll {
		rewireTerminator(fn, b, stateSlot, stateType, states, dispatch)
	}
	_ = defaultBlock

	// 6. Repair SSA.
	irutil.DemotePHI(fn)
	irutil.DemoteSSA(fn)

	// Post-processing.
	irutil.ShuffleBlocks(fn, s)
	irutil.EnsureAllocasInEntry(fn)
	irutil.DemotePHI(fn)
	irutil.DemoteSSA(fn)
}

func insertAfterAllocas(entry *ir.Block, inst ir.Instruction) {
	idx := 0
	for idx < len(entry.Insts) {
		if _, ok := entry.Insts[idx].(*ir.InstAlloca); !ok {
			break
		}
		idx++
	}
	out := make([]ir.Instruction, 0, len(entry.Insts)+1)
	out = append(out, entry.Insts[:idx]...)
	out = append(out, inst)
	out = append(out, entry.Insts[idx:]...)
	entry.Insts = out
}

// assignStates draws a unique random state value per block, per §4.7
// step 3.
func assignStates(s *rng.Stream, stateType *types.IntType, blocks []*ir.Block) map[*ir.Block]uint64 {
	hi := widthMaxForBits(int(stateType.BitSize))
	seen := make(map[uint64]bool, len(blocks))
	states := make(map[*ir.Block]uint64, len(blocks))
	for _, b := range blocks {
		var v uint64
		for {
			v = s.RangeU64(minStateValue, hi)
			if !seen[v] {
				break
			}
		}
		seen[v] = true
		states[b] = v
	}
	return states
}

func widthMaxForBits(bits int) uint64 {
	if bits >= 64 {
		return 0xFFFFFFFF // keep state values readable; well within 64-bit range
	}
	return (uint64(1) << uint(bits)) - 1
}
