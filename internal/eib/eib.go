// Package eib implements the Encrypted Indirect Branch pass (§4.8):
// selected direct branches are replaced with an indirect branch through
// a per-function table whose entries are XTEA-enciphered at program
// startup and deciphered back in place at each branch site.
//
// The overall "encrypt now, decrypt at the use site" shape builds an
// encrypted blob plus a matching decoder call, applied here to basic
// block addresses instead of string literals; the table layout and
// shared-slot-pair selection for conditional branches follows
// indirect_branch_enc.cpp.
package eib

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"go.uber.org/zap"

	"github.com/llobf/llobf/internal/irutil"
	"github.com/llobf/llobf/internal/rng"
	"github.com/llobf/llobf/internal/xtea"
)

// tableMagic is the repeated header marker scenario 4 checks for
// (three copies, per §4.8 step 3).
const tableMagic = 0xDEADBEEF

// ctorPriority is an arbitrary mid-range global-constructor priority;
// nothing in this suite depends on relative ctor ordering across passes.
const ctorPriority = 200

// Run sweeps every function in m for `iterations` passes, replacing a
// `chance` percent sample of its direct branches with encrypted
// indirect branches.
func Run(m *ir.Module, s *rng.Stream, iterations int, chance int, log *zap.SugaredLogger) {
	for i := 0; i < iterations; i++ {
		for _, fn := range m.Funcs {
			if !eligible(fn) {
				log.Debugw("eib: skipping function", "func", fn.Ident())
				continue
			}
			transformFunc(m, fn, s, chance, log)
		}
	}
}

// eligible implements §4.8's input guards: skip functions with fewer
// than 2 blocks, no branch terminators, or any EH construct.
func eligible(fn *ir.Func) bool {
	if len(fn.Blocks) < 2 || irutil.HasEH(fn) {
		return false
	}
	for _, b := range fn.Blocks {
		switch b.Term.(type) {
		case *ir.TermBr, *ir.TermCondBr:
			return true
		}
	}
	return false
}

// slot is one table-entry group: a single unconditional target, or a
// conditional branch's true/false pair sharing one key schedule
// (§4.8's supplemented shared-slot-pair behaviour).
type slot struct {
	blocks []*ir.Block
	params xtea.Params
	base   int // index of blocks[0] in the table's target region
}

func transformFunc(m *ir.Module, fn *ir.Func, s *rng.Stream, chance int, log *zap.SugaredLogger) {
	branches := collectBranches(fn, s, chance)
	if len(branches) == 0 {
		return
	}
	// Rewritten branches reach their targets through new decipher blocks,
	// so PHIs keyed on the original predecessors are spilled to memory first.
	irutil.DemotePHI(fn)

	master := uint32(s.Uint64())
	slots := assignSlots(branches, master)

	table := buildTable(m, fn, master, slots)
	buildCtor(m, fn, table, slots, log)

	for i, site := range branches {
		rewireBranch(fn, site, table, slots[i])
	}
}

// derivedParams draws one XTEA key schedule from the deterministic
// SplitMix32 stream seeded by (master, slotIndex), per §4.8 step 2.
func derivedParams(master uint32, slotIndex int) xtea.Params {
	sm := rng.NewSplitMix32(rng.SeedForIndex(master, slotIndex))
	var p xtea.Params
	for i := range p.Key {
		p.Key[i] = sm.Next()
	}
	p.Delta = sm.Next()
	p.Rounds = 1 + int(sm.Next()%3)
	return p
}

func tableName(fn *ir.Func) string {
	return fmt.Sprintf("eib.table.%s", fn.GlobalName)
}

func ctorName(fn *ir.Func) string {
	return fmt.Sprintf("eib.init.%s", fn.GlobalName)
}
