package eib

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/value"

	"github.com/llobf/llobf/internal/rng"
)

// branchSite is one selected direct branch awaiting rewrite. cond is
// nil for an unconditional branch.
type branchSite struct {
	block *ir.Block
	cond  value.Value
	trueB *ir.Block
	falseB *ir.Block
}

// collectBranches snapshots every br/condbr terminator in fn and samples
// it by chance percent, per §4.8 step 1. Snapshot semantics: the whole
// list is captured before any rewrite begins, so later mutation of a
// block's terminator can't perturb this scan.
func collectBranches(fn *ir.Func, s *rng.Stream, chance int) []branchSite {
	var sites []branchSite
	for _, b := range fn.Blocks {
		switch t := b.Term.(type) {
		case *ir.TermBr:
			if s.Chance(chance) {
				sites = append(sites, branchSite{block: b, trueB: t.Target})
			}
		case *ir.TermCondBr:
			if s.Chance(chance) {
				sites = append(sites, branchSite{block: b, cond: t.Cond, trueB: t.TargetTrue, falseB: t.TargetFalse})
			}
		}
	}
	return sites
}

// assignSlots builds one table slot per branch site: a single-block
// slot for an unconditional branch, a two-block slot sharing one key
// schedule for a conditional branch's true/false pair.
func assignSlots(sites []branchSite, master uint32) []slot {
	slots := make([]slot, 0, len(sites))
	base := 0
	for i, site := range sites {
		var blocks []*ir.Block
		if site.cond == nil {
			blocks = []*ir.Block{site.trueB}
		} else {
			blocks = []*ir.Block{site.trueB, site.falseB}
		}
		slots = append(slots, slot{
			blocks: blocks,
			params: derivedParams(master, i),
			base:   base,
		})
		base += len(blocks)
	}
	return slots
}
