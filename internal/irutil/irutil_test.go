package irutil

import (
	"testing"

	"github.com/go-quicktest/qt"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"github.com/llobf/llobf/internal/rng"
)

func buildDiamond() *ir.Func {
	m := ir.NewModule()
	fn := m.NewFunc("f", types.Void)
	entry := fn.NewBlock("entry")
	left := fn.NewBlock("left")
	right := fn.NewBlock("right")
	exit := fn.NewBlock("exit")

	entry.NewCondBr(constTrue(), left, right)
	left.NewBr(exit)
	right.NewBr(exit)
	exit.NewRet(nil)

	return fn
}

func constTrue() *ir.Param {
	// A dummy value.Value-compatible placeholder; irutil's graph
	// functions never need to evaluate it, only compare identities.
	return ir.NewParam("cond", types.I1)
}

func TestSuccessorsAndPredecessors(t *testing.T) {
	fn := buildDiamond()
	entry, left, right, exit := fn.Blocks[0], fn.Blocks[1], fn.Blocks[2], fn.Blocks[3]

	succs := Successors(entry)
	qt.Assert(t, qt.DeepEquals(succs, []*ir.Block{left, right}))

	preds := Predecessors(fn, exit)
	qt.Assert(t, qt.HasLen(preds, 2))
}

func TestShuffleBlocksKeepsEntryFirst(t *testing.T) {
	fn := buildDiamond()
	entry := fn.Blocks[0]
	s := rng.New(5)
	ShuffleBlocks(fn, s)
	qt.Assert(t, qt.Equals(fn.Blocks[0], entry))
	qt.Assert(t, qt.HasLen(fn.Blocks, 4))
}

func TestHasEHFalseForPlainFunc(t *testing.T) {
	fn := buildDiamond()
	qt.Assert(t, qt.IsFalse(HasEH(fn)))
}
