package eib

import (
	"testing"

	"github.com/go-quicktest/qt"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"go.uber.org/zap"

	"github.com/llobf/llobf/internal/rng"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func buildMax() *ir.Module {
	m := ir.NewModule()
	fn := m.NewFunc("max", types.I32, ir.NewParam("a", types.I32), ir.NewParam("b", types.I32))
	entry := fn.NewBlock("entry")
	aGtB := fn.NewBlock("a_gt_b")
	bWins := fn.NewBlock("b_wins")
	exit := fn.NewBlock("exit")

	cmp := entry.NewICmp(enum.IPredSGT, fn.Params[0], fn.Params[1])
	entry.NewCondBr(cmp, aGtB, bWins)
	aGtB.NewBr(exit)
	bWins.NewBr(exit)
	exit.NewRet(constant.NewInt(types.I32, 0))

	return m
}

func TestTransformEmitsTableAndIndirectBranch(t *testing.T) {
	m := buildMax()
	s := rng.New(42)

	Run(m, s, 1, 100, testLogger())

	var sawTable, sawIndirectBr, sawCtorArray bool
	for _, g := range m.Globals {
		if g.GlobalName == "eib.table.max" {
			sawTable = true
		}
		if g.GlobalName == "llvm.global_ctors" {
			sawCtorArray = true
		}
	}
	for _, fn := range m.Funcs {
		for _, b := range fn.Blocks {
			if _, ok := b.Term.(*ir.TermIndirectBr); ok {
				sawIndirectBr = true
			}
		}
	}

	qt.Assert(t, qt.IsTrue(sawTable))
	qt.Assert(t, qt.IsTrue(sawCtorArray))
	qt.Assert(t, qt.IsTrue(sawIndirectBr))
}

func TestTransformSkipsFunctionsWithoutBranches(t *testing.T) {
	m := ir.NewModule()
	fn := m.NewFunc("g", types.Void)
	entry := fn.NewBlock("entry")
	entry.NewRet(nil)

	s := rng.New(1)
	Run(m, s, 1, 100, testLogger())

	qt.Assert(t, qt.HasLen(fn.Blocks, 1))
}
