package cff

import (
	"strings"
	"testing"

	"github.com/go-quicktest/qt"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"go.uber.org/zap"

	"github.com/llobf/llobf/internal/obftool"
	"github.com/llobf/llobf/internal/rng"
	"github.com/llobf/llobf/internal/siphash"
)

func buildDiamond() *ir.Module {
	m := ir.NewModule()
	fn := m.NewFunc("f", types.I32, ir.NewParam("cond", types.I1))
	entry := fn.NewBlock("entry")
	left := fn.NewBlock("left")
	right := fn.NewBlock("right")
	exit := fn.NewBlock("exit")

	entry.NewCondBr(fn.Params[0], left, right)
	left.NewBr(exit)
	right.NewBr(exit)
	exit.NewRet(constant.NewInt(types.I32, 1))

	return m
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func TestFlattenProducesDispatchAndDefaultBlocks(t *testing.T) {
	m := buildDiamond()
	fn := m.Funcs[0]
	s := rng.New(1)

	Run(m, s, 1, Options{}, testLogger())

	var sawDispatch, sawDefault bool
	for _, b := range fn.Blocks {
		switch b.LocalIdent.LocalName {
		case "cff.dispatch":
			sawDispatch = true
		case "cff.default":
			sawDefault = true
		}
	}
	qt.Assert(t, qt.IsTrue(sawDispatch))
	qt.Assert(t, qt.IsTrue(sawDefault))
	qt.Assert(t, qt.IsNil(obftool.Verify(m)))
}

func TestFlattenSkipsSingleBlockFunctions(t *testing.T) {
	m := ir.NewModule()
	fn := m.NewFunc("g", types.Void)
	entry := fn.NewBlock("entry")
	entry.NewRet(nil)

	s := rng.New(1)
	Run(m, s, 1, Options{}, testLogger())

	qt.Assert(t, qt.HasLen(fn.Blocks, 1))
}

func TestFlattenRewritesEntryCondBrTargets(t *testing.T) {
	m := buildDiamond()
	fn := m.Funcs[0]
	s := rng.New(2)

	var left, right *ir.Block
	for _, b := range fn.Blocks {
		switch b.LocalIdent.LocalName {
		case "left":
			left = b
		case "right":
			right = b
		}
	}

	Run(m, s, 1, Options{}, testLogger())

	entry := fn.Blocks[0]
	condbr, ok := entry.Term.(*ir.TermCondBr)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Not(qt.Equals(condbr.TargetTrue, left)))
	qt.Assert(t, qt.Not(qt.Equals(condbr.TargetFalse, right)))
}

func TestFlattenWithAllLayersEnabled(t *testing.T) {
	m := buildDiamond()
	s := rng.New(3)
	opts := Options{
		FuncResolver: 100,
		GlobalState:  100,
		Opaque:       100,
		GlobalOpaque: 100,
		SipHash:      100,
		CloneSipHash: 100,
	}

	Run(m, s, 1, opts, testLogger())

	qt.Assert(t, qt.IsNil(obftool.Verify(m)))

	var sawSipHash bool
	for _, fn := range m.Funcs {
		if strings.HasPrefix(fn.GlobalName, siphash.FuncName) {
			sawSipHash = true
		}
	}
	qt.Assert(t, qt.IsTrue(sawSipHash))
}
