package senc

import (
	"testing"

	"github.com/go-quicktest/qt"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"go.uber.org/zap"

	"github.com/llobf/llobf/internal/obftool"
	"github.com/llobf/llobf/internal/rng"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func plaintextGlobal(m *ir.Module, name, text string) *ir.Global {
	g := m.NewGlobalDef(name, constant.NewCharArray([]byte(text)))
	g.Immutable = true
	return g
}

func buildModuleWithString(text string) (*ir.Module, *ir.Global, *ir.Func) {
	m := ir.NewModule()
	str := plaintextGlobal(m, "msg", text)

	fn := m.NewFunc("puts", types.I32, ir.NewParam("", types.I8Ptr))

	caller := m.NewFunc("report", types.Void)
	entry := caller.NewBlock("entry")
	ptr := entry.NewGetElementPtr(str.ContentType, str, constant.NewInt(types.I64, 0), constant.NewInt(types.I64, 0))
	entry.NewCall(fn, ptr)
	entry.NewRet(nil)

	return m, str, caller
}

func TestGlobalModeEncryptsAndRegistersCtor(t *testing.T) {
	m, str, _ := buildModuleWithString("hello, world")
	plain := append([]byte(nil), str.Init.(*constant.CharArray).X...)

	s := rng.New(7)
	Run(m, s, ModeGlobal, "", testLogger())

	got := str.Init.(*constant.CharArray).X
	qt.Assert(t, qt.Not(qt.DeepEquals(got, plain)))
	qt.Assert(t, qt.IsFalse(str.Immutable))

	var sawCtor, sawPtrTable, sawLenTable bool
	for _, g := range m.Globals {
		switch g.GlobalName {
		case "llvm.global_ctors":
			sawCtor = true
		case pointerTableName:
			sawPtrTable = true
		case lengthTableName:
			sawLenTable = true
		}
	}
	qt.Assert(t, qt.IsTrue(sawCtor))
	qt.Assert(t, qt.IsTrue(sawPtrTable))
	qt.Assert(t, qt.IsTrue(sawLenTable))
	qt.Assert(t, qt.IsNil(obftool.Verify(m)))
}

func TestGlobalModeSkipsFilteredPrefix(t *testing.T) {
	m, str, _ := buildModuleWithString("secret text")
	plain := append([]byte(nil), str.Init.(*constant.CharArray).X...)

	s := rng.New(1)
	Run(m, s, ModeGlobal, "msg", testLogger())

	got := str.Init.(*constant.CharArray).X
	qt.Assert(t, qt.DeepEquals(got, plain))
}

func TestGlobalModeSkipsDebugSection(t *testing.T) {
	m := ir.NewModule()
	str := plaintextGlobal(m, "dbgstr", "debug only")
	str.Section = ".debug_str"
	plain := append([]byte(nil), str.Init.(*constant.CharArray).X...)

	s := rng.New(3)
	Run(m, s, ModeGlobal, "", testLogger())

	got := str.Init.(*constant.CharArray).X
	qt.Assert(t, qt.DeepEquals(got, plain))
}

func TestStackModeReplacesUseAndErasesOriginal(t *testing.T) {
	m, str, caller := buildModuleWithString("stack me")

	s := rng.New(11)
	Run(m, s, ModeStack, "", testLogger())

	for _, g := range m.Globals {
		qt.Assert(t, qt.Not(qt.Equals(g, str)))
	}

	var sawAlloca, sawMemcpy bool
	for _, b := range caller.Blocks {
		for _, inst := range b.Insts {
			if _, ok := inst.(*ir.InstAlloca); ok {
				sawAlloca = true
			}
			if call, ok := inst.(*ir.InstCall); ok {
				if fn, ok := call.Callee.(*ir.Func); ok && fn.GlobalName == memcpyName {
					sawMemcpy = true
				}
			}
		}
	}
	qt.Assert(t, qt.IsTrue(sawAlloca))
	qt.Assert(t, qt.IsTrue(sawMemcpy))
	qt.Assert(t, qt.IsNil(obftool.Verify(m)))
}

func TestStackModeSkipsStringReferencedByAnotherGlobal(t *testing.T) {
	m, str, _ := buildModuleWithString("shared")

	ptr := constant.NewGetElementPtr(str.ContentType, str, constant.NewInt(types.I64, 0), constant.NewInt(types.I64, 0))
	holder := m.NewGlobalDef("holder", ptr)
	holder.Linkage = enum.LinkagePrivate

	s := rng.New(5)
	Run(m, s, ModeStack, "", testLogger())

	var stillPresent bool
	for _, g := range m.Globals {
		if g == str {
			stillPresent = true
		}
	}
	qt.Assert(t, qt.IsTrue(stillPresent))
}
