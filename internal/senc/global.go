package senc

import (
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"go.uber.org/zap"

	"github.com/llobf/llobf/internal/irutil"
	"github.com/llobf/llobf/internal/rng"
	"github.com/llobf/llobf/internal/strcrypt"
)

// ctorPriority is arbitrary; nothing in this suite depends on relative
// constructor ordering between passes.
const ctorPriority = 150

const (
	pointerTableName = "senc.ptrs"
	lengthTableName  = "senc.lens"
	ctorFuncName     = "senc.init"
)

// runGlobal implements §4.9.a.
func runGlobal(m *ir.Module, s *rng.Stream, skipPrefix string, log *zap.SugaredLogger) {
	targets := collectGlobalStrings(m, skipPrefix)
	if len(targets) == 0 {
		log.Debugw("senc: no eligible string globals")
		return
	}

	master := uint32(s.Uint64())
	lengths := make([]int, len(targets))
	for i, g := range targets {
		arr := g.Init.(*constant.CharArray)
		lengths[i] = len(arr.X)
		g.Init = constant.NewCharArray(strcrypt.Encrypt(arr.X, master, i))
		g.Immutable = false
	}

	buildGlobalTables(m, targets, lengths)
	buildGlobalCtor(m, targets, lengths, master, log)
	log.Infow("senc: encrypted global strings", "count", len(targets))
}

// collectGlobalStrings selects every global whose initializer is a
// constant character array, excluding llvm.* symbols, debug/llvm
// sections, and the caller's skip prefix (§4.9.a step 1).
func collectGlobalStrings(m *ir.Module, skipPrefix string) []*ir.Global {
	var out []*ir.Global
	for _, g := range m.Globals {
		if _, ok := g.Init.(*constant.CharArray); !ok {
			continue
		}
		if strings.HasPrefix(g.GlobalName, "llvm.") {
			continue
		}
		if strings.HasPrefix(g.Section, ".debug") || strings.HasPrefix(g.Section, "llvm.") {
			continue
		}
		if skipPrefix != "" && strings.HasPrefix(g.GlobalName, skipPrefix) {
			continue
		}
		out = append(out, g)
	}
	return out
}

func decayToI8Ptr(g *ir.Global) constant.Constant {
	return constant.NewGetElementPtr(g.ContentType, g,
		constant.NewInt(types.I64, 0), constant.NewInt(types.I64, 0))
}

// buildGlobalTables builds the parallel pointer/length tables §4.9.a
// step 3 calls for.
func buildGlobalTables(m *ir.Module, targets []*ir.Global, lengths []int) {
	ptrElems := make([]constant.Constant, len(targets))
	lenElems := make([]constant.Constant, len(targets))
	for i, g := range targets {
		ptrElems[i] = decayToI8Ptr(g)
		lenElems[i] = constant.NewInt(types.I64, int64(lengths[i]))
	}

	ptrArrType := types.NewArray(uint64(len(ptrElems)), types.I8Ptr)
	ptrs := m.NewGlobalDef(pointerTableName, constant.NewArray(ptrArrType, ptrElems...))
	ptrs.Linkage = enum.LinkagePrivate

	lenArrType := types.NewArray(uint64(len(lenElems)), types.I64)
	lens := m.NewGlobalDef(lengthTableName, constant.NewArray(lenArrType, lenElems...))
	lens.Linkage = enum.LinkagePrivate
}

// buildGlobalCtor synthesizes the startup decryptor (§4.9.a step 4).
// The pointer/length tables above exist as the parallel metadata
// artifact the format calls for, but each string's length must be
// known at generation time to specialize its keystream's unrolled IR
// (strcrypt.EmitDecryptInPlace, for the same reason xtea.EmitDecipher
// unrolls its rounds), so the ctor decrypts each global directly rather
// than indexing through the tables with a runtime loop counter — see
// DESIGN.md.
func buildGlobalCtor(m *ir.Module, targets []*ir.Global, lengths []int, master uint32, log *zap.SugaredLogger) {
	ctor := m.NewFunc(ctorFuncName, types.Void)
	ctor.Linkage = enum.LinkageInternal
	cur := ctor.NewBlock("entry")

	for i, g := range targets {
		ptr := cur.NewGetElementPtr(g.ContentType, g,
			constant.NewInt(types.I64, 0), constant.NewInt(types.I64, 0))
		seed := rng.SeedForIndex(master, i)
		strcrypt.EmitDecryptInPlace(cur, ptr, lengths[i], seed)
	}
	cur.NewRet(nil)

	irutil.RegisterGlobalCtor(m, ctor, ctorPriority)
	log.Debugw("senc: registered global decryptor", "strings", len(targets))
}
