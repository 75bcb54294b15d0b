package senc

import (
	"fmt"
	"sort"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"go.uber.org/zap"

	"github.com/llobf/llobf/internal/irutil"
	"github.com/llobf/llobf/internal/rng"
	"github.com/llobf/llobf/internal/strcrypt"
)

const memcpyName = "llvm.memcpy.p0i8.p0i8.i64"

// runStack implements §4.9.b: each eligible string gets its own
// encrypted copy and is decrypted into a fresh stack buffer right
// before every use, instead of living decrypted for the module's whole
// lifetime as in global mode.
func runStack(m *ir.Module, s *rng.Stream, skipPrefix string, log *zap.SugaredLogger) {
	targets := collectGlobalStrings(m, skipPrefix)

	for _, g := range targets {
		if !hasOnlyInstructionUses(m, g) {
			log.Debugw("senc: skipping string with non-instruction use", "name", g.GlobalName)
			continue
		}

		arr := g.Init.(*constant.CharArray)
		length := len(arr.X)
		seed := uint32(s.Uint64())

		encCopy := m.NewGlobalDef(g.GlobalName+".enc", constant.NewCharArray(strcrypt.EncryptSeeded(arr.X, seed)))
		encCopy.Linkage = enum.LinkagePrivate

		rewrote := false
		for _, fn := range m.Funcs {
			uses := irutil.FindInstUses(fn, g)
			if len(uses) == 0 {
				continue
			}
			stackifyUses(m, fn, g, encCopy, length, seed, uses)
			irutil.EnsureAllocasInEntry(fn)
			rewrote = true
		}

		if rewrote {
			eraseGlobal(m, g)
			log.Infow("senc: stack-encrypted string", "name", g.GlobalName, "length", length)
		}
	}
}

// hasOnlyInstructionUses validates §4.9.b's precondition: every use of g
// must be a plain instruction operand, never part of another global's
// constant-expression initializer.
func hasOnlyInstructionUses(m *ir.Module, g *ir.Global) bool {
	for _, other := range m.Globals {
		if other == g {
			continue
		}
		if constantReferencesGlobal(other.Init, g) {
			return false
		}
	}
	return true
}

func constantReferencesGlobal(c constant.Constant, target *ir.Global) bool {
	if c == nil {
		return false
	}
	if g, ok := c.(*ir.Global); ok {
		return g == target
	}
	switch v := c.(type) {
	case *constant.Array:
		for _, e := range v.Elems {
			if constantReferencesGlobal(e, target) {
				return true
			}
		}
	case *constant.Struct:
		for _, f := range v.Fields {
			if constantReferencesGlobal(f, target) {
				return true
			}
		}
	case *constant.ExprGetElementPtr:
		if constantReferencesGlobal(v.Src, target) {
			return true
		}
		for _, idx := range v.Indices {
			if constantReferencesGlobal(idx, target) {
				return true
			}
		}
	case *constant.ExprBitCast:
		return constantReferencesGlobal(v.From, target)
	case *constant.ExprPtrToInt:
		return constantReferencesGlobal(v.From, target)
	}
	return false
}

// stackifyUses allocates the entry-block buffer and, for every captured
// use of g, splits its block, inserts the memcpy-then-decrypt sequence,
// and replaces g with the buffer pointer. Uses sharing a block are
// processed highest-index first so earlier splits don't invalidate
// later ones' recorded block/index.
func stackifyUses(m *ir.Module, fn *ir.Func, g *ir.Global, encCopy *ir.Global, length int, seed uint32, uses []irutil.InstUse) {
	entry := fn.Blocks[0]
	buf := entry.NewAlloca(types.NewArray(uint64(length), types.I8))

	byBlock := map[*ir.Block][]irutil.InstUse{}
	for _, u := range uses {
		byBlock[u.Block] = append(byBlock[u.Block], u)
	}

	for block, blockUses := range byBlock {
		sort.Slice(blockUses, func(i, j int) bool { return blockUses[i].Index > blockUses[j].Index })
		for _, use := range blockUses {
			rewireUse(m, fn, block, use, encCopy, buf, length, seed)
		}
	}

	irutil.ReplaceValueInFunc(fn, g, buf)
}

var stackSeq int

func freshStackName(prefix string) string {
	stackSeq++
	return fmt.Sprintf("%s.%d", prefix, stackSeq)
}

// rewireUse implements §4.9.b step 3: split block right before the use,
// emit the memcpy-plus-decrypt sequence into a new body block, rejoin.
func rewireUse(m *ir.Module, fn *ir.Func, block *ir.Block, use irutil.InstUse, encCopy *ir.Global, buf *ir.InstAlloca, length int, seed uint32) {
	tail := fn.NewBlock(freshStackName("senc.use"))
	tail.Insts = append([]ir.Instruction(nil), block.Insts[use.Index:]...)
	tail.Term = block.Term

	body := fn.NewBlock(freshStackName("senc.decrypt"))
	src := body.NewGetElementPtr(encCopy.ContentType, encCopy,
		constant.NewInt(types.I64, 0), constant.NewInt(types.I64, 0))
	dst := body.NewGetElementPtr(buf.ElemType, buf,
		constant.NewInt(types.I64, 0), constant.NewInt(types.I64, 0))
	body.NewCall(memcpyDecl(m), dst, src, constant.NewInt(types.I64, int64(length)), constant.NewInt(types.I1, 0))
	strcrypt.EmitDecryptInPlace(body, dst, length, seed)
	body.NewBr(tail)

	block.Insts = block.Insts[:use.Index]
	block.NewBr(body)
}

func memcpyDecl(m *ir.Module) *ir.Func {
	for _, fn := range m.Funcs {
		if fn.GlobalName == memcpyName {
			return fn
		}
	}
	fn := m.NewFunc(memcpyName, types.Void,
		ir.NewParam("", types.I8Ptr),
		ir.NewParam("", types.I8Ptr),
		ir.NewParam("", types.I64),
		ir.NewParam("", types.I1))
	return fn
}

func eraseGlobal(m *ir.Module, g *ir.Global) {
	out := m.Globals[:0]
	for _, other := range m.Globals {
		if other != g {
			out = append(out, other)
		}
	}
	m.Globals = out
}
