package irutil

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
)

const ctorsName = "llvm.global_ctors"

var ctorEntryType = types.NewStruct(types.I32, types.NewPointer(types.NewFunc(types.Void)), types.I8Ptr)

// RegisterGlobalCtor appends fn (a void() function taking no arguments)
// to the module's llvm.global_ctors array with the given priority, so
// the platform's startup sequence runs it before main — used by SENC's
// global-mode decryptor and EIB's per-function table-encipherment routine
// (§4.9.a, §4.8's table-construction step).
//
// If llvm.global_ctors already exists (e.g. a previous pass in the same
// pipeline registered one), the new entry is appended to the existing
// array rather than replacing it, so composing passes in sequence keeps
// every registered constructor.
func RegisterGlobalCtor(m *ir.Module, fn *ir.Func, priority int64) {
	entry := constant.NewStruct(ctorEntryType,
		constant.NewInt(types.I32, priority),
		fn,
		constant.NewNull(types.I8Ptr),
	)

	for _, g := range m.Globals {
		if g.GlobalName != ctorsName {
			continue
		}
		arr, ok := g.Init.(*constant.Array)
		if !ok {
			break
		}
		elems := append(append([]constant.Constant(nil), arr.Elems...), entry)
		newArrType := types.NewArray(uint64(len(elems)), ctorEntryType)
		g.ContentType = newArrType
		g.Init = constant.NewArray(newArrType, elems...)
		return
	}

	arrType := types.NewArray(1, ctorEntryType)
	g := m.NewGlobalDef(ctorsName, constant.NewArray(arrType, entry))
	g.Linkage = enum.LinkageAppending
}
