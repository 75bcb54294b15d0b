package eib

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"go.uber.org/zap"

	"github.com/llobf/llobf/internal/irutil"
	"github.com/llobf/llobf/internal/xtea"
)

// buildTable allocates the per-function table: a 4-entry header (three
// 0xDEADBEEF magics, one master-seed slot), then one zero-initialized
// i64 slot per target block, to be filled in by the startup ctor
// (§4.8 step 3). Entries are always 64 bits wide, "padded on 32-bit
// targets", per spec.
func buildTable(m *ir.Module, fn *ir.Func, master uint32, slots []slot) *ir.Global {
	total := 0
	for _, sl := range slots {
		total += len(sl.blocks)
	}

	elems := make([]constant.Constant, 0, 4+total)
	elems = append(elems,
		constant.NewInt(types.I64, tableMagic),
		constant.NewInt(types.I64, tableMagic),
		constant.NewInt(types.I64, tableMagic),
		constant.NewInt(types.I64, int64(master)),
	)
	for i := 0; i < total; i++ {
		elems = append(elems, constant.NewInt(types.I64, 0))
	}

	arrType := types.NewArray(uint64(len(elems)), types.I64)
	g := m.NewGlobalDef(tableName(fn), constant.NewArray(arrType, elems...))
	g.Linkage = enum.LinkagePrivate
	return g
}

// buildCtor synthesizes the per-function constructor that, once at
// program startup, enciphers each target block's address and writes
// the result into its table slot — the only point at which a target's
// address is a concrete runtime value the emitted cipher can consume.
func buildCtor(m *ir.Module, fn *ir.Func, table *ir.Global, slots []slot, log *zap.SugaredLogger) {
	ctor := m.NewFunc(ctorName(fn), types.Void)
	ctor.Linkage = enum.LinkageInternal
	cur := ctor.NewBlock("entry")

	for _, sl := range slots {
		for j, blk := range sl.blocks {
			idx := 4 + sl.base + j
			addr := constant.NewBlockAddress(fn, blk)
			asInt := cur.NewPtrToInt(addr, types.I64)

			cont, cipherVal := xtea.EmitEncipher(ctor, cur, asInt, sl.params, fmt.Sprintf("eib.%s.slot%d", fn.GlobalName, idx))
			slotPtr := cont.NewGetElementPtr(table.ContentType, table,
				constant.NewInt(types.I32, 0), constant.NewInt(types.I32, int64(idx)))
			cont.NewStore(cipherVal, slotPtr)
			cur = cont
		}
	}
	cur.NewRet(nil)

	irutil.RegisterGlobalCtor(m, ctor, ctorPriority)
	log.Debugw("eib: registered table constructor", "func", fn.Ident(), "slots", len(slots))
}
