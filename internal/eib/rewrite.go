package eib

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/llobf/llobf/internal/xtea"
)

// rewireBranch implements §4.8 step 4: load the slot's (possibly
// condition-selected) ciphertext, decipher it in place, cast back to a
// pointer, and replace the direct branch with an indirect one whose
// valid-target list is the slot's block set. Building the decipher IR
// on site.block naturally overwrites its original terminator (step 5's
// "erase the original branch"), since EmitDecipher's first act is to
// branch from the caller's current block into its own body block.
func rewireBranch(fn *ir.Func, site branchSite, table *ir.Global, sl slot) {
	base := 4 + sl.base
	namePrefix := fmt.Sprintf("eib.use.%s.%d", fn.GlobalName, base)

	var idx value.Value
	if site.cond == nil {
		idx = constant.NewInt(types.I32, int64(base))
	} else {
		idx = site.block.NewSelect(site.cond,
			constant.NewInt(types.I32, int64(base)),
			constant.NewInt(types.I32, int64(base+1)))
	}

	slotPtr := site.block.NewGetElementPtr(table.ContentType, table, constant.NewInt(types.I32, 0), idx)
	ciphertext := site.block.NewLoad(types.I64, slotPtr)

	cont, plain := xtea.EmitDecipher(fn, site.block, ciphertext, sl.params, namePrefix)
	ptr := cont.NewIntToPtr(plain, types.I8Ptr)
	cont.NewIndirectBr(ptr, sl.blocks...)
}
