package irutil

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/value"
)

// usesValue reports whether inst reads v as an operand.
func usesValue(inst ir.Instruction, v value.Value) bool {
	found := false
	visitOperands(inst, func(op value.Value) value.Value {
		if op == v {
			found = true
		}
		return op
	})
	return found
}

func termUsesValue(term ir.Terminator, v value.Value) bool {
	found := false
	visitTermOperands(term, func(op value.Value) value.Value {
		if op == v {
			found = true
		}
		return op
	})
	return found
}

// InstUse identifies one instruction operand site that reads a value,
// by its position within its containing block.
type InstUse struct {
	Block *ir.Block
	Inst  ir.Instruction
	Index int
}

// FindInstUses returns every instruction across fn that reads v as an
// operand, in block-then-position order. Used by SENC stack mode to
// locate the split points for a string global's uses (§4.9.b); the
// search itself never mutates fn, matching the snapshot-before-rewrite
// discipline the rest of the suite follows.
func FindInstUses(fn *ir.Func, v value.Value) []InstUse {
	var uses []InstUse
	for _, b := range fn.Blocks {
		for i, inst := range b.Insts {
			if usesValue(inst, v) {
				uses = append(uses, InstUse{Block: b, Inst: inst, Index: i})
			}
		}
	}
	return uses
}

// replaceOperand rewrites every operand of inst equal to old to repl.
func replaceOperand(inst ir.Instruction, old, repl value.Value) {
	visitOperands(inst, func(op value.Value) value.Value {
		if op == old {
			return repl
		}
		return op
	})
}

func replaceTermOperand(term ir.Terminator, old, repl value.Value) {
	visitTermOperands(term, func(op value.Value) value.Value {
		if op == old {
			return repl
		}
		return op
	})
}

// visitOperands applies fn to every value-typed operand of inst,
// writing back whatever fn returns. Covers the instruction kinds the
// four passes actually produce or rewrite; unhandled kinds are left
// untouched (they carry no rewritable value operand in this suite).
func visitOperands(inst ir.Instruction, fn func(value.Value) value.Value) {
	switch v := inst.(type) {
	case *ir.InstBinOp:
		v.X = fn(v.X)
		v.Y = fn(v.Y)
	case *ir.InstICmp:
		v.X = fn(v.X)
		v.Y = fn(v.Y)
	case *ir.InstLoad:
		v.Src = fn(v.Src)
	case *ir.InstStore:
		v.Src = fn(v.Src)
		v.Dst = fn(v.Dst)
	case *ir.InstCall:
		for i, arg := range v.Args {
			v.Args[i] = fn(arg)
		}
	case *ir.InstPhi:
		for _, inc := range v.Incs {
			inc.X = fn(inc.X)
		}
	case *ir.InstTrunc:
		v.From = fn(v.From)
	case *ir.InstZExt:
		v.From = fn(v.From)
	case *ir.InstSExt:
		v.From = fn(v.From)
	case *ir.InstBitCast:
		v.From = fn(v.From)
	case *ir.InstPtrToInt:
		v.From = fn(v.From)
	case *ir.InstIntToPtr:
		v.From = fn(v.From)
	case *ir.InstGetElementPtr:
		v.Src = fn(v.Src)
		for i, idx := range v.Indices {
			v.Indices[i] = fn(idx)
		}
	}
}

func visitTermOperands(term ir.Terminator, fn func(value.Value) value.Value) {
	switch v := term.(type) {
	case *ir.TermCondBr:
		v.Cond = fn(v.Cond)
	case *ir.TermRet:
		if v.X != nil {
			v.X = fn(v.X)
		}
	case *ir.TermSwitch:
		v.X = fn(v.X)
	case *ir.TermIndirectBr:
		v.Addr = fn(v.Addr)
	}
}
