package xtea

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// EmitDecipher writes the runtime inverse of EncipherCT into a fresh
// block reached from cur, and returns the continuation block plus the
// recovered 64-bit plaintext value, per §4.6's "splits the current
// block, inserts a loop ... falls through to a continuation block"
// shape.
//
// Rounds is always 1-3 (§4.6) and fixed at obfuscation time, so the
// round count and every sum/key-index term DecipherCT computes are
// already known to the Go side; rather than emit a counted runtime loop
// with its own induction-variable PHI, this unrolls the known number of
// rounds into straight-line IR whose operations mirror DecipherCT
// instruction-for-instruction. The result is functionally identical to
// an executed loop with the same trip count and never needs a PHI node,
// consistent with the demote-to-memory posture the rest of the suite
// takes toward cross-block values.
func EmitDecipher(fn *ir.Func, cur *ir.Block, ciphertext value.Value, p Params, namePrefix string) (cont *ir.Block, plaintext value.Value) {
	i32 := types.I32
	i64 := types.I64

	body := fn.NewBlock(fmt.Sprintf("%s.xtea", namePrefix))
	cur.NewBr(body)

	hi := body.NewLShr(ciphertext, constant.NewInt(i64, 32))
	v0 := body.NewTrunc(hi, i32)
	v1 := body.NewTrunc(ciphertext, i32)

	sum := p.Delta * uint32(p.Rounds)
	for i := 0; i < p.Rounds; i++ {
		addB := sum + p.Key[(sum>>11)&3]
		v1Delta := body.NewXor(
			body.NewAdd(body.NewXor(body.NewShl(v0, constant.NewInt(i32, 4)), body.NewLShr(v0, constant.NewInt(i32, 5))), v0),
			constant.NewInt(i32, int64(int32(addB))),
		)
		v1 = body.NewSub(v1, v1Delta)

		sum -= p.Delta
		addA := sum + p.Key[sum&3]
		v0Delta := body.NewXor(
			body.NewAdd(body.NewXor(body.NewShl(v1, constant.NewInt(i32, 4)), body.NewLShr(v1, constant.NewInt(i32, 5))), v1),
			constant.NewInt(i32, int64(int32(addA))),
		)
		v0 = body.NewSub(v0, v0Delta)
	}

	hi64 := body.NewShl(body.NewZExt(v0, i64), constant.NewInt(i64, 32))
	lo64 := body.NewZExt(v1, i64)
	plain := body.NewOr(hi64, lo64)

	cont = fn.NewBlock(fmt.Sprintf("%s.cont", namePrefix))
	body.NewBr(cont)
	return cont, plain
}

// EmitEncipher is EmitDecipher's forward counterpart: it writes IR
// computing EncipherCT over plaintext, for the table-construction
// routine that runs once at program startup (§4.8 step 3) — the only
// point at which a target block's address is a concrete runtime value
// the emitted IR can feed through the cipher.
func EmitEncipher(fn *ir.Func, cur *ir.Block, plaintext value.Value, p Params, namePrefix string) (cont *ir.Block, ciphertext value.Value) {
	i32 := types.I32
	i64 := types.I64

	body := fn.NewBlock(fmt.Sprintf("%s.xtea_enc", namePrefix))
	cur.NewBr(body)

	hi := body.NewLShr(plaintext, constant.NewInt(i64, 32))
	v0 := body.NewTrunc(hi, i32)
	v1 := body.NewTrunc(plaintext, i32)

	var sum uint32
	for i := 0; i < p.Rounds; i++ {
		addA := sum + p.Key[sum&3]
		v0Delta := body.NewXor(
			body.NewAdd(body.NewXor(body.NewShl(v1, constant.NewInt(i32, 4)), body.NewLShr(v1, constant.NewInt(i32, 5))), v1),
			constant.NewInt(i32, int64(int32(addA))),
		)
		v0 = body.NewAdd(v0, v0Delta)

		sum += p.Delta
		addB := sum + p.Key[(sum>>11)&3]
		v1Delta := body.NewXor(
			body.NewAdd(body.NewXor(body.NewShl(v0, constant.NewInt(i32, 4)), body.NewLShr(v0, constant.NewInt(i32, 5))), v0),
			constant.NewInt(i32, int64(int32(addB))),
		)
		v1 = body.NewAdd(v1, v1Delta)
	}

	hi64 := body.NewShl(body.NewZExt(v0, i64), constant.NewInt(i64, 32))
	lo64 := body.NewZExt(v1, i64)
	cipher := body.NewOr(hi64, lo64)

	cont = fn.NewBlock(fmt.Sprintf("%s.cont", namePrefix))
	body.NewBr(cont)
	return cont, cipher
}
