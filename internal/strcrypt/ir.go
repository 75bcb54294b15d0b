package strcrypt

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// EmitDecryptInPlace writes IR that XORs the SplitMix32 keystream seeded
// by seed into the length bytes starting at buf, mirroring
// rng.SplitMix32.XORStream group-for-group and byte-for-byte so it
// reverses whatever Encrypt/EncryptSeeded produced under the same seed
// (§4.9's shared cipher definition).
//
// length is always known at obfuscation time (the string's own byte
// count), so — matching xtea.EmitDecipher's reasoning about its fixed,
// small round count — this unrolls the whole stream into straight-line
// IR instead of building a counted runtime loop: one state-threading
// SplitMix32 step per group of up to four bytes, entirely within b. No
// cross-block value ever appears, so no PHI repair is needed afterward.
func EmitDecryptInPlace(b *ir.Block, buf value.Value, length int, seed uint32) {
	i32 := types.I32
	i64 := types.I64
	i8 := types.I8

	var state value.Value = constant.NewInt(i32, int64(int32(seed)))
	for i := 0; i < length; i += 4 {
		state = b.NewAdd(state, constant.NewInt(i32, int64(int32(0x9E3779B9))))
		z := state
		z = b.NewMul(b.NewXor(z, b.NewLShr(z, constant.NewInt(i32, 16))), constant.NewInt(i32, int64(int32(0x21F0AAAD))))
		z = b.NewMul(b.NewXor(z, b.NewLShr(z, constant.NewInt(i32, 15))), constant.NewInt(i32, int64(int32(0x735A2D97))))
		z = b.NewXor(z, b.NewLShr(z, constant.NewInt(i32, 15)))

		end := i + 4
		if end > length {
			end = length
		}
		for j := i; j < end; j++ {
			shift := uint((j - i) * 8)
			keyByte := b.NewTrunc(b.NewLShr(z, constant.NewInt(i32, int64(shift))), i8)
			ptr := b.NewGetElementPtr(i8, buf, constant.NewInt(i64, int64(j)))
			cur := b.NewLoad(i8, ptr)
			xored := b.NewXor(cur, keyByte)
			b.NewStore(xored, ptr)
		}
	}
}
