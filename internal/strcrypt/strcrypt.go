// Package strcrypt is the compile-time half of the SplitMix32-based
// string cipher shared by both SENC modes (§4.9's intro): for string
// index i and master seed M, the keystream is seeded by M XOR i, and
// successive 32-bit words XOR four plaintext bytes (little-endian).
//
// The Go-side functions here only ever encrypt; EmitDecryptInPlace
// (ir.go) emits the IR that reverses the cipher at runtime.
// XOR-with-keystream is its own inverse, so "encrypt" and "decrypt" are
// the same function, matching the shared definition in §4.9.
package strcrypt

import "github.com/llobf/llobf/internal/rng"

// Encrypt returns ciphertext = plaintext XOR keystream(SeedForIndex(master, index)),
// leaving plaintext untouched.
func Encrypt(plaintext []byte, master uint32, index int) []byte {
	out := append([]byte(nil), plaintext...)
	rng.NewSplitMix32(rng.SeedForIndex(master, index)).XORStream(out)
	return out
}

// EncryptSeeded is the same cipher keyed directly by a seed rather than
// a (master, index) pair — used by SENC stack mode, where each string
// gets its own independently drawn 32-bit seed instead of an index into
// a shared table (§4.9.b).
func EncryptSeeded(plaintext []byte, seed uint32) []byte {
	out := append([]byte(nil), plaintext...)
	rng.NewSplitMix32(seed).XORStream(out)
	return out
}
