package strcrypt

import (
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/llobf/llobf/internal/rng"
)

func TestEncryptRoundTrip(t *testing.T) {
	plaintext := []byte("hello world, this is a test string of arbitrary length!")
	ct := Encrypt(plaintext, 0xCAFEBABE, 3)
	qt.Assert(t, qt.IsTrue(string(ct) != string(plaintext)))

	// Decrypting means re-applying the same keystream.
	pt := Encrypt(ct, 0xCAFEBABE, 3)
	qt.Assert(t, qt.DeepEquals(pt, plaintext))
}

func TestEncryptEmpty(t *testing.T) {
	qt.Assert(t, qt.HasLen(Encrypt(nil, 1, 0), 0))
}

func FuzzEncryptRoundTrip(f *testing.F) {
	f.Add(uint32(1), 0, []byte("a"))
	f.Add(uint32(0xFFFFFFFF), 99, []byte(""))
	f.Fuzz(func(t *testing.T, master uint32, index int, data []byte) {
		ct := Encrypt(data, master, index)
		pt := Encrypt(ct, master, index)
		qt.Assert(t, qt.DeepEquals(pt, data))
	})
}

func TestSeedForIndexMatchesEncrypt(t *testing.T) {
	data := []byte("seeded")
	seed := rng.SeedForIndex(7, 2)
	qt.Assert(t, qt.DeepEquals(EncryptSeeded(data, seed), Encrypt(data, 7, 2)))
}
