// Package senc implements the String Encryption pass (§4.9): selected
// string globals are encrypted at compile time and decrypted back at
// runtime, either once at startup (global mode) or on demand into a
// stack buffer right before each use (stack mode). Both share the
// SplitMix32 keystream in strcrypt.
//
// The encrypted-blob-plus-decoder shape here generalizes to whole
// string globals; the two modes' table/stack layouts follow
// string_encrypt.cpp.
package senc

import (
	"github.com/llir/llvm/ir"
	"go.uber.org/zap"

	"github.com/llobf/llobf/internal/rng"
)

// Mode selects which of §4.9's two encryption strategies Run applies.
type Mode int

const (
	ModeGlobal Mode = iota
	ModeStack
)

// Run applies the selected string-encryption mode to m, skipping any
// string global whose name has the given prefix.
func Run(m *ir.Module, s *rng.Stream, mode Mode, skipPrefix string, log *zap.SugaredLogger) {
	switch mode {
	case ModeStack:
		runStack(m, s, skipPrefix, log)
	default:
		runGlobal(m, s, skipPrefix, log)
	}
}
