package obftool

import (
	"fmt"
	"os"

	"github.com/llir/llvm/asm"
	"github.com/llir/llvm/ir"

	"github.com/llobf/llobf/internal/obferr"
)

// ParseModule reads an LLVM IR module from path. The suite targets
// LLVM's textual IR (.ll) rather than the binary bitstream (.bc)
// container — see SPEC_FULL.md's DOMAIN STACK section for why — but
// every caller in this module only ever sees *ir.Module, so a future
// bitcode codec is a drop-in replacement for this one function.
func ParseModule(path string) (*ir.Module, error) {
	m, err := asm.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", obferr.ErrParse, path, err)
	}
	return m, nil
}

// WriteModule writes m to path. Per §6's exit-code contract, a failed
// write must leave the output file either absent or clearly unusable:
// we write to a temporary sibling file and rename it into place only
// after the full write succeeds, so a partial write never lands at the
// requested path.
func WriteModule(m *ir.Module, path string) (err error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %v", obferr.ErrIO, tmp, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: closing %s: %v", obferr.ErrIO, tmp, cerr)
		}
	}()

	if _, werr := fmt.Fprint(f, m.String()); werr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: writing %s: %v", obferr.ErrIO, tmp, werr)
	}
	if err := f.Sync(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: syncing %s: %v", obferr.ErrIO, tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: renaming %s to %s: %v", obferr.ErrIO, tmp, path, err)
	}
	return nil
}
