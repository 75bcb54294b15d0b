// Package obferr defines the sentinel errors for the error taxonomy in
// §7, so callers — CLI entry points and tests alike — can use errors.Is
// to match a failure category instead of comparing strings.
package obferr

import "errors"

var (
	// ErrIO covers input-missing / output-unwritable failures.
	ErrIO = errors.New("i/o error")
	// ErrParse covers bitcode/IR that failed to parse.
	ErrParse = errors.New("malformed input module")
	// ErrVerify covers a module that failed the upstream IR verifier,
	// either before the pass ran (malformed input) or after (a bug in
	// the pass itself — always fatal per §7).
	ErrVerify = errors.New("module failed verification")
	// ErrSkipped is not a failure: it marks a function or string that a
	// pass's guard conditions declined to transform (§7's "log and
	// continue" disposition). The passes log their skips instead of
	// returning it, and it is never surfaced as a CLI
	// exit-code failure.
	ErrSkipped = errors.New("skipped by guard condition")
	// ErrCollisionExhausted marks a SipHash key-collision retry budget
	// running out (§4.7, §7): the CFF pass falls back to an opaque-only
	// layer and continues rather than failing the whole function.
	ErrCollisionExhausted = errors.New("siphash collision retries exhausted")
)
