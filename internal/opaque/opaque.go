// Package opaque implements the reversible opaque-integer-operation
// chain (§4.4) used to hide constants behind a pipeline of 2-6
// operations whose compile-time evaluation and emitted-IR evaluation are
// guaranteed to agree.
//
// Each forward transform is paired with an explicit, hand-written
// inverse rather than one derived generically; the pipeline is generic
// over an arbitrary sequence of reversible primitives instead of a
// fixed round count, since the chain length itself (2-6 operations) is
// chosen at random per call.
package opaque

import (
	"math/bits"

	"github.com/llobf/llobf/internal/rng"
)

// Op identifies one reversible primitive in the chain.
type Op int

const (
	OpXOR Op = iota
	OpADD
	OpSUB
	OpROL
	OpROR
)

// Step is one parameterised operation in the chain.
type Step struct {
	Op    Op
	Const uint64
}

// Chain is a reversible pipeline of 2-6 steps over integers of the given
// bit width (32 or 64, matching the module's pointer width per §9).
type Chain struct {
	Steps []Step
	Width int
}

const (
	minSteps = 2
	maxSteps = 6
)

// Generate builds a random reversible chain for the given bit width. The
// rotate amount is always reduced mod width by TransformConstant/Invert, so any
// constant is legal for ROL/ROR steps.
func Generate(s *rng.Stream, width int) Chain {
	n := minSteps + s.UniformIndex(maxSteps-minSteps+1)
	steps := make([]Step, n)
	mask := widthMask(width)
	for i := range steps {
		op := Op(s.UniformIndex(5))
		var c uint64
		switch op {
		case OpROL, OpROR:
			c = s.RangeU64(1, uint64(width-1))
		default:
			c = s.Uint64() & mask
		}
		steps[i] = Step{Op: op, Const: c}
	}
	return Chain{Steps: steps, Width: width}
}

func widthMask(width int) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(width)) - 1
}

// TransformConstant evaluates the forward chain at compile time. This is
// the function TransformValue's emitted IR must reproduce exactly (the contract in
// §4.4 and §8: transform_constant(x) == concrete-evaluate(transform_value(x))).
func (c Chain) TransformConstant(x uint64) uint64 {
	mask := widthMask(c.Width)
	v := x & mask
	for _, step := range c.Steps {
		v = applyStep(step, v, c.Width) & mask
	}
	return v
}

// Invert evaluates the inverse chain at compile time, recovering the
// original value from a transformed one. The tests use it to check that
// every chain is reversible; the CFF dispatcher only calls
// TransformConstant.
func (c Chain) Invert(y uint64) uint64 {
	mask := widthMask(c.Width)
	v := y & mask
	for i := len(c.Steps) - 1; i >= 0; i-- {
		v = applyInverseStep(c.Steps[i], v, c.Width) & mask
	}
	return v
}

func applyStep(step Step, v uint64, width int) uint64 {
	switch step.Op {
	case OpXOR:
		return v ^ step.Const
	case OpADD:
		return v + step.Const
	case OpSUB:
		return v - step.Const
	case OpROL:
		return rotateLeft(v, step.Const, width)
	case OpROR:
		return rotateLeft(v, uint64(width)-step.Const%uint64(width), width)
	default:
		panic("opaque: unknown op")
	}
}

func applyInverseStep(step Step, v uint64, width int) uint64 {
	switch step.Op {
	case OpXOR:
		return v ^ step.Const
	case OpADD:
		return v - step.Const
	case OpSUB:
		return v + step.Const
	case OpROL:
		return rotateLeft(v, uint64(width)-step.Const%uint64(width), width)
	case OpROR:
		return rotateLeft(v, step.Const, width)
	default:
		panic("opaque: unknown op")
	}
}

func rotateLeft(v, amount uint64, width int) uint64 {
	amount %= uint64(width)
	if width == 64 {
		return bits.RotateLeft64(v, int(amount))
	}
	mask := widthMask(width)
	v &= mask
	return ((v << amount) | (v >> (uint64(width) - amount))) & mask
}
