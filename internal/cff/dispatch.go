package cff

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"go.uber.org/zap"

	"github.com/llobf/llobf/internal/irutil"
	"github.com/llobf/llobf/internal/obferr"
	"github.com/llobf/llobf/internal/opaque"
	"github.com/llobf/llobf/internal/rng"
	"github.com/llobf/llobf/internal/siphash"
)

const maxCollisionRetries = 64

type dispatchBuilder struct {
	m         *ir.Module
	fn        *ir.Func
	stateSlot value.Value
	stateType *types.IntType
	states    map[*ir.Block]uint64
	order     []*ir.Block
	opts      Options
	s         *rng.Stream
	log       *zap.SugaredLogger

	useSipHash  bool
	sipK0, sipK1 uint64
	sipV0, sipV1, sipV2, sipV3 uint64
	siphashDef  *ir.Func

	opaqueChain    opaque.Chain
	useOpaque      bool
	opaqueSeq      int
	funcResolvers  int
	globalSeq      int
}

func newDispatchBuilder(m *ir.Module, fn *ir.Func, stateSlot value.Value, stateType *types.IntType, states map[*ir.Block]uint64, opts Options, s *rng.Stream, log *zap.SugaredLogger) *dispatchBuilder {
	order := make([]*ir.Block, 0, len(states))
	for b := range states {
		order = append(order, b)
	}
	// Deterministic relative order before the random shuffle: sort by
	// current position in fn.Blocks so re-running with the same seed on
	// the same input is reproducible regardless of Go map iteration.
	sortByBlockOrder(fn, order)
	s.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	d := &dispatchBuilder{
		m: m, fn: fn, stateSlot: stateSlot, stateType: stateType,
		states: states, order: order, opts: opts, s: s, log: log,
	}

	if s.Chance(opts.Opaque) {
		d.useOpaque = true
		d.opaqueChain = opaque.Generate(s, int(stateType.BitSize))
	}
	if s.Chance(opts.SipHash) {
		d.prepareSipHash()
	}
	return d
}

func sortByBlockOrder(fn *ir.Func, blocks []*ir.Block) {
	pos := make(map[*ir.Block]int, len(fn.Blocks))
	for i, b := range fn.Blocks {
		pos[b] = i
	}
	for i := 1; i < len(blocks); i++ {
		for j := i; j > 0 && pos[blocks[j-1]] > pos[blocks[j]]; j-- {
			blocks[j-1], blocks[j] = blocks[j], blocks[j-1]
		}
	}
}

// prepareSipHash picks key material with no hash collisions among the
// function's active states, retrying up to maxCollisionRetries times
// before falling back to opaque-only layering (§4.7's primary
// correctness subtlety, §7's bounded-retry disposition).
func (d *dispatchBuilder) prepareSipHash() {
	v0, v1, v2, v3 := siphash.DefaultIV()
	for attempt := 0; attempt < maxCollisionRetries; attempt++ {
		k0 := d.s.Uint64()
		k1 := d.s.Uint64()
		seen := make(map[uint64]bool, len(d.states))
		collision := false
		for _, state := range d.states {
			h := siphash.CT(state, k0, k1, v0, v1, v2, v3)
			if seen[h] {
				collision = true
				break
			}
			seen[h] = true
		}
		if !collision {
			d.useSipHash = true
			d.sipK0, d.sipK1 = k0, k1
			d.sipV0, d.sipV1, d.sipV2, d.sipV3 = v0, v1, v2, v3
			d.siphashDef = siphash.Emit(d.m)
			irutil.DemoteSSA(d.siphashDef)
			irutil.DemotePHI(d.siphashDef)
			return
		}
	}
	d.log.Warnw("cff: siphash collision retries exhausted, falling back to opaque-only layer",
		"func", d.fn.Ident(), "err", obferr.ErrCollisionExhausted)
	d.useSipHash = false
}

// build constructs the dispatch block and its chain of condition blocks,
// returning the dispatch entry point and the default (no-match) block
// that loops back to it.
func (d *dispatchBuilder) build() (dispatch, defaultBlock *ir.Block) {
	dispatch = d.fn.NewBlock("cff.dispatch")
	curState := dispatch.NewLoad(d.stateType, d.stateSlot)
	curState.LocalIdent = ir.LocalIdent{LocalName: "cff.curstate"}

	defaultBlock = d.fn.NewBlock("cff.default")
	defaultBlock.NewBr(dispatch)

	var firstCond *ir.Block
	next := defaultBlock
	// Build from the tail backwards so each condition block's "else"
	// target is already known when the block is constructed.
	for i := len(d.order) - 1; i >= 0; i-- {
		target := d.order[i]
		cond := d.fn.NewBlock(fmt.Sprintf("cff.cond.%d", i))
		d.emitCondition(cond, curState, d.states[target], target, next)
		next = cond
		firstCond = cond
	}
	if firstCond == nil {
		firstCond = defaultBlock
	}
	dispatch.NewBr(firstCond)
	return dispatch, defaultBlock
}

// emitCondition builds one condition block: load/transform the current
// state, compare against the (equally transformed) target, branch to
// target on match or elseBlock otherwise.
func (d *dispatchBuilder) emitCondition(cond *ir.Block, curState value.Value, targetState uint64, target *ir.Block, elseBlock *ir.Block) {
	lhs := d.transform(cond, curState, fmt.Sprintf("lhs%d", targetState))
	rhsConst := d.transformConstant(targetState)
	rhs := d.constantOperand(cond, rhsConst, fmt.Sprintf("rhs%d", targetState), d.opts.GlobalState)

	var matches value.Value
	if d.s.Chance(d.opts.FuncResolver) {
		matches = d.emitResolverCall(cond, lhs, rhs)
	} else {
		cmp := cond.NewICmp(enum.IPredEQ, lhs, rhs)
		cmp.LocalIdent = ir.LocalIdent{LocalName: fmt.Sprintf("cff.eq.%d", targetState)}
		matches = cmp
	}
	cond.NewCondBr(matches, target, elseBlock)
}

// transform applies the active state-transform layers (opaque, then
// siphash) to v, in IR, matching transformConstant's compile-time order.
func (d *dispatchBuilder) transform(b *ir.Block, v value.Value, namePrefix string) value.Value {
	cur := v
	if d.useOpaque {
		d.opaqueSeq++
		var gc *opaque.GlobalConstChance
		if d.opts.GlobalOpaque > 0 {
			gc = &opaque.GlobalConstChance{Percent: d.opts.GlobalOpaque, Stream: d.s}
		}
		cur = opaque.TransformValue(d.m, b, cur, d.opaqueChain, fmt.Sprintf("%s.%d", namePrefix, d.opaqueSeq), gc)
	}
	if d.useSipHash {
		cur = d.emitSipHashCall(b, cur)
	}
	return cur
}

func (d *dispatchBuilder) transformConstant(state uint64) uint64 {
	cur := state
	if d.useOpaque {
		cur = d.opaqueChain.TransformConstant(cur)
	}
	if d.useSipHash {
		v0, v1, v2, v3 := d.sipV0, d.sipV1, d.sipV2, d.sipV3
		cur = siphash.CT(cur, d.sipK0, d.sipK1, v0, v1, v2, v3)
	}
	return cur
}

func (d *dispatchBuilder) emitSipHashCall(b *ir.Block, v value.Value) value.Value {
	fn := d.siphashDef
	if d.s.Chance(d.opts.CloneSipHash) {
		d.globalSeq++
		fn = siphash.Clone(d.m, d.globalSeq)
	}
	i64 := types.I64
	wide := widenToI64(b, v, d.stateType)
	call := b.NewCall(fn,
		wide,
		constant.NewInt(i64, int64(d.sipK0)),
		constant.NewInt(i64, int64(d.sipK1)),
		constant.NewInt(i64, int64(d.sipV0)),
		constant.NewInt(i64, int64(d.sipV1)),
		constant.NewInt(i64, int64(d.sipV2)),
		constant.NewInt(i64, int64(d.sipV3)),
	)
	call.LocalIdent = ir.LocalIdent{LocalName: "cff.sip"}
	return call
}

// widenToI64 zero-extends a 32-bit dispatcher state to i64 before
// hashing, per §9: "SipHash always operates in 64-bit; on 32-bit
// targets, the dispatcher state is zero-extended before the hash."
func widenToI64(b *ir.Block, v value.Value, stateType *types.IntType) value.Value {
	if stateType.BitSize >= 64 {
		return v
	}
	ext := b.NewZExt(v, types.I64)
	ext.LocalIdent = ir.LocalIdent{LocalName: "cff.zext"}
	return ext
}

func (d *dispatchBuilder) constantOperand(b *ir.Block, val uint64, name string, globalChance int) value.Value {
	t := hashResultType(d.useSipHash, d.stateType)
	lit := constant.NewInt(t, int64(val))
	if globalChance == 0 || !d.s.Chance(globalChance) {
		return lit
	}
	g := d.m.NewGlobalDef(name, lit)
	g.Linkage = enum.LinkagePrivate
	load := b.NewLoad(t, g)
	load.Volatile = true
	load.LocalIdent = ir.LocalIdent{LocalName: name + ".ld"}
	return load
}

func hashResultType(useSipHash bool, stateType *types.IntType) *types.IntType {
	if useSipHash {
		return types.I64
	}
	return stateType
}

// emitResolverCall builds (or reuses) a private per-site helper function
// that performs the state comparison, per §4.7's function-resolver
// option, and calls it instead of comparing inline.
func (d *dispatchBuilder) emitResolverCall(b *ir.Block, lhs, rhs value.Value) value.Value {
	d.funcResolvers++
	t := lhs.Type()
	fn := d.m.NewFunc(fmt.Sprintf("cff.resolve.%s.%d", d.fn.GlobalName, d.funcResolvers), types.I1,
		ir.NewParam("a", t), ir.NewParam("b", t))
	fn.Linkage = enum.LinkageInternal
	entry := fn.NewBlock("entry")
	cmp := entry.NewICmp(enum.IPredEQ, fn.Params[0], fn.Params[1])
	cmp.LocalIdent = ir.LocalIdent{LocalName: "eq"}
	entry.NewRet(cmp)

	call := b.NewCall(fn, lhs, rhs)
	call.LocalIdent = ir.LocalIdent{LocalName: "cff.resolved"}
	return call
}
