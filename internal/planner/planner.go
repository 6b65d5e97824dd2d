// Package planner implements the Metadata Storage Planner (spec.md §4.2):
// a two-pass, prologue-first scan that pre-allocates the four shadow cells
// every pointer-producing site in a function will need, before the body
// rewrite touches a single instruction. Fusing the scan with the body
// rewrite would let a later block's phi instrumentation reference a shadow
// slot that does not yet dominate it — see spec.md §9's note on why the
// scan and the allocation must stay two separate passes.
package planner

import (
	"sort"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"

	"softboundcets/internal/ignore"
	"softboundcets/internal/irtype"
	"softboundcets/internal/metadata"
	"softboundcets/internal/options"
	"softboundcets/internal/runtimeapi"
)

// Plan is the result of planning one function: the synthetic prologue
// block, the metadata assigned to each non-function pointer parameter,
// the function's don't-care sentinel, and the pre-allocated shadow
// storage for every pointer-producing site the scan found.
type Plan struct {
	Prologue *ir.Block
	Params   map[*ir.Param]metadata.Metadata
	DontCare metadata.Metadata
	Storage  map[value.Value]metadata.Metadata
}

// Plan runs the scan-then-allocate planner over fn and prepends the
// resulting prologue block to fn.Blocks.
func Plan(fn *ir.Func, api *runtimeapi.Binding, opts *options.Options, blacklist map[string]bool) (*Plan, error) {
	if len(fn.Blocks) == 0 {
		return nil, errors.Errorf("planner: function %s has no body", fn.Name())
	}

	entry := fn.Blocks[0]
	prologue := ir.NewBlock(fn.Name() + ".softboundcets.prologue")
	prologue.Parent = fn

	p := &Plan{
		Prologue: prologue,
		Params:   make(map[*ir.Param]metadata.Metadata),
		Storage:  make(map[value.Value]metadata.Metadata),
	}

	// Step 3 (performed before step 2 so DontCare exists for parameter
	// loads that may need it, though parameters never legitimately need
	// it themselves): the per-function don't-care sentinel.
	p.DontCare = newCells(prologue)
	p.DontCare.DontCare = true
	nullPtr := constant.NewNull(types.NewPointer(types.I8))
	prologue.NewStore(nullPtr, p.DontCare.Base)
	prologue.NewStore(nullPtr, p.DontCare.Bound)
	prologue.NewStore(irtype.ConstI64(0), p.DontCare.Key)
	// The lock points at the key cell, a word that always holds 0.
	prologue.NewStore(prologue.NewBitCast(p.DontCare.Key, types.NewPointer(types.I8)), p.DontCare.Lock)

	// Step 2: load every non-function pointer parameter's metadata off
	// the shadow stack, positions starting at 1 (position 0 is reserved
	// for the return value).
	pos := int32(1)
	for _, param := range fn.Params {
		if !irtype.IsPointer(param.Typ) || irtype.IsFunctionPointer(param.Typ) {
			continue
		}
		cells := newCells(prologue)
		if err := loadParamFromShadowStack(prologue, api, cells, pos); err != nil {
			return nil, errors.Wrapf(err, "planner: function %s parameter %d", fn.Name(), pos)
		}
		p.Params[param] = cells
		// A parameter that is also a scanned site (e.g. a phi incoming)
		// uses these same cells as its shadow storage.
		p.Storage[param] = cells
		pos++
	}

	// Step 4: scan every instruction and terminator for sites that need
	// shadow storage.
	sites, err := collectSites(fn, opts, blacklist)
	if err != nil {
		return nil, err
	}

	// Step 5: deduplicate (collectSites already uses a set) and sort for
	// determinism, then allocate.
	sort.Slice(sites, func(i, j int) bool { return siteOrder(sites[i]) < siteOrder(sites[j]) })
	for _, v := range sites {
		if _, ok := p.Storage[v]; ok {
			continue
		}
		p.Storage[v] = newCells(prologue)
	}

	// Step 6: branch from the prologue to the function's original entry.
	prologue.NewBr(entry)

	fn.Blocks = append([]*ir.Block{prologue}, fn.Blocks...)
	return p, nil
}

// newCells allocates the four shadow cells for one pointer-producing site
// at the end of b (the prologue), per spec.md §3's "four function-local
// allocas, created during the prologue, never freed until function exit."
func newCells(b *ir.Block) metadata.Metadata {
	return metadata.Metadata{
		Base:  b.NewAlloca(types.NewPointer(types.I8)),
		Bound: b.NewAlloca(types.NewPointer(types.I8)),
		Key:   b.NewAlloca(types.I64),
		Lock:  b.NewAlloca(types.NewPointer(types.I8)),
	}
}

// loadParamFromShadowStack mirrors the callee side of spec.md §4.3: for
// each pointer parameter, load its four metadata components from the
// incoming shadow-stack slot into freshly allocated cells.
func loadParamFromShadowStack(b *ir.Block, api *runtimeapi.Binding, cells metadata.Metadata, pos int32) error {
	idx := irtype.ConstI32(pos)
	base, err := api.Call(b, runtimeapi.LoadBaseShadowStack, idx)
	if err != nil {
		return err
	}
	b.NewStore(base, cells.Base)

	bound, err := api.Call(b, runtimeapi.LoadBoundShadowStack, idx)
	if err != nil {
		return err
	}
	b.NewStore(bound, cells.Bound)

	key, err := api.Call(b, runtimeapi.LoadKeyShadowStack, idx)
	if err != nil {
		return err
	}
	b.NewStore(key, cells.Key)

	lock, err := api.Call(b, runtimeapi.LoadLockShadowStack, idx)
	if err != nil {
		return err
	}
	b.NewStore(lock, cells.Lock)
	return nil
}

// collectSites implements the collection rules of spec.md §4.2 step 4: a
// site is a pointer-typed load result and its source address, a
// pointer-typed argument or result of an instrumented direct call, a
// pointer phi and its local incoming values, a pointer select, a tracked
// alloca, or a returned local pointer.
func collectSites(fn *ir.Func, opts *options.Options, blacklist map[string]bool) ([]value.Value, error) {
	seen := make(map[value.Value]bool)
	var out []value.Value
	add := func(v value.Value) {
		if v == nil || seen[v] {
			return
		}
		if !irtype.IsPointer(v.Type()) {
			return
		}
		seen[v] = true
		out = append(out, v)
	}

	for _, blk := range fn.Blocks {
		for _, inst := range blk.Insts {
			switch in := inst.(type) {
			case *ir.InstLoad:
				if irtype.IsPointer(in.Type()) {
					add(in.Src)
					add(in)
				}
			case *ir.InstCall:
				callee, ok := in.Callee.(*ir.Func)
				if !ok {
					continue // computed call target; left unsupported per spec.md §1
				}
				if callee.Sig.Variadic || ignore.Name(callee.Name(), blacklist) {
					continue
				}
				if !opts.InstrumentCall {
					continue
				}
				for _, arg := range in.Args {
					if irtype.IsPointer(arg.Type()) && !irtype.IsFunctionPointer(arg.Type()) {
						add(arg)
					}
				}
				if irtype.IsPointer(in.Type()) {
					add(in)
				}
			case *ir.InstPhi:
				if !irtype.IsPointer(in.Type()) {
					continue
				}
				add(in)
				for _, inc := range in.Incs {
					if irtype.IsLocal(inc.X) {
						add(inc.X)
					}
				}
			case *ir.InstSelect:
				if irtype.IsPointer(in.Type()) {
					add(in)
				}
			case *ir.InstAlloca:
				if opts.InstrumentStack {
					add(in)
				}
			}
		}
		if ret, ok := blk.Term.(*ir.TermRet); ok && ret.X != nil {
			if irtype.IsPointer(ret.X.Type()) && irtype.IsLocal(ret.X) {
				add(ret.X)
			}
		}
	}
	return out, nil
}

// siteOrder gives a stable sort key over the collected sites so that
// planning is deterministic across runs (spec.md §5).
func siteOrder(v value.Value) string {
	if named, ok := v.(interface{ Ident() string }); ok {
		return named.Ident()
	}
	return v.String()
}

