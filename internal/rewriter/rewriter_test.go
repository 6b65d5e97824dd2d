package rewriter

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"softboundcets/internal/checks"
	"softboundcets/internal/diag"
	"softboundcets/internal/irtype"
	"softboundcets/internal/metadata"
	"softboundcets/internal/options"
	"softboundcets/internal/planner"
	"softboundcets/internal/runtimeapi"
	"softboundcets/internal/stats"
)

// buildReturningFunction constructs a module with a single function that
// takes one i32* parameter and returns it unchanged, the simplest shape
// that exercises the return-side shadow-stack protocol (spec.md §4.3 /
// §4.5 "Return").
func buildReturningFunction(t *testing.T) (*ir.Module, *ir.Func) {
	t.Helper()
	m := ir.NewModule()
	fn := m.NewFunc("identity", types.NewPointer(types.I32), ir.NewParam("p", types.NewPointer(types.I32)))
	entry := ir.NewBlock("entry")
	entry.Parent = fn
	fn.Blocks = append(fn.Blocks, entry)
	entry.NewRet(fn.Params[0])
	return m, fn
}

func newRewriterFor(t *testing.T, fn *ir.Func, api *runtimeapi.Binding) (*Rewriter, *planner.Plan) {
	t.Helper()
	opts := &options.Options{InstrumentLoad: true, InstrumentStore: true, InstrumentCall: true, InstrumentStack: true, InstrumentBitcast: true}
	blacklist := map[string]bool{}

	plan, err := planner.Plan(fn, api, opts, blacklist)
	if err != nil {
		t.Fatalf("planner.Plan: %v", err)
	}

	stackLock := plan.Prologue.NewAlloca(types.NewPointer(types.I8))
	stackKey := plan.Prologue.NewAlloca(types.I64)
	if _, err := api.Call(plan.Prologue, runtimeapi.CreateStackKey, stackLock, stackKey); err != nil {
		t.Fatalf("CreateStackKey: %v", err)
	}

	st := stats.New()
	rw := &Rewriter{
		API:       api,
		Checks:    &checks.Emitter{API: api, PtrWidth: 8, Stats: st},
		Tables:    metadata.NewTables(),
		Safe:      metadata.NewSafeSet(),
		Plan:      plan,
		Opts:      opts,
		Diag:      diag.NewLog(false),
		Stats:     st,
		Blacklist: blacklist,
		FuncName:  fn.Name(),
		StackKey:  stackKey,
		StackLock: stackLock,
	}
	rw.Prepare()
	return rw, plan
}

func calleeNames(t *testing.T, insts []ir.Instruction) []string {
	t.Helper()
	var names []string
	for _, inst := range insts {
		call, ok := inst.(*ir.InstCall)
		if !ok {
			continue
		}
		fn, ok := call.Callee.(*ir.Func)
		if !ok {
			t.Fatalf("call target is not a direct function reference: %v", call.Callee)
		}
		names = append(names, fn.Name())
	}
	return names
}

func indexOf(names []string, target string) int {
	for i, n := range names {
		if n == target {
			return i
		}
	}
	return -1
}

func TestRewriteFunction_ReturnStoresQuadrupleBeforeDestroyingStackKey(t *testing.T) {
	m, fn := buildReturningFunction(t)
	api := runtimeapi.NewBinding(m)
	rw, _ := newRewriterFor(t, fn, api)

	if err := rw.RewriteFunction(fn); err != nil {
		t.Fatalf("RewriteFunction: %v", err)
	}

	// fn.Blocks[0] is the planner's synthetic prologue; the return lives
	// in the original entry block, fn.Blocks[1].
	names := calleeNames(t, fn.Blocks[1].Insts)

	storeBaseAt := indexOf(names, "__softboundcets_store_base_shadow_stack")
	storeLockAt := indexOf(names, "__softboundcets_store_lock_shadow_stack")
	destroyAt := indexOf(names, "__softboundcets_destroy_stack_key")

	if storeBaseAt == -1 || storeLockAt == -1 || destroyAt == -1 {
		t.Fatalf("return did not emit the expected calls; calls = %v", names)
	}
	if !(storeBaseAt < storeLockAt && storeLockAt < destroyAt) {
		t.Fatalf("expected store-base < store-lock < destroy-stack-key, got order %v", names)
	}
}

func TestRewriteFunction_ReturnDestroysStackKeyEvenForNonPointerReturn(t *testing.T) {
	m := ir.NewModule()
	fn := m.NewFunc("get_int", types.I32)
	entry := ir.NewBlock("entry")
	entry.Parent = fn
	fn.Blocks = append(fn.Blocks, entry)
	entry.NewRet(irtype.ConstI32(0))

	api := runtimeapi.NewBinding(m)
	rw, _ := newRewriterFor(t, fn, api)

	if err := rw.RewriteFunction(fn); err != nil {
		t.Fatalf("RewriteFunction: %v", err)
	}

	names := calleeNames(t, fn.Blocks[1].Insts)
	if indexOf(names, "__softboundcets_destroy_stack_key") == -1 {
		t.Fatalf("non-pointer return must still destroy the stack key; calls = %v", names)
	}
	if indexOf(names, "__softboundcets_store_base_shadow_stack") != -1 {
		t.Fatalf("non-pointer return must not store return metadata; calls = %v", names)
	}
}

// TestRewriteFunction_PhiWithBackEdgeGetsMetadataPhis exercises the
// deferred phi-construction mechanism (pendingPhis/finalizePhis): a phi
// whose second incoming edge comes from its own block (a back edge, as in
// a loop) must still get its four metadata phis built correctly, even
// though that predecessor block is rewritten before the phi's own
// metadata phis are spliced in.
func TestRewriteFunction_PhiWithBackEdgeGetsMetadataPhis(t *testing.T) {
	m := ir.NewModule()
	fn := m.NewFunc("loop", types.NewPointer(types.I32), ir.NewParam("init", types.NewPointer(types.I32)))

	entry := ir.NewBlock("entry")
	entry.Parent = fn
	loop := ir.NewBlock("loop")
	loop.Parent = fn
	fn.Blocks = append(fn.Blocks, entry, loop)

	entry.NewBr(loop)

	// nextPtr is the loop-carried value: it must exist before the phi can
	// reference it as the back-edge incoming, even though the phi must
	// end up first in the block's instruction list (LLVM phi placement
	// rule), so it's built first and the phi is spliced in ahead of it.
	nextPtr := loop.NewAlloca(types.I32)
	phi := ir.NewPhi(
		ir.NewIncoming(fn.Params[0], entry),
		ir.NewIncoming(nextPtr, loop),
	)
	loop.Insts = append([]ir.Instruction{phi}, loop.Insts...)
	loop.NewBr(loop)

	api := runtimeapi.NewBinding(m)
	rw, _ := newRewriterFor(t, fn, api)

	if err := rw.RewriteFunction(fn); err != nil {
		t.Fatalf("RewriteFunction: %v", err)
	}

	// loop is fn.Blocks[2]: prologue, entry, loop.
	rewrittenLoop := fn.Blocks[2]

	leadingPhis := 0
	for _, inst := range rewrittenLoop.Insts {
		if _, ok := inst.(*ir.InstPhi); !ok {
			break
		}
		leadingPhis++
	}
	// The original pointer phi plus four metadata phis (base/bound/key/lock).
	if leadingPhis != 5 {
		t.Fatalf("expected 5 leading phis (1 original + 4 metadata), got %d", leadingPhis)
	}

	for i, inst := range rewrittenLoop.Insts[:leadingPhis] {
		p, ok := inst.(*ir.InstPhi)
		if !ok {
			t.Fatalf("instruction %d in the leading run is not a phi: %T", i, inst)
		}
		if len(p.Incs) != 2 {
			t.Fatalf("phi %d has %d incoming edges, want 2 (one per predecessor)", i, len(p.Incs))
		}
	}
}
