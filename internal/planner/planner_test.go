package planner

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"softboundcets/internal/options"
	"softboundcets/internal/runtimeapi"
)

func buildLoadFunc(t *testing.T) (*ir.Module, *ir.Func) {
	t.Helper()
	m := ir.NewModule()
	fn := m.NewFunc("reader", types.NewPointer(types.I32), ir.NewParam("pp", types.NewPointer(types.NewPointer(types.I32))))
	entry := ir.NewBlock("entry")
	entry.Parent = fn
	fn.Blocks = append(fn.Blocks, entry)
	loaded := entry.NewLoad(types.NewPointer(types.I32), fn.Params[0])
	entry.NewRet(loaded)
	return m, fn
}

func TestPlan_PrependsPrologueAndBranchesToOriginalEntry(t *testing.T) {
	m, fn := buildLoadFunc(t)
	api := runtimeapi.NewBinding(m)
	opts := &options.Options{InstrumentLoad: true, InstrumentCall: true, InstrumentStack: true}

	originalEntry := fn.Blocks[0]
	plan, err := Plan(fn, api, opts, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if len(fn.Blocks) != 2 {
		t.Fatalf("Plan should prepend exactly one prologue block; fn has %d blocks", len(fn.Blocks))
	}
	if fn.Blocks[0] != plan.Prologue {
		t.Fatalf("fn.Blocks[0] is not the planner's prologue")
	}
	if fn.Blocks[1] != originalEntry {
		t.Fatalf("the original entry block must remain, in place, after the prologue")
	}

	br, ok := plan.Prologue.Term.(*ir.TermBr)
	if !ok {
		t.Fatalf("prologue terminator is %T, want *ir.TermBr", plan.Prologue.Term)
	}
	if br.Target != originalEntry {
		t.Fatalf("prologue must branch to the function's original entry block")
	}
}

func TestPlan_AllocatesShadowStorageForEveryPointerSite(t *testing.T) {
	m, fn := buildLoadFunc(t)
	api := runtimeapi.NewBinding(m)
	opts := &options.Options{InstrumentLoad: true, InstrumentCall: true, InstrumentStack: true}

	plan, err := Plan(fn, api, opts, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	// fn.Blocks[1] is the original entry, now holding the (as-yet
	// unrewritten) load and return.
	loaded := fn.Blocks[1].Insts[0]
	if _, ok := plan.Storage[loaded]; !ok {
		t.Fatalf("planner did not allocate shadow storage for the loaded pointer")
	}
}

func TestPlan_IsDeterministicAcrossRuns(t *testing.T) {
	// Plan mutates fn.Blocks, so each run needs its own fresh function;
	// what is compared here is the number of planned sites for two
	// structurally identical functions, not two runs over the same
	// mutated fn (they can't agree: the second run sees an
	// already-instrumented prologue).
	opts := &options.Options{InstrumentLoad: true, InstrumentCall: true, InstrumentStack: true}

	m1, fn1 := buildLoadFunc(t)
	api1 := runtimeapi.NewBinding(m1)
	plan1, err := Plan(fn1, api1, opts, nil)
	if err != nil {
		t.Fatalf("Plan (run 1): %v", err)
	}

	m2, fn2 := buildLoadFunc(t)
	api2 := runtimeapi.NewBinding(m2)
	plan2, err := Plan(fn2, api2, opts, nil)
	if err != nil {
		t.Fatalf("Plan (run 2): %v", err)
	}

	if len(plan1.Storage) != len(plan2.Storage) {
		t.Fatalf("two planning runs over structurally identical functions allocated different numbers of sites: %d vs %d", len(plan1.Storage), len(plan2.Storage))
	}
}

func TestPlan_RejectsEmptyFunction(t *testing.T) {
	m := ir.NewModule()
	fn := m.NewFunc("empty", types.Void)
	api := runtimeapi.NewBinding(m)
	opts := &options.Options{}

	if _, err := Plan(fn, api, opts, nil); err == nil {
		t.Fatalf("Plan(empty function) = nil error, want an error")
	}
}
