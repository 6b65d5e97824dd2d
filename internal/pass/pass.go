// Package pass implements the Module Driver (spec.md §4.6): the top-level
// walk over a module's global definitions that decides, per definition,
// whether to instrument it, and orchestrates the Metadata Storage Planner
// and Instruction Rewriter for every function it instruments.
//
// This mirrors cmd/compile/internal/gc.Main's role in the teacher: one
// function that owns the module-wide pass state (tables, safe set,
// runtime bindings, diagnostics) and drives every other package in the
// fixed order spec.md prescribes.
package pass

import (
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/pkg/errors"

	"softboundcets/internal/checks"
	"softboundcets/internal/diag"
	"softboundcets/internal/ignore"
	"softboundcets/internal/metadata"
	"softboundcets/internal/options"
	"softboundcets/internal/planner"
	"softboundcets/internal/rewriter"
	"softboundcets/internal/runtimeapi"
	"softboundcets/internal/stats"
)

// ptrWidth is the fixed pointer width this pass assumes in the absence of
// target data-layout information (DESIGN.md's Open Question decision).
const ptrWidth int64 = 8

// specialGlobalPrefix marks the LLVM bookkeeping globals spec.md §4.6
// says to skip outright (llvm.global_ctors, llvm.global_dtors,
// llvm.metadata): anything under the llvm.* namespace is the module
// format's own plumbing, never user data.
const specialGlobalPrefix = "llvm."

// Result is everything the driver hands back to its caller: the
// instrumented module (mutated in place) and the run's bookkeeping.
type Result struct {
	Stats *stats.Stats
	Diag  *diag.Log
}

// Run walks m's global definitions and instruments every eligible
// function in place, per spec.md §4.6.
func Run(m *ir.Module, opts *options.Options) (*Result, error) {
	blacklist := opts.BlacklistSet()
	diagLog := diag.NewLog(opts.VerboseDiagnostics)
	st := stats.New()
	api := runtimeapi.NewBinding(m)
	tables := metadata.NewTables()
	moduleSafe := metadata.NewSafeSet()
	ck := &checks.Emitter{API: api, PtrWidth: ptrWidth, SelfCheck: opts.EmitChecks, Stats: st}

	for _, g := range m.Globals {
		instrumentGlobal(g, moduleSafe)
	}

	for _, fn := range m.Funcs {
		reason, skip := skipReason(fn, blacklist, api)
		if skip {
			st.Skipped(reason)
			continue
		}
		if fn.Name() == "main" {
			fn.SetName("softboundcets_main")
		}
		if err := instrumentFunction(fn, api, ck, tables, moduleSafe, opts, blacklist, diagLog, st); err != nil {
			return nil, errors.Wrapf(err, "pass: function %s", fn.Name())
		}
		st.Instrumented()
	}

	return &Result{Stats: st, Diag: diagLog}, nil
}

// instrumentGlobal implements spec.md §4.6's "Global variable" rule:
// special sections and uninitialized (declaration-only) globals are left
// alone; everything else is always safe to dereference without checks.
func instrumentGlobal(g *ir.Global, safe metadata.SafeSet) {
	if strings.HasPrefix(g.Name(), specialGlobalPrefix) {
		return
	}
	if g.Init == nil {
		return
	}
	safe.Add(g.Name())
}

// skipReason implements spec.md §4.6's function-level pass-through rules,
// in order, returning the skip-reason string instrumentFunction's caller
// records in Stats.
func skipReason(fn *ir.Func, blacklist map[string]bool, api *runtimeapi.Binding) (string, bool) {
	if len(fn.Blocks) == 0 {
		return "empty-body", true
	}
	if fn.Sig.Variadic {
		return "variadic", true
	}
	if ignore.Name(fn.Name(), blacklist) {
		return "ignored", true
	}
	if _, ok := runtimeapi.Wrapper(fn.Name()); ok && fn.Name() != "main" {
		return "wrapped", true
	}
	return "", false
}

// instrumentFunction runs spec.md §4.6's per-function steps 1-6 (step 1,
// the runtime/wrapper declarations, is implicit: runtimeapi.Binding
// declares lazily and idempotently the first time any step below calls
// it).
func instrumentFunction(
	fn *ir.Func,
	api *runtimeapi.Binding,
	ck *checks.Emitter,
	tables *metadata.Tables,
	moduleSafe metadata.SafeSet,
	opts *options.Options,
	blacklist map[string]bool,
	diagLog *diag.Log,
	st *stats.Stats,
) error {
	fnSafe := moduleSafe.Snapshot()

	plan, err := planner.Plan(fn, api, opts, blacklist)
	if err != nil {
		return err
	}

	stackLock := plan.Prologue.NewAlloca(types.NewPointer(types.I8))
	stackKey := plan.Prologue.NewAlloca(types.I64)
	if _, err := api.Call(plan.Prologue, runtimeapi.GetGlobalLock); err != nil {
		return errors.Wrap(err, "acquire global lock")
	}
	if _, err := api.Call(plan.Prologue, runtimeapi.CreateStackKey, stackLock, stackKey); err != nil {
		return errors.Wrap(err, "create stack key")
	}

	rw := &rewriter.Rewriter{
		API:       api,
		Checks:    ck,
		Tables:    tables,
		Safe:      fnSafe,
		Plan:      plan,
		Opts:      opts,
		Diag:      diagLog,
		Stats:     st,
		Blacklist: blacklist,
		FuncName:  fn.Name(),
		StackKey:  stackKey,
		StackLock: stackLock,
	}
	rw.Prepare()
	return rw.RewriteFunction(fn)
}
