package rewriter

import (
	"github.com/llir/llvm/ir"
	"github.com/pkg/errors"

	"softboundcets/internal/ignore"
	"softboundcets/internal/irtype"
	"softboundcets/internal/shadowstack"
)

// rewriteCall implements spec.md §4.5 "Call": a standard-library
// allocator is first swapped for its runtime wrapper (spec.md §6),
// independent of whether the call otherwise receives the shadow-stack
// protocol. A call to a variadic function, a blacklisted/runtime-owned
// symbol, or a computed (non-function) target is emitted unchanged
// beyond that rename — these are exactly the calls the planner's scan
// skipped, so no shadow storage exists for their arguments or result.
func (r *Rewriter) rewriteCall(blk *ir.Block, in *ir.InstCall) error {
	callee, isDirect := in.Callee.(*ir.Func)
	if isDirect {
		if wrapped := r.API.WrapperFunc(callee.Name(), callee); wrapped != nil {
			in.Callee = wrapped
			callee = wrapped
		}
	}

	if !r.Opts.InstrumentCall || !isDirect || callee.Sig.Variadic || ignore.Name(callee.Name(), r.Blacklist) {
		blk.Insts = append(blk.Insts, in)
		return nil
	}

	var args []shadowstack.PointerArg
	for _, a := range in.Args {
		if !irtype.IsPointer(a.Type()) || irtype.IsFunctionPointer(a.Type()) {
			continue
		}
		pa := shadowstack.PointerArg{Value: a}
		if irtype.IsConstant(a) {
			pa.IsConstant = true
		} else {
			res, err := r.insp.Inspect(a)
			if err != nil {
				return errors.Wrapf(err, "rewriter: function %s: call argument %s", r.FuncName, a.Ident())
			}
			if res.None {
				pa.IsConstant = true // safe/function-typed: store don't-care
			} else {
				pa.Meta = res.Meta
			}
		}
		args = append(args, pa)
	}

	if err := shadowstack.EmitCallArgs(blk, r.API, r.Plan.DontCare, args); err != nil {
		return errors.Wrapf(err, "rewriter: function %s: call to %s", r.FuncName, callee.Name())
	}
	r.Stats.IncCalls()

	blk.Insts = append(blk.Insts, in)

	shadowstack.InvalidatePassed(r.Tables, args)

	if irtype.IsPointer(in.Type()) {
		cells, ok := r.Plan.Storage[in]
		if !ok {
			return errors.Errorf("rewriter: function %s: planner bug: no shadow storage for call result %s", r.FuncName, in.Ident())
		}
		if err := shadowstack.LoadReturnMetadata(blk, r.API, cells); err != nil {
			return errors.Wrapf(err, "rewriter: function %s: call to %s", r.FuncName, callee.Name())
		}
		if err := r.Tables.PutBlock(in, cells); err != nil {
			return errors.Wrapf(err, "rewriter: function %s", r.FuncName)
		}
	}

	if err := shadowstack.Deallocate(blk, r.API); err != nil {
		return errors.Wrapf(err, "rewriter: function %s: call to %s", r.FuncName, callee.Name())
	}
	return nil
}
