package rewriter

import (
	"github.com/llir/llvm/ir"
	"github.com/pkg/errors"

	"softboundcets/internal/irtype"
	"softboundcets/internal/runtimeapi"
	"softboundcets/internal/shadowstack"
)

// rewriteReturn implements spec.md §4.5 "Return": if the returned value is
// a non-function pointer, its metadata (the don't-care sentinel when the
// inspector reports none) is stored into shadow-stack slot 0 before the
// return (spec.md §4.3's return-side protocol). Every return
// unconditionally destroys this function's stack-frame key, regardless of
// what it returns — the frame's local allocas are all about to go out of
// scope.
func (r *Rewriter) rewriteReturn(blk *ir.Block, ret *ir.TermRet) error {
	if ret.X != nil && irtype.IsPointer(ret.X.Type()) && !irtype.IsFunctionPointer(ret.X.Type()) {
		res, err := r.insp.Inspect(ret.X)
		if err != nil {
			return errors.Wrapf(err, "rewriter: function %s: return value %s", r.FuncName, ret.X.Ident())
		}
		m := r.Plan.DontCare
		if !res.None {
			m = res.Meta
		}
		if err := shadowstack.StoreReturnMetadata(blk, r.API, m); err != nil {
			return errors.Wrapf(err, "rewriter: function %s: return", r.FuncName)
		}
	}

	if _, err := r.API.Call(blk, runtimeapi.DestroyStackKey, r.lockValue(blk), r.keyValue(blk)); err != nil {
		return errors.Wrapf(err, "rewriter: function %s: return", r.FuncName)
	}

	return nil
}
