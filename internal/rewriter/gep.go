package rewriter

import (
	"github.com/llir/llvm/ir"
	"github.com/pkg/errors"

	"softboundcets/internal/irtype"
)

// rewriteGEP implements spec.md §4.5 "GetElementPtr": a GEP result points
// into the same allocation as its source, so it carries the source's
// bounds and is simply aliased to the source's metadata — no runtime call
// is needed, only a symbol-table entry (an out-of-bounds result is caught
// by the checks on its later dereferences). If the source was in the safe-pointer set (a
// stack/global address needing no checks), the derived address is safe
// too, since it addresses the same object; its metadata is then the
// don't-care sentinel in the rare case a later phi still needs storage
// for it.
func (r *Rewriter) rewriteGEP(blk *ir.Block, in *ir.InstGetElementPtr) error {
	blk.Insts = append(blk.Insts, in)

	if named, ok := in.Src.(interface{ Name() string }); ok && irtype.IsLocal(in.Src) {
		if r.Safe.Has(named.Name()) {
			r.Safe.Add(in.Name())
			return r.materializeIfPlanned(blk, in, r.Plan.DontCare)
		}
	}

	res, err := r.insp.Inspect(in.Src)
	if err != nil {
		return errors.Wrapf(err, "rewriter: function %s: gep of %s", r.FuncName, in.Src.Ident())
	}
	if res.None {
		r.Safe.Add(in.Name())
		return r.materializeIfPlanned(blk, in, r.Plan.DontCare)
	}

	if err := r.Tables.PutBlock(in, res.Meta); err != nil {
		return errors.Wrapf(err, "rewriter: function %s", r.FuncName)
	}
	return r.materializeIfPlanned(blk, in, res.Meta)
}
