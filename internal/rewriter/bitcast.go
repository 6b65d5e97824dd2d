package rewriter

import (
	"github.com/llir/llvm/ir"
	"github.com/pkg/errors"

	"softboundcets/internal/irtype"
)

// rewriteBitCast implements spec.md §4.5 "BitCast": structurally identical
// to rewriteGEP (metadata aliasing, no runtime call), gated by
// -instrument-bitcast since a pointer bitcast that is never dereferenced
// through needs no propagated metadata at all.
func (r *Rewriter) rewriteBitCast(blk *ir.Block, in *ir.InstBitCast) error {
	blk.Insts = append(blk.Insts, in)

	if !r.Opts.InstrumentBitcast || !irtype.IsPointer(in.Type()) || !irtype.IsPointer(in.From.Type()) {
		return nil
	}

	if named, ok := in.From.(interface{ Name() string }); ok && irtype.IsLocal(in.From) {
		if r.Safe.Has(named.Name()) {
			r.Safe.Add(in.Name())
			return r.materializeIfPlanned(blk, in, r.Plan.DontCare)
		}
	}

	res, err := r.insp.Inspect(in.From)
	if err != nil {
		return errors.Wrapf(err, "rewriter: function %s: bitcast of %s", r.FuncName, in.From.Ident())
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
