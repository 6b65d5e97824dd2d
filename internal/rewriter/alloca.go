package rewriter

import (
	"github.com/llir/llvm/ir"
	"github.com/pkg/errors"

	"softboundcets/internal/irtype"
)

// rewriteAlloca implements spec.md §4.5 "Alloca": the alloca is always
// emitted as-is and its result is always added to the safe-pointer set
// (a stack address is safe by definition, spec.md §3 invariant 4). If
// stack instrumentation is enabled, the result's base/bound/key/lock
// cells are additionally populated so that downstream GEPs/bitcasts of it
// still carry metadata for *their* derived uses, even though the alloca's
// own dereferences need no check.
func (r *Rewriter) rewriteAlloca(blk *ir.Block, in *ir.InstAlloca) error {
	blk.Insts = append(blk.Insts, in)
	r.Safe.Add(in.Name())

	if !r.Opts.InstrumentStack {
		return nil
	}

	cells, ok := r.Plan.Storage[in]
	if !ok {
		return errors.Errorf("rewriter: function %s: planner bug: no shadow storage for alloca %s", r.FuncName, in.Name())
	}

	nelems := in.NElems
	if nelems == nil {
		nelems = irtype.ConstI64(1)
	} else {
		nelems = irtype.SignExtendTo64(blk, nelems)
	}

	size, err := irtype.SizeOf(in.ElemType, r.Checks.PtrWidth)
	if err != nil {
		return errors.Wrapf(err, "rewriter: function %s: alloca %s", r.FuncName, in.Name())
	}

	base := irtype.CastToBytePointer(blk, in)
	bound := blk.NewGetElementPtr(irtype.ByteType(), base, blk.NewMul(nelems, irtype.ConstI64(size)))

	blk.NewStore(base, cells.Base)
	blk.NewStore(bound, cells.Bound)
	blk.NewStore(blk.NewLoad(r.StackKey.ElemType, r.StackKey), cells.Key)
	blk.NewStore(blk.NewLoad(r.StackLock.ElemType, r.StackLock), cells.Lock)

	return r.Tables.PutFunction(in, cells)
}
