package rewriter

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"

	"softboundcets/internal/irtype"
	"softboundcets/internal/metadata"
)

// rewriteSelect implements spec.md §4.5 "Select": the select itself is
// emitted first (its operands already dominate it, unlike a phi's), then
// one parallel select per metadata component, selecting between whichever
// branch's cells are live. A safe/None operand contributes the don't-care
// sentinel rather than breaking the pairing — a select where only one arm
// is actually a heap pointer still needs a definite answer when runtime
// control picks that arm.
func (r *Rewriter) rewriteSelect(blk *ir.Block, in *ir.InstSelect) error {
	blk.Insts = append(blk.Insts, in)

	if !irtype.IsPointer(in.Type()) {
		return nil
	}

	xMeta, err := r.operandMeta(in.X)
	if err != nil {
		return errors.Wrapf(err, "rewriter: function %s: select operand %s", r.FuncName, in.X.Ident())
	}
	yMeta, err := r.operandMeta(in.Y)
	if err != nil {
		return errors.Wrapf(err, "rewriter: function %s: select operand %s", r.FuncName, in.Y.Ident())
	}

	base := blk.NewSelect(in.Cond, blk.NewLoad(xMeta.Base.ElemType, xMeta.Base), blk.NewLoad(yMeta.Base.ElemType, yMeta.Base))
	bound := blk.NewSelect(in.Cond, blk.NewLoad(xMeta.Bound.ElemType, xMeta.Bound), blk.NewLoad(yMeta.Bound.ElemType, yMeta.Bound))
	key := blk.NewSelect(in.Cond, blk.NewLoad(xMeta.Key.ElemType, xMeta.Key), blk.NewLoad(yMeta.Key.ElemType, yMeta.Key))
	lock := blk.NewSelect(in.Cond, blk.NewLoad(xMeta.Lock.ElemType, xMeta.Lock), blk.NewLoad(yMeta.Lock.ElemType, yMeta.Lock))

	cells, ok := r.Plan.Storage[in]
	if !ok {
		return errors.Errorf("rewriter: function %s: planner bug: no shadow storage for select %s", r.FuncName, in.Ident())
	}
	blk.NewStore(base, cells.Base)
	blk.NewStore(bound, cells.Bound)
	blk.NewStore(key, cells.Key)
	blk.NewStore(lock, cells.Lock)

	return r.Tables.PutBlock(in, cells)
}

// operandMeta resolves an operand's metadata for use inside a select/phi
// rebuild, substituting the don't-care sentinel for anything the
// inspector reports as needing no instrumentation.
func (r *Rewriter) operandMeta(v value.Value) (metadata.Metadata, error) {
	res, err := r.insp.Inspect(v)
	if err != nil {
		return metadata.Metadata{}, err
	}
	if res.None {
		return r.Plan.DontCare, nil
	}
	return res.Meta, nil
}
