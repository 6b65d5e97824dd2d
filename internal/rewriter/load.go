package rewriter

import (
	"github.com/llir/llvm/ir"
	"github.com/pkg/errors"

	"softboundcets/internal/irtype"
	"softboundcets/internal/runtimeapi"
)

// rewriteLoad implements spec.md §4.5 "Load": if load instrumentation is
// enabled, inspect the source address and, if it carries metadata, emit
// the spatial-then-temporal checks before the load. After emitting the
// load itself, if the loaded value is pointer-typed, recover its metadata
// from the runtime's in-memory metadata table and record it as
// block-scoped (the loaded pointer's validity cannot be assumed to
// outlive this block without re-deriving it).
func (r *Rewriter) rewriteLoad(blk *ir.Block, in *ir.InstLoad) error {
	if r.Opts.InstrumentLoad {
		res, err := r.insp.Inspect(in.Src)
		if err != nil {
			return errors.Wrapf(err, "rewriter: function %s: load of %s", r.FuncName, in.Src.Ident())
		}
		if !res.None {
			if err := r.Checks.Load(blk, res.Meta, in.Src, in.ElemType); err != nil {
				return errors.Wrapf(err, "rewriter: function %s", r.FuncName)
			}
		}
	}

	blk.Insts = append(blk.Insts, in)

	if !irtype.IsPointer(in.Type()) {
		return nil
	}

	cells, ok := r.Plan.Storage[in]
	if !ok {
		return errors.Errorf("rewriter: function %s: planner bug: no shadow storage for loaded pointer %s", r.FuncName, in.Ident())
	}

	byteAddr := irtype.CastToBytePointer(blk, in.Src)
	if _, err := r.API.Call(blk, runtimeapi.MetadataLoad, byteAddr, cells.Base, cells.Bound, cells.Key, cells.Lock); err != nil {
		return errors.Wrapf(err, "rewriter: function %s: load metadata for %s", r.FuncName, in.Ident())
	}

	return r.Tables.PutBlock(in, cells)
}
