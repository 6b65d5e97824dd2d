package rewriter

import (
	"github.com/llir/llvm/ir"
	"github.com/pkg/errors"

	"softboundcets/internal/irtype"
	"softboundcets/internal/runtimeapi"
)

// rewriteStore implements spec.md §4.5 "Store": checks before the store,
// symmetric to rewriteLoad. If the stored value is itself pointer-typed,
// its metadata (whatever the inspector can find for it, don't-care
// otherwise) is written into the in-memory metadata table keyed by the
// destination address, so a later load from that address can recover it.
func (r *Rewriter) rewriteStore(blk *ir.Block, in *ir.InstStore) error {
	if r.Opts.InstrumentStore {
		res, err := r.insp.Inspect(in.Dst)
		if err != nil {
			return errors.Wrapf(err, "rewriter: function %s: store to %s", r.FuncName, in.Dst.Ident())
		}
		if !res.None {
			if err := r.Checks.Store(blk, res.Meta, in.Dst, in.Src.Type()); err != nil {
				return errors.Wrapf(err, "rewriter: function %s", r.FuncName)
			}
		}
	}

	blk.Insts = append(blk.Insts, in)

	if !irtype.IsPointer(in.Src.Type()) {
		return nil
	}

	valRes, err := r.insp.Inspect(in.Src)
	if err != nil {
		return errors.Wrapf(err, "rewriter: function %s: stored value %s", r.FuncName, in.Src.Ident())
	}
	m := r.Plan.DontCare
	if !valRes.None {
		m = valRes.Meta
	}

	byteDst := irtype.CastToBytePointer(blk, in.Dst)
	base := blk.NewLoad(m.Base.ElemType, m.Base)
	bound := blk.NewLoad(m.Bound.ElemType, m.Bound)
	key := blk.NewLoad(m.Key.ElemType, m.Key)
	lock := blk.NewLoad(m.Lock.ElemType, m.Lock)
	_, err = r.API.Call(blk, runtimeapi.MetadataStore, byteDst, base, bound, key, lock)
	return errors.Wrapf(err, "rewriter: function %s: store metadata for %s", r.FuncName, in.Dst.Ident())
}
