package rewriter

import (
	"github.com/llir/llvm/ir"
	"github.com/pkg/errors"

	"softboundcets/internal/irtype"
	"softboundcets/internal/metadata"
)

// pendingPhi defers the actual construction of a phi's four metadata
// phis until every block in the function has been rewritten: a phi's
// incoming edges reach into predecessor blocks that, for a back edge, are
// rewritten *after* the block containing the phi, and appending anything
// to a predecessor's instruction list before it has been replayed would
// be wiped out when that predecessor's own rewrite resets its list.
type pendingPhi struct {
	blk   *ir.Block
	orig  *ir.InstPhi
	cells metadata.Metadata
}

// rewritePhi implements spec.md §4.5 "Phi": the phi itself is emitted
// immediately (other instructions in the same block may need its result
// this block's table), but the four parallel metadata phis are queued
// and built by finalizePhis once every block's body is stable.
func (r *Rewriter) rewritePhi(blk *ir.Block, in *ir.InstPhi) error {
	blk.Insts = append(blk.Insts, in)

	if !irtype.IsPointer(in.Type()) {
		return nil
	}

	cells, ok := r.Plan.Storage[in]
	if !ok {
		return errors.Errorf("rewriter: function %s: planner bug: no shadow storage for phi %s", r.FuncName, in.Ident())
	}
	r.pendingPhis = append(r.pendingPhis, pendingPhi{blk: blk, orig: in, cells: cells})
	return r.Tables.PutBlock(in, cells)
}

// finalizePhis builds the deferred metadata phis queued by rewritePhi.
// Every local incoming operand is guaranteed dedicated shadow storage by
// the planner (spec.md §4.2 step 4); a miss here is a planner bug, not a
// malformed-input case.
func (r *Rewriter) finalizePhis() error {
	for _, p := range r.pendingPhis {
		baseIncs := make([]*ir.Incoming, len(p.orig.Incs))
		boundIncs := make([]*ir.Incoming, len(p.orig.Incs))
		keyIncs := make([]*ir.Incoming, len(p.orig.Incs))
		lockIncs := make([]*ir.Incoming, len(p.orig.Incs))

		for i, inc := range p.orig.Incs {
			var m metadata.Metadata
			if irtype.IsLocal(inc.X) {
				cells, ok := r.Plan.Storage[inc.X]
				if !ok {
					return errors.Errorf("rewriter: function %s: planner bug: no shadow storage for phi incoming %s", r.FuncName, inc.X.Ident())
				}
				m = cells
			} else {
				m = r.Plan.DontCare
			}

			base := inc.Pred.NewLoad(m.Base.ElemType, m.Base)
			bound := inc.Pred.NewLoad(m.Bound.ElemType, m.Bound)
			key := inc.Pred.NewLoad(m.Key.ElemType, m.Key)
			lock := inc.Pred.NewLoad(m.Lock.ElemType, m.Lock)

			baseIncs[i] = ir.NewIncoming(base, inc.Pred)
			boundIncs[i] = ir.NewIncoming(bound, inc.Pred)
			keyIncs[i] = ir.NewIncoming(key, inc.Pred)
			lockIncs[i] = ir.NewIncoming(lock, inc.Pred)
		}

		basePhi := ir.NewPhi(baseIncs...)
		boundPhi := ir.NewPhi(boundIncs...)
		keyPhi := ir.NewPhi(keyIncs...)
		lockPhi := ir.NewPhi(lockIncs...)

		insert := []ir.Instruction{
			basePhi, boundPhi, keyPhi, lockPhi,
			ir.NewStore(basePhi, p.cells.Base),
			ir.NewStore(boundPhi, p.cells.Bound),
			ir.NewStore(keyPhi, p.cells.Key),
			ir.NewStore(lockPhi, p.cells.Lock),
		}
		splicePhiSupport(p.blk, insert)
	}
	return nil
}

// splicePhiSupport inserts insts immediately after the block's run of
// leading phi instructions (LLVM requires all phis to precede every other
// instruction) and before the first non-phi instruction, so the metadata
// phis/stores are available to every consumer in the block without
// violating phi placement.
func splicePhiSupport(blk *ir.Block, insts []ir.Instruction) {
	at := 0
	for at < len(blk.Insts) {
		if _, ok := blk.Insts[at].(*ir.InstPhi); !ok {
			break
		}
		at++
	}
	rest := append([]ir.Instruction{}, blk.Insts[at:]...)
	blk.Insts = append(blk.Insts[:at], insts...)
	blk.Insts = append(blk.Insts, rest...)
}
