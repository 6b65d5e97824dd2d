// Package rewriter implements the Instruction Rewriter (spec.md §4.5): the
// per-opcode dispatch that combines the Pointer Inspector, the Check
// Emitter, and the Shadow-Stack Protocol to transform a planned function's
// body.
//
// Each handler appends directly to the block's instruction list in the
// order spec.md prescribes (e.g. "emit the load check... Emit the load"):
// RewriteBlock resets the block's Insts to empty before replaying it, and
// each handler appends the original instruction at the point spec.md says
// it belongs, interleaved with whatever it inserts around it. The one
// exception is phi metadata, which finalizePhis splices in after the
// block's leading phis once every block has been rewritten.
package rewriter

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"

	"softboundcets/internal/checks"
	"softboundcets/internal/diag"
	"softboundcets/internal/inspector"
	"softboundcets/internal/metadata"
	"softboundcets/internal/options"
	"softboundcets/internal/planner"
	"softboundcets/internal/runtimeapi"
	"softboundcets/internal/stats"
)

// Rewriter holds every collaborator the per-opcode handlers need, and the
// per-function state that changes as the body is rewritten.
type Rewriter struct {
	API       *runtimeapi.Binding
	Checks    *checks.Emitter
	Tables    *metadata.Tables
	Safe      metadata.SafeSet
	Plan      *planner.Plan
	Opts      *options.Options
	Diag      *diag.Log
	Stats     *stats.Stats
	Blacklist map[string]bool

	FuncName string

	// StackKey/StackLock are this function's local stack-frame key and
	// lock, created once in the prologue (spec.md §4.6 step 4) and
	// destroyed by every return (spec.md §4.5 "Return").
	StackKey  *ir.InstAlloca
	StackLock *ir.InstAlloca

	insp        *inspector.Inspector
	pendingPhis []pendingPhi
}

// Prepare wires the Inspector against this rewriter's tables/safe set and
// must be called once before RewriteFunction.
func (r *Rewriter) Prepare() {
	r.insp = &inspector.Inspector{
		Tables:   r.Tables,
		Safe:     r.Safe,
		DontCare: r.Plan.DontCare,
		OnUnsupported: func(operand value.Value, reason string) {
			r.Diag.ReportDetail(diag.UnsupportedConstruct, r.FuncName, operand.String(), "%s", reason)
		},
	}
}

// RewriteFunction rewrites every block of fn after the planner's prologue,
// saving and restoring the block-scoped table around each block (spec.md
// §4.6 step 5).
func (r *Rewriter) RewriteFunction(fn *ir.Func) error {
	r.Tables.ResetFunction()
	for param, m := range r.Plan.Params {
		if err := r.Tables.PutFunction(param, m); err != nil {
			return errors.Wrapf(err, "rewriter: function %s", fn.Name())
		}
	}

	// fn.Blocks[0] is the planner's prologue; it needs no per-block
	// table bracketing since parameter metadata belongs to the
	// function-scoped table and nothing else runs there yet.
	r.pendingPhis = nil
	for _, blk := range fn.Blocks[1:] {
		saved := r.Tables.SaveBlock()
		if err := r.RewriteBlock(blk); err != nil {
			return errors.Wrapf(err, "rewriter: function %s block %s", fn.Name(), blk.Name())
		}
		r.Tables.RestoreBlock(saved)
	}

	// Phi metadata construction is deferred until every block's body is
	// stable: a back edge's predecessor may be rewritten after the block
	// containing the phi (see pendingPhi's doc comment).
	if err := r.finalizePhis(); err != nil {
		return errors.Wrapf(err, "rewriter: function %s", fn.Name())
	}
	return nil
}

// RewriteBlock replays blk's original instructions, dispatching each to
// its opcode handler.
func (r *Rewriter) RewriteBlock(blk *ir.Block) error {
	orig := blk.Insts
	blk.Insts = nil

	for _, inst := range orig {
		var err error
		switch in := inst.(type) {
		case *ir.InstAlloca:
			err = r.rewriteAlloca(blk, in)
		case *ir.InstLoad:
			err = r.rewriteLoad(blk, in)
		case *ir.InstStore:
			err = r.rewriteStore(blk, in)
		case *ir.InstCall:
			err = r.rewriteCall(blk, in)
		case *ir.InstGetElementPtr:
			err = r.rewriteGEP(blk, in)
		case *ir.InstBitCast:
			err = r.rewriteBitCast(blk, in)
		case *ir.InstSelect:
			err = r.rewriteSelect(blk, in)
		case *ir.InstPhi:
			err = r.rewritePhi(blk, in)
		default:
			blk.Insts = append(blk.Insts, inst)
		}
		if err != nil {
			return err
		}
	}

	if err := r.rewriteTerminator(blk); err != nil {
		return err
	}
	return nil
}

// materializeIfPlanned copies m's four components into v's own dedicated
// shadow cells, if the planner allocated one (spec.md §4.2 step 4's phi
// rule: every local phi incoming operand gets dedicated storage so its
// metadata survives past the end of the block that defines it, since the
// block-scoped table does not). GEP and bitcast results are normally pure
// aliases of their source's cells and need no physical copy; this only
// does work when v's dedicated cells differ from m's.
func (r *Rewriter) materializeIfPlanned(blk *ir.Block, v value.Value, m metadata.Metadata) error {
	cells, ok := r.Plan.Storage[v]
	if !ok || cells.Base == m.Base {
		return nil
	}
	blk.NewStore(blk.NewLoad(m.Base.ElemType, m.Base), cells.Base)
	blk.NewStore(blk.NewLoad(m.Bound.ElemType, m.Bound), cells.Bound)
	blk.NewStore(blk.NewLoad(m.Key.ElemType, m.Key), cells.Key)
	blk.NewStore(blk.NewLoad(m.Lock.ElemType, m.Lock), cells.Lock)
	return nil
}

func (r *Rewriter) lockValue(blk *ir.Block) value.Value {
	return blk.NewLoad(r.StackLock.ElemType, r.StackLock)
}

func (r *Rewriter) keyValue(blk *ir.Block) value.Value {
	return blk.NewLoad(r.StackKey.ElemType, r.StackKey)
}

func (r *Rewriter) rewriteTerminator(blk *ir.Block) error {
	ret, ok := blk.Term.(*ir.TermRet)
	if !ok {
		// Not a return: pass through unchanged (spec.md §4.5 "All other
		// opcodes"). The stack-frame key is destroyed only on the path
		// that actually leaves the function.
		return nil
	}
	return r.rewriteReturn(blk, ret)
}
