// Package shadowstack implements the caller/callee shadow-stack ABI
// (spec.md §4.3): allocate N slots, one store-quadruple per pointer
// argument, the call itself, post-call invalidation of the block-scoped
// table for every passed pointer, an optional return-value metadata load,
// and deallocation.
package shadowstack

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"

	"softboundcets/internal/irtype"
	"softboundcets/internal/metadata"
	"softboundcets/internal/runtimeapi"
)

// PointerArg is one pointer-typed call argument, together with whatever
// the caller already knows about its metadata.
type PointerArg struct {
	Value value.Value
	// Meta is the argument's metadata as the Pointer Inspector reports it
	// (from the block-, function- or module-scoped table); IsConstant
	// is true when Value is a constant pointer, which always stores
	// don't-care metadata regardless of Meta.
	Meta       metadata.Metadata
	IsConstant bool
}

// EmitCallArgs runs the caller side of spec.md §4.3 steps 1-3: compute N,
// allocate N shadow-stack slots, and store each argument's metadata at its
// position. Position 0 is reserved for the return value and is not
// written here.
func EmitCallArgs(b *ir.Block, api *runtimeapi.Binding, dontCare metadata.Metadata, args []PointerArg) error {
	n := int32(1 + len(args))
	if _, err := api.Call(b, runtimeapi.AllocateShadowStackSpace, irtype.ConstI32(n)); err != nil {
		return errors.Wrap(err, "shadowstack: allocate")
	}
	for i, a := range args {
		pos := irtype.ConstI32(int32(i + 1))
		m := a.Meta
		if a.IsConstant {
			m = dontCare
		}
		if err := storeQuadruple(b, api, m, pos); err != nil {
			return errors.Wrapf(err, "shadowstack: store argument %d", i+1)
		}
	}
	return nil
}

// InvalidatePassed removes every passed pointer from the block-scoped
// table after the call (spec.md §4.3 step 5): the callee may have freed
// any of them, so cached metadata can no longer be trusted without a
// reload from the in-memory metadata table.
func InvalidatePassed(tables *metadata.Tables, args []PointerArg) {
	saved := tables.SaveBlock()
	passed := make(map[value.Value]bool, len(args))
	for _, a := range args {
		passed[a.Value] = true
	}
	kept := make(metadata.BlockSnapshot, len(saved))
	for k, v := range saved {
		if !passed[k] {
			kept[k] = v
		}
	}
	tables.RestoreBlock(kept)
}

// LoadReturnMetadata runs spec.md §4.3 step 6: if the call's return type is
// a pointer, load slot 0's metadata into the call result's planner-allocated
// cells.
func LoadReturnMetadata(b *ir.Block, api *runtimeapi.Binding, cells metadata.Metadata) error {
	zero := irtype.ConstI32(0)
	base, err := api.Call(b, runtimeapi.LoadBaseShadowStack, zero)
	if err != nil {
		return err
	}
	b.NewStore(base, cells.Base)

	bound, err := api.Call(b, runtimeapi.LoadBoundShadowStack, zero)
	if err != nil {
		return err
	}
	b.NewStore(bound, cells.Bound)

	key, err := api.Call(b, runtimeapi.LoadKeyShadowStack, zero)
	if err != nil {
		return err
	}
	b.NewStore(key, cells.Key)

	lock, err := api.Call(b, runtimeapi.LoadLockShadowStack, zero)
	if err != nil {
		return err
	}
	b.NewStore(lock, cells.Lock)
	return nil
}

// Deallocate runs spec.md §4.3 step 7.
func Deallocate(b *ir.Block, api *runtimeapi.Binding) error {
	_, err := api.Call(b, runtimeapi.DeallocateShadowStackSpace)
	return errors.Wrap(err, "shadowstack: deallocate")
}

// StoreReturnMetadata runs the return-side counterpart used by the
// rewriter's return-instruction handling (spec.md §4.5 "Return"): store
// the returned local pointer's metadata into slot 0.
func StoreReturnMetadata(b *ir.Block, api *runtimeapi.Binding, m metadata.Metadata) error {
	return storeQuadruple(b, api, m, irtype.ConstI32(0))
}

func storeQuadruple(b *ir.Block, api *runtimeapi.Binding, m metadata.Metadata, pos value.Value) error {
	base := b.NewLoad(m.Base.ElemType, m.Base)
	if _, err := api.Call(b, runtimeapi.StoreBaseShadowStack, base, pos); err != nil {
		return err
	}
	bound := b.NewLoad(m.Bound.ElemType, m.Bound)
	if _, err := api.Call(b, runtimeapi.StoreBoundShadowStack, bound, pos); err != nil {
		return err
	}
	key := b.NewLoad(m.Key.ElemType, m.Key)
	if _, err := api.Call(b, runtimeapi.StoreKeyShadowStack, key, pos); err != nil {
		return err
	}
	lock := b.NewLoad(m.Lock.ElemType, m.Lock)
	if _, err := api.Call(b, runtimeapi.StoreLockShadowStack, lock, pos); err != nil {
		return err
	}
	return nil
}
