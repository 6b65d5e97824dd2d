// Package checks implements the Check Emitter (spec.md §4.4): the spatial
// and temporal dereference checks inserted around loads and stores, and
// the optional metadata-self-consistency check.
//
// Spatial checks are always emitted before temporal checks; this order is
// fixed in the scheme (observable in runtime failure messages) and must
// never be swapped (spec.md §9).
package checks

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"

	"softboundcets/internal/irtype"
	"softboundcets/internal/metadata"
	"softboundcets/internal/runtimeapi"
	"softboundcets/internal/stats"
)

// Emitter inserts dereference checks at load/store sites.
type Emitter struct {
	API       *runtimeapi.Binding
	PtrWidth  int64
	SelfCheck bool // emit-checks option: metadata-self-consistency check
	Stats     *stats.Stats
}

// Load emits the spatial-then-temporal load checks for a dereference of
// addr whose pointee is elemType and whose metadata is m, at the end of b.
func (e *Emitter) Load(b *ir.Block, m metadata.Metadata, addr value.Value, elemType types.Type) error {
	size, err := e.sizeConst(elemType)
	if err != nil {
		return errors.Wrap(err, "checks: load")
	}
	base := b.NewLoad(m.Base.ElemType, m.Base)
	bound := b.NewLoad(m.Bound.ElemType, m.Bound)
	byteAddr := irtype.CastToBytePointer(b, addr)
	if _, err := e.API.Call(b, runtimeapi.SpatialLoadDereferenceCheck, base, bound, byteAddr, size); err != nil {
		return errors.Wrap(err, "checks: spatial load")
	}
	lock := b.NewLoad(m.Lock.ElemType, m.Lock)
	key := b.NewLoad(m.Key.ElemType, m.Key)
	if _, err := e.API.Call(b, runtimeapi.TemporalLoadDereferenceCheck, lock, key); err != nil {
		return errors.Wrap(err, "checks: temporal load")
	}
	e.Stats.IncChecks(2)
	if e.SelfCheck {
		return e.selfConsistency(b, m)
	}
	return nil
}

// Store emits the spatial-then-temporal store checks, symmetric to Load.
func (e *Emitter) Store(b *ir.Block, m metadata.Metadata, addr value.Value, elemType types.Type) error {
	size, err := e.sizeConst(elemType)
	if err != nil {
		return errors.Wrap(err, "checks: store")
	}
	base := b.NewLoad(m.Base.ElemType, m.Base)
	bound := b.NewLoad(m.Bound.ElemType, m.Bound)
	byteAddr := irtype.CastToBytePointer(b, addr)
	if _, err := e.API.Call(b, runtimeapi.SpatialStoreDereferenceCheck, base, bound, byteAddr, size); err != nil {
		return errors.Wrap(err, "checks: spatial store")
	}
	lock := b.NewLoad(m.Lock.ElemType, m.Lock)
	key := b.NewLoad(m.Key.ElemType, m.Key)
	if _, err := e.API.Call(b, runtimeapi.TemporalStoreDereferenceCheck, lock, key); err != nil {
		return errors.Wrap(err, "checks: temporal store")
	}
	e.Stats.IncChecks(2)
	if e.SelfCheck {
		return e.selfConsistency(b, m)
	}
	return nil
}

func (e *Emitter) selfConsistency(b *ir.Block, m metadata.Metadata) error {
	base := b.NewLoad(m.Base.ElemType, m.Base)
	bound := b.NewLoad(m.Bound.ElemType, m.Bound)
	lock := b.NewLoad(m.Lock.ElemType, m.Lock)
	key := b.NewLoad(m.Key.ElemType, m.Key)
	_, err := e.API.Call(b, runtimeapi.MetadataCheck, base, bound, key, lock)
	return errors.Wrap(err, "checks: self-consistency")
}

func (e *Emitter) sizeConst(elemType types.Type) (value.Value, error) {
	sz, err := irtype.SizeOf(elemType, e.PtrWidth)
	if err != nil {
		return nil, err
	}
	return irtype.ConstI64(sz), nil
}
