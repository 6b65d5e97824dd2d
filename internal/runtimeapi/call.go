package runtimeapi

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"
)

// Call emits a call to the runtime entry point id at the end of b, after
// checking the supplied arguments against the fixed prototype's arity.
// Argument *type* checking is deliberately not performed: callers already
// cast to the exact shadow-cell and byte-pointer types the prototypes
// expect (see internal/irtype), and a type mismatch here would indicate a
// bug in this pass, not in the IR it consumes.
func (b *Binding) Call(blk *ir.Block, id FuncID, args ...value.Value) (*ir.InstCall, error) {
	p, ok := prototypes[id]
	if !ok {
		return nil, errors.Errorf("runtimeapi: unknown FuncID %d", id)
	}
	if !p.variadic && len(args) != len(p.params) {
		return nil, errors.Errorf("runtimeapi: %s expects %d arguments, got %d", p.name, len(p.params), len(args))
	}
	fn := b.Func(id)
	call := blk.NewCall(fn, args...)
	return call, nil
}
