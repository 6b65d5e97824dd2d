// Package metadata defines the SoftBound+CETS shadow four-tuple (base,
// bound, key, lock) and the three scoped symbol tables that map pointer
// SSA values to their metadata, per spec.md §3.
package metadata

import (
	"github.com/llir/llvm/ir"
)

// Metadata is a pointer's shadow four-tuple: pointers into function-local
// shadow storage holding the base address, the bound (first byte past the
// allocation), the allocation key, and the lock address. All four cells
// are allocas created once in the function prologue; only their contents
// change as metadata is propagated.
//
// DontCare flags the per-function sentinel (base=bound=0, key=0, lock of a
// word holding 0): a flattened stand-in for a Real|DontCare sum type, kept
// this way so the check emitter is the only place that needs to branch on
// it (see DESIGN.md's note on spec.md §9's redesign suggestion).
type Metadata struct {
	Base  *ir.InstAlloca // alloca i8*
	Bound *ir.InstAlloca // alloca i8*
	Key   *ir.InstAlloca // alloca i64
	Lock  *ir.InstAlloca // alloca i8*

	DontCare bool
}

// Valid reports whether m has all four shadow cells populated. A zero
// Metadata (no cells) means "no metadata was ever planned for this
// operand" and must never be installed into a table.
func (m Metadata) Valid() bool {
	return m.Base != nil && m.Bound != nil && m.Key != nil && m.Lock != nil
}
