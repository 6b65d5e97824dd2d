// Package inspector implements the Pointer Inspector (spec.md §4.1): given
// a pointer-valued IR operand, classify it and return its metadata
// four-tuple, or report that no instrumentation is needed.
package inspector

import (
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"

	"softboundcets/internal/irtype"
	"softboundcets/internal/metadata"
)

// ErrNonPointerOperand is returned when Inspect is asked to classify a
// value that is not pointer-typed at all (spec.md §7 kind 4): a fatal
// programmer error in the caller, not a property of the IR being
// instrumented.
var ErrNonPointerOperand = errors.New("inspector: operand is not pointer-typed")

// Result is the outcome of inspecting a pointer operand.
type Result struct {
	// None is true when no instrumentation is needed: a function
	// pointer, or an operand already proven safe.
	None bool

	// ReferentType is the pointee type, valid whenever !None.
	ReferentType types.Type

	// Meta is the operand's shadow four-tuple, valid whenever !None.
	// When Meta.DontCare is set, the operand's metadata could not be
	// computed and the sentinel was substituted (spec.md §4.1 rule 6).
	Meta metadata.Metadata
}

// Inspector classifies pointer operands against a function's current
// tables and the module's safe-pointer set.
type Inspector struct {
	Tables   *metadata.Tables
	Safe     metadata.SafeSet
	DontCare metadata.Metadata
	OnUnsupported func(operand value.Value, reason string)
}

// Inspect runs the rules of spec.md §4.1, in order, against v.
func (i *Inspector) Inspect(v value.Value) (Result, error) {
	pt, isPtr := v.Type().(*types.PointerType)
	if !isPtr {
		return Result{}, ErrNonPointerOperand
	}

	// Rule 1: pointer to function type.
	if irtype.IsFunctionPointer(v.Type()) {
		return Result{None: true}, nil
	}

	// Rule 2: local pointer whose name is in the safe set.
	if named, ok := v.(interface{ Name() string }); ok && irtype.IsLocal(v) {
		if i.Safe.Has(named.Name()) {
			return Result{None: true}, nil
		}
	}

	// Rules 3-4: present in function- or block-scoped table. Lookup
	// itself panics if v is present in both (spec.md §7 kind 2) — a
	// conflict must fault loudly, not fail a type-specific check.
	if m, _, ok := i.Tables.Lookup(v); ok {
		return Result{ReferentType: pt.ElemType, Meta: m}, nil
	}

	// Rule 5: constant reference to a safe global.
	if irtype.IsGlobalRef(v) {
		if named, ok := v.(interface{ Name() string }); ok && i.Safe.Has(named.Name()) {
			return Result{None: true}, nil
		}
	}

	// Rule 6: any other constant-pointer expression or unrecognised form.
	if i.OnUnsupported != nil {
		i.OnUnsupported(v, "unrecognised pointer form; using don't-care metadata")
	}
	return Result{ReferentType: pt.ElemType, Meta: i.DontCare}, nil
}
