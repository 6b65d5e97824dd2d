// Package irtype holds small, dependency-free predicates and type queries
// over github.com/llir/llvm IR that the rest of the pass shares: is a value
// pointer-typed, does a pointer type name a function, is a value a
// compile-time constant, and so on. The predicates and type queries never
// mutate IR; the emission helpers in emit.go insert instructions.
package irtype

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// IsPointer reports whether t is a pointer type.
func IsPointer(t types.Type) bool {
	_, ok := t.(*types.PointerType)
	return ok
}

// IsFunctionPointer reports whether t is a pointer to a function type.
func IsFunctionPointer(t types.Type) bool {
	pt, ok := t.(*types.PointerType)
	if !ok {
		return false
	}
	_, ok = pt.ElemType.(*types.FuncType)
	return ok
}

// IsConstant reports whether v is a compile-time constant (as opposed to an
// SSA instruction result or a block/function parameter).
func IsConstant(v value.Value) bool {
	_, ok := v.(constant.Constant)
	return ok
}

// IsLocal reports whether v is produced within a function body: an
// instruction result or a formal parameter. Globals and functions
// referenced as constants are not local.
func IsLocal(v value.Value) bool {
	switch v.(type) {
	case ir.Instruction:
		return true
	case *ir.Param:
		return true
	default:
		return false
	}
}

// IsGlobalRef reports whether v is a reference to a module-level global
// variable (as opposed to a function, or any other constant expression).
func IsGlobalRef(v value.Value) bool {
	_, ok := v.(*ir.Global)
	return ok
}

// IsFuncRef reports whether v is a reference to a function definition or
// declaration.
func IsFuncRef(v value.Value) bool {
	_, ok := v.(*ir.Func)
	return ok
}

// PointeeType returns the element type of a pointer type, and false if t is
// not a pointer.
func PointeeType(t types.Type) (types.Type, bool) {
	pt, ok := t.(*types.PointerType)
	if !ok {
		return nil, false
	}
	return pt.ElemType, true
}
