package irtype

import (
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/pkg/errors"
)

// IndexedType walks elemType the way a GetElementPtr instruction does: the
// first index steps through the pointee as an array of elemType (it never
// changes the type, only the address), and every subsequent index steps
// into an aggregate member. It returns the type the GEP result points to.
func IndexedType(elemType types.Type, indices []constant.Constant) (types.Type, error) {
	cur := elemType
	// indices[0] addresses elements of the (conceptual) array of cur; it
	// does not change cur itself.
	for i, idx := range indices[1:] {
		switch t := cur.(type) {
		case *types.ArrayType:
			cur = t.ElemType
		case *types.VectorType:
			cur = t.ElemType
		case *types.StructType:
			n, ok := idx.(*constant.Int)
			if !ok {
				return nil, errors.Errorf("gep index %d into struct must be a constant integer", i+1)
			}
			field := int(n.X.Int64())
			if field < 0 || field >= len(t.Fields) {
				return nil, errors.Errorf("gep index %d out of range for struct with %d fields", field, len(t.Fields))
			}
			cur = t.Fields[field]
		default:
			return nil, errors.Errorf("gep cannot index into type %s", cur)
		}
	}
	return cur, nil
}

// SizeOf returns the size in bytes of t, to the precision the pass needs
// for its runtime dereference-check calls. Only the shapes that can appear
// as the pointee of a checked load/store/alloca in the IR this pass
// consumes are handled; anything else is a planner bug, since the rewriter
// never calls SizeOf on a type it has not already classified.
//
// This pass has no target data-layout beyond a fixed pointer width (see
// DESIGN.md's Open Question decision); struct padding/alignment is not
// modelled.
func SizeOf(t types.Type, ptrWidth int64) (int64, error) {
	switch t := t.(type) {
	case *types.IntType:
		return int64((t.BitSize + 7) / 8), nil
	case *types.PointerType:
		return ptrWidth, nil
	case *types.FloatType:
		switch t.Kind {
		case types.FloatKindFloat:
			return 4, nil
		case types.FloatKindDouble:
			return 8, nil
		}
		return 0, errors.Errorf("unsupported type for size query: %s", t)
	case *types.ArrayType:
		elemSize, err := SizeOf(t.ElemType, ptrWidth)
		if err != nil {
			return 0, err
		}
		return int64(t.Len) * elemSize, nil
	case *types.StructType:
		var total int64
		for _, f := range t.Fields {
			sz, err := SizeOf(f, ptrWidth)
			if err != nil {
				return 0, err
			}
			total += sz
		}
		return total, nil
	default:
		return 0, errors.Errorf("unsupported type for size query: %s", t)
	}
}
