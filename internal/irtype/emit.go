package irtype

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// ConstI32 returns the i32 constant n.
func ConstI32(n int32) *constant.Int {
	return constant.NewInt(types.I32, int64(n))
}

// ConstI64 returns the i64 constant n.
func ConstI64(n int64) *constant.Int {
	return constant.NewInt(types.I64, n)
}

// ByteType returns i8, the element type byte-level pointer arithmetic
// (via a single-index GEP) is computed over.
func ByteType() types.Type {
	return types.I8
}

// CastToBytePointer bitcasts v (already pointer-typed) to i8*, inserting
// the cast at the end of b. If v is already i8*, it is returned unchanged
// and nothing is emitted — the check emitter and shadow-stack protocol
// both need byte pointers and calling this unconditionally would litter
// the IR with identity bitcasts.
func CastToBytePointer(b *ir.Block, v value.Value) value.Value {
	bytePtr := types.NewPointer(types.I8)
	if pt, ok := v.Type().(*types.PointerType); ok {
		if _, ok := pt.ElemType.(*types.IntType); ok && pt.ElemType.(*types.IntType).BitSize == 8 {
			return v
		}
	}
	return b.NewBitCast(v, bytePtr)
}

// SignExtendTo64 sign-extends an integer value to i64, inserting the
// conversion at the end of b. Used for alloca element counts, which may
// arrive as i32 or narrower.
func SignExtendTo64(b *ir.Block, v value.Value) value.Value {
	it, ok := v.Type().(*types.IntType)
	if ok && it.BitSize == 64 {
		return v
	}
	return b.NewSExt(v, types.I64)
}
