package irtype

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
)

func TestSizeOf(t *testing.T) {
	const ptrWidth = 8

	tests := []struct {
		name    string
		t       types.Type
		want    int64
		wantErr bool
	}{
		{name: "i8", t: types.I8, want: 1},
		{name: "i32", t: types.I32, want: 4},
		{name: "i64", t: types.I64, want: 8},
		{name: "i1 rounds up to one byte", t: types.I1, want: 1},
		{name: "pointer uses fixed ptrWidth", t: types.NewPointer(types.I32), want: ptrWidth},
		{name: "float", t: types.Float, want: 4},
		{name: "double", t: types.Double, want: 8},
		{name: "array of i32", t: types.NewArray(4, types.I32), want: 16},
		{name: "struct of i32 and i8", t: types.NewStruct(types.I32, types.I8), want: 5},
		{name: "nested array", t: types.NewArray(2, types.NewArray(3, types.I8)), want: 6},
		{name: "unsupported type errors", t: types.Void, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SizeOf(tt.t, ptrWidth)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("SizeOf(%s) = %d, nil; want error", tt.t, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("SizeOf(%s): unexpected error: %v", tt.t, err)
			}
			if got != tt.want {
				t.Fatalf("SizeOf(%s) = %d, want %d", tt.t, got, tt.want)
			}
		})
	}
}

func TestIndexedType(t *testing.T) {
	structTy := types.NewStruct(types.I32, types.NewPointer(types.I8))

	tests := []struct {
		name    string
		elem    types.Type
		indices []constant.Constant
		want    types.Type
		wantErr bool
	}{
		{
			name:    "single index leaves element type unchanged",
			elem:    types.I32,
			indices: []constant.Constant{ConstI64(0)},
			want:    types.I32,
		},
		{
			name:    "array index steps into element type",
			elem:    types.NewArray(4, types.I32),
			indices: []constant.Constant{ConstI64(0), ConstI64(2)},
			want:    types.I32,
		},
		{
			name:    "struct index selects field type",
			elem:    structTy,
			indices: []constant.Constant{ConstI64(0), ConstI32(1)},
			want:    types.NewPointer(types.I8),
		},
		{
			name:    "struct index must be constant int",
			elem:    structTy,
			indices: []constant.Constant{ConstI64(0), constant.NewFloat(types.Float, 0)},
			wantErr: true,
		},
		{
			name:    "struct index out of range",
			elem:    structTy,
			indices: []constant.Constant{ConstI64(0), ConstI32(5)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IndexedType(tt.elem, tt.indices)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("IndexedType(%s) = %v, nil; want error", tt.elem, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("IndexedType(%s): unexpected error: %v", tt.elem, err)
			}
			if got.String() != tt.want.String() {
				t.Fatalf("IndexedType(%s) = %s, want %s", tt.elem, got, tt.want)
			}
		})
	}
}

func TestCastToBytePointer_SkipsIdentityCast(t *testing.T) {
	blk := ir.NewBlock("")
	i8ptrVal := blk.NewAlloca(types.I8)

	got := CastToBytePointer(blk, i8ptrVal)
	if len(blk.Insts) != 1 {
		t.Fatalf("CastToBytePointer on an already-i8* value inserted %d instructions, want 0 beyond the alloca", len(blk.Insts)-1)
	}
	if got != i8ptrVal {
		t.Fatalf("CastToBytePointer should return the original value unchanged for i8*")
	}
}

func TestCastToBytePointer_CastsOtherPointerTypes(t *testing.T) {
	blk := ir.NewBlock("")
	i32ptrVal := blk.NewAlloca(types.I32)

	before := len(blk.Insts)
	got := CastToBytePointer(blk, i32ptrVal)
	if len(blk.Insts) != before+1 {
		t.Fatalf("CastToBytePointer on an i32* value did not append a bitcast")
	}
	if !IsPointer(got.Type()) {
		t.Fatalf("CastToBytePointer result is not pointer-typed")
	}
}
