package inspector

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"softboundcets/internal/metadata"
)

func newCells(b *ir.Block) metadata.Metadata {
	return metadata.Metadata{
		Base:  b.NewAlloca(types.NewPointer(types.I8)),
		Bound: b.NewAlloca(types.NewPointer(types.I8)),
		Key:   b.NewAlloca(types.I64),
		Lock:  b.NewAlloca(types.NewPointer(types.I8)),
	}
}

func TestInspect_RejectsNonPointerOperand(t *testing.T) {
	insp := &Inspector{Tables: metadata.NewTables(), Safe: metadata.NewSafeSet()}
	if _, err := insp.Inspect(constant.NewInt(types.I32, 0)); err != ErrNonPointerOperand {
		t.Fatalf("Inspect(non-pointer) error = %v, want ErrNonPointerOperand", err)
	}
}

func TestInspect_FunctionPointerNeedsNoInstrumentation(t *testing.T) {
	m := ir.NewModule()
	fn := m.NewFunc("callee", types.Void)

	insp := &Inspector{Tables: metadata.NewTables(), Safe: metadata.NewSafeSet()}
	res, err := insp.Inspect(fn)
	if err != nil {
		t.Fatalf("Inspect(function): %v", err)
	}
	if !res.None {
		t.Fatalf("Inspect(function).None = false, want true")
	}
}

func TestInspect_SafeLocalNeedsNoInstrumentation(t *testing.T) {
	blk := ir.NewBlock("")
	alloca := blk.NewAlloca(types.I32)

	safe := metadata.NewSafeSet()
	safe.Add(alloca.Name())

	insp := &Inspector{Tables: metadata.NewTables(), Safe: safe}
	res, err := insp.Inspect(alloca)
	if err != nil {
		t.Fatalf("Inspect(safe alloca): %v", err)
	}
	if !res.None {
		t.Fatalf("Inspect(safe alloca).None = false, want true")
	}
}

func TestInspect_FunctionScopedTableHit(t *testing.T) {
	blk := ir.NewBlock("")
	load := blk.NewLoad(types.NewPointer(types.I8), blk.NewAlloca(types.NewPointer(types.I8)))

	tables := metadata.NewTables()
	want := newCells(blk)
	if err := tables.PutFunction(load, want); err != nil {
		t.Fatalf("PutFunction: %v", err)
	}

	insp := &Inspector{Tables: tables, Safe: metadata.NewSafeSet()}
	res, err := insp.Inspect(load)
	if err != nil {
		t.Fatalf("Inspect(table hit): %v", err)
	}
	if res.None {
		t.Fatalf("Inspect(table hit).None = true, want false")
	}
	if res.Meta != want {
		t.Fatalf("Inspect(table hit).Meta = %+v, want %+v", res.Meta, want)
	}
}

func TestInspect_SafeGlobalNeedsNoInstrumentation(t *testing.T) {
	m := ir.NewModule()
	g := m.NewGlobalDef("g", constant.NewInt(types.I32, 0))

	safe := metadata.NewSafeSet()
	safe.Add(g.Name())

	insp := &Inspector{Tables: metadata.NewTables(), Safe: safe}
	res, err := insp.Inspect(g)
	if err != nil {
		t.Fatalf("Inspect(safe global): %v", err)
	}
	if !res.None {
		t.Fatalf("Inspect(safe global).None = false, want true")
	}
}

func TestInspect_UnrecognisedFormFallsBackToDontCareAndReports(t *testing.T) {
	m := ir.NewModule()
	// g is deliberately NOT added to the safe set: an unmarked global
	// reference is the "any other constant-pointer expression" rule 6
	// catch-all, since this inspector never special-cases globals beyond
	// the safe-set check.
	g := m.NewGlobalDef("unmarked", constant.NewInt(types.I32, 0))

	dontCare := newCells(ir.NewBlock(""))
	var reported bool
	insp := &Inspector{
		Tables:   metadata.NewTables(),
		Safe:     metadata.NewSafeSet(),
		DontCare: dontCare,
		OnUnsupported: func(operand value.Value, reason string) {
			reported = true
		},
	}
	res, err := insp.Inspect(g)
	if err != nil {
		t.Fatalf("Inspect(unmarked global): %v", err)
	}
	if res.None {
		t.Fatalf("Inspect(unmarked global).None = true, want false")
	}
	if res.Meta != dontCare {
		t.Fatalf("Inspect(unmarked global).Meta = %+v, want don't-care sentinel %+v", res.Meta, dontCare)
	}
	if !reported {
		t.Fatalf("OnUnsupported callback was not invoked for an unrecognised pointer form")
	}
}
