package metadata

import (
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"
)

// Tables holds the three mutually-exclusive, differently-scoped mappings
// from pointer SSA operands to Metadata (spec.md §3's "Symbol tables").
//
// The block-scoped table is transactional: SaveBlock/RestoreBlock bracket
// a basic block's rewrite so identifiers defined inside one block never
// bleed into a sibling block, which would violate SSA dominance. The
// function-scoped table is reset once per function. The module-scoped
// table is never torn down.
type Tables struct {
	block    map[value.Value]Metadata
	function map[value.Value]Metadata
	module   map[value.Value]Metadata
}

// NewTables returns an empty set of tables, ready for a fresh module.
func NewTables() *Tables {
	return &Tables{
		block:    make(map[value.Value]Metadata),
		function: make(map[value.Value]Metadata),
		module:   make(map[value.Value]Metadata),
	}
}

// ResetFunction clears the function-scoped table; called on function
// entry (spec.md §3, "Lifecycle").
func (t *Tables) ResetFunction() {
	t.function = make(map[value.Value]Metadata)
}

// BlockSnapshot is the saved state taken on block entry and written back
// on block exit.
type BlockSnapshot map[value.Value]Metadata

// SaveBlock snapshots the block-scoped table and clears it, ready for a
// new basic block to populate.
func (t *Tables) SaveBlock() BlockSnapshot {
	saved := t.block
	t.block = make(map[value.Value]Metadata)
	return saved
}

// RestoreBlock writes back a snapshot taken by SaveBlock, discarding
// whatever the just-finished block installed.
func (t *Tables) RestoreBlock(saved BlockSnapshot) {
	t.block = saved
}

// PutBlock installs v's metadata in the block-scoped table. It is a fatal
// programmer error (spec.md §7 kind 2) for v to already be present in the
// function-scoped table.
func (t *Tables) PutBlock(v value.Value, m Metadata) error {
	if _, ok := t.function[v]; ok {
		return errors.Errorf("metadata-scope conflict: %v already has function-scoped metadata", v)
	}
	t.block[v] = m
	return nil
}

// PutFunction installs v's metadata in the function-scoped table. It is a
// fatal programmer error for v to already be present in the block-scoped
// table.
func (t *Tables) PutFunction(v value.Value, m Metadata) error {
	if _, ok := t.block[v]; ok {
		return errors.Errorf("metadata-scope conflict: %v already has block-scoped metadata", v)
	}
	t.function[v] = m
	return nil
}

// PutModule installs v's metadata in the module-scoped table. Module scope
// never expires, so no conflict check against block/function scope is
// meaningful here beyond the usual invariant that v is a global.
func (t *Tables) PutModule(v value.Value, m Metadata) {
	t.module[v] = m
}

// Lookup returns v's metadata from whichever of the three tables holds it,
// and which scope it came from. ok is false if v is in none of them.
func (t *Tables) Lookup(v value.Value) (m Metadata, scope Scope, ok bool) {
	if m, ok := t.function[v]; ok {
		if _, alsoBlock := t.block[v]; alsoBlock {
			panic(errors.Errorf("metadata-scope conflict: %v is in both block- and function-scoped tables", v))
		}
		return m, ScopeFunction, true
	}
	if m, ok := t.block[v]; ok {
		return m, ScopeBlock, true
	}
	if m, ok := t.module[v]; ok {
		return m, ScopeModule, true
	}
	return Metadata{}, 0, false
}

// Scope identifies which of the three tables a Metadata came from.
type Scope int

const (
	ScopeBlock Scope = iota
	ScopeFunction
	ScopeModule
)

func (s Scope) String() string {
	switch s {
	case ScopeBlock:
		return "block"
	case ScopeFunction:
		return "function"
	case ScopeModule:
		return "module"
	default:
		return "unknown"
	}
}
