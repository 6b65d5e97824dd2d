// Package runtimeapi binds the fixed runtime API spec.md §6 enumerates:
// the shadow-stack accessors, the in-memory metadata table, the
// dereference-check primitives, and the malloc/calloc/realloc/free
// wrappers. It is the only package that knows the runtime's symbol names;
// everything else calls it by FuncID.
//
// This mirrors cmd/compile/internal/gc's table of runtime-symbol
// *obj.LSym variables (newobject, typedmemmove, growslice, ...) declared
// once in go.go and referenced by name throughout the backend — except
// here the "symbol" is a typed github.com/llir/llvm/ir.Func declaration
// rather than an obj.LSym, since this pass emits IR, not machine code.
package runtimeapi

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
)

// FuncID names one runtime entry point.
type FuncID int

const (
	GetGlobalLock FuncID = iota
	MetadataLoad
	MetadataStore
	MetadataCheck
	LoadBaseShadowStack
	LoadBoundShadowStack
	LoadKeyShadowStack
	LoadLockShadowStack
	StoreBaseShadowStack
	StoreBoundShadowStack
	StoreKeyShadowStack
	StoreLockShadowStack
	AllocateShadowStackSpace
	DeallocateShadowStackSpace
	SpatialLoadDereferenceCheck
	SpatialStoreDereferenceCheck
	TemporalLoadDereferenceCheck
	TemporalStoreDereferenceCheck
	CreateStackKey
	DestroyStackKey
)

var i8ptr = types.NewPointer(types.I8)

// proto is a runtime function's fixed signature, per spec.md §6.
type proto struct {
	name    string
	ret     types.Type
	params  []types.Type
	variadic bool
}

// prototypes is the fixed table of every runtime entry point this pass may
// call. It is intentionally a flat table, not a struct of function-pointer
// fields the way cmd/compile's Arch is: unlike Arch, which varies per
// target architecture, every one of these signatures is the same on every
// target this pass instruments.
var prototypes = map[FuncID]proto{
	GetGlobalLock: {name: "__softboundcets_get_global_lock", ret: i8ptr},

	MetadataLoad:  {name: "__softboundcets_metadata_load", ret: types.Void, params: []types.Type{i8ptr, types.NewPointer(i8ptr), types.NewPointer(i8ptr), types.NewPointer(types.I64), types.NewPointer(i8ptr)}},
	MetadataStore: {name: "__softboundcets_metadata_store", ret: types.Void, params: []types.Type{i8ptr, i8ptr, i8ptr, types.I64, i8ptr}},
	MetadataCheck: {name: "__softboundcets_metadata_check", ret: types.Void, params: []types.Type{i8ptr, i8ptr, types.I64, i8ptr}},

	LoadBaseShadowStack:  {name: "__softboundcets_load_base_shadow_stack", ret: i8ptr, params: []types.Type{types.I32}},
	LoadBoundShadowStack: {name: "__softboundcets_load_bound_shadow_stack", ret: i8ptr, params: []types.Type{types.I32}},
	LoadKeyShadowStack:   {name: "__softboundcets_load_key_shadow_stack", ret: types.I64, params: []types.Type{types.I32}},
	LoadLockShadowStack:  {name: "__softboundcets_load_lock_shadow_stack", ret: i8ptr, params: []types.Type{types.I32}},

	StoreBaseShadowStack:  {name: "__softboundcets_store_base_shadow_stack", ret: types.Void, params: []types.Type{i8ptr, types.I32}},
	StoreBoundShadowStack: {name: "__softboundcets_store_bound_shadow_stack", ret: types.Void, params: []types.Type{i8ptr, types.I32}},
	StoreKeyShadowStack:   {name: "__softboundcets_store_key_shadow_stack", ret: types.Void, params: []types.Type{types.I64, types.I32}},
	StoreLockShadowStack:  {name: "__softboundcets_store_lock_shadow_stack", ret: types.Void, params: []types.Type{i8ptr, types.I32}},

	AllocateShadowStackSpace:   {name: "__softboundcets_allocate_shadow_stack_space", ret: types.Void, params: []types.Type{types.I32}},
	DeallocateShadowStackSpace: {name: "__softboundcets_deallocate_shadow_stack_space", ret: types.Void},

	SpatialLoadDereferenceCheck:  {name: "__softboundcets_spatial_load_dereference_check", ret: types.Void, params: []types.Type{i8ptr, i8ptr, i8ptr, types.I64}},
	SpatialStoreDereferenceCheck: {name: "__softboundcets_spatial_store_dereference_check", ret: types.Void, params: []types.Type{i8ptr, i8ptr, i8ptr, types.I64}},
	TemporalLoadDereferenceCheck:  {name: "__softboundcets_temporal_load_dereference_check", ret: types.Void, params: []types.Type{i8ptr, types.I64}},
	TemporalStoreDereferenceCheck: {name: "__softboundcets_temporal_store_dereference_check", ret: types.Void, params: []types.Type{i8ptr, types.I64}},

	CreateStackKey:  {name: "__softboundcets_create_stack_key", ret: types.Void, params: []types.Type{types.NewPointer(i8ptr), types.NewPointer(types.I64)}},
	DestroyStackKey: {name: "__softboundcets_destroy_stack_key", ret: types.Void, params: []types.Type{i8ptr, types.I64}},
}

// wrappers maps a standard-library allocator to the runtime's
// SoftBound-aware replacement (spec.md §6).
var wrappers = map[string]string{
	"malloc":  "softboundcets_malloc",
	"calloc":  "softboundcets_calloc",
	"realloc": "softboundcets_realloc",
	"free":    "softboundcets_free",
}

// Wrapper returns the wrapper name for a standard-library allocator name,
// and whether one exists.
func Wrapper(name string) (string, bool) {
	w, ok := wrappers[name]
	return w, ok
}

// Binding emits and caches the *ir.Func declarations for every runtime
// entry point a module's instrumented functions call. Declarations are
// emitted lazily on first use but are idempotent: calling Func twice for
// the same FuncID returns the same *ir.Func, so the module ends up with
// exactly one declaration per entry point regardless of how many call
// sites reference it.
type Binding struct {
	module *ir.Module
	decls  map[FuncID]*ir.Func
	wraps  map[string]*ir.Func
}

// NewBinding returns a Binding that will declare runtime functions into m
// as they are needed.
func NewBinding(m *ir.Module) *Binding {
	return &Binding{
		module: m,
		decls:  make(map[FuncID]*ir.Func),
		wraps:  make(map[string]*ir.Func),
	}
}

// Func returns the (possibly newly declared) *ir.Func for id.
func (b *Binding) Func(id FuncID) *ir.Func {
	if f, ok := b.decls[id]; ok {
		return f
	}
	p := prototypes[id]
	f := b.module.NewFunc(p.name, p.ret, paramsOf(p)...)
	f.Sig.Variadic = p.variadic
	b.decls[id] = f
	return f
}

// WrapperFunc returns the (possibly newly declared) *ir.Func for the
// wrapper of a standard-library allocator named origName, matching its
// original signature (wrappers are drop-in replacements).
func (b *Binding) WrapperFunc(origName string, sig *ir.Func) *ir.Func {
	wrapName, ok := wrappers[origName]
	if !ok {
		return nil
	}
	if f, ok := b.wraps[wrapName]; ok {
		return f
	}
	params := make([]*ir.Param, len(sig.Params))
	for i, p := range sig.Params {
		params[i] = ir.NewParam("", p.Typ)
	}
	f := b.module.NewFunc(wrapName, sig.Sig.RetType, params...)
	f.Sig.Variadic = sig.Sig.Variadic
	b.wraps[wrapName] = f
	return f
}

func paramsOf(p proto) []*ir.Param {
	params := make([]*ir.Param, len(p.params))
	for i, t := range p.params {
		params[i] = ir.NewParam("", t)
	}
	return params
}
