// Package ignore decides whether a function symbol is left untouched by
// the pass: the runtime's own support functions, libc variadic intrinsics,
// LLVM intrinsics, and anything the user blacklisted (spec.md §4.6).
package ignore

import "strings"

// substrings that mark a function name as belonging to the runtime or the
// LLVM intrinsic namespace, per spec.md §4.6.
var markers = []string{"__softboundcets", "isoc99", "llvm."}

// Name reports whether name should be left uninstrumented, independent of
// shape (variadic/empty/computed-target), which callers check separately.
func Name(name string, blacklist map[string]bool) bool {
	if blacklist[name] {
		return true
	}
	for _, m := range markers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}
