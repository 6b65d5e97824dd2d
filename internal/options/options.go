// Package options binds the pass's recognized configuration (spec.md §6)
// to the standard flag package, the way cmd/asm/internal/flags and
// cmd/compile/internal/gc bind their own command-line surface: a plain
// struct populated by flag.*Var calls, rather than a generic options map.
package options

import (
	"flag"
	"strings"
)

// Options holds every recognized instrumentation switch.
type Options struct {
	InstrumentLoad    bool
	InstrumentStore   bool
	InstrumentCall    bool
	InstrumentStack   bool
	InstrumentBitcast bool
	EmitChecks        bool

	// VerboseDiagnostics pretty-prints operand detail alongside each
	// diagnostic-log entry (SPEC_FULL.md §4 supplemental option). It
	// never changes emitted IR.
	VerboseDiagnostics bool

	// Stats prints a summary of checks inserted / calls rewritten /
	// functions skipped after the pass completes (SPEC_FULL.md §4).
	Stats bool

	Blacklist blacklist
}

// blacklist is a repeatable -blacklist flag collecting user-supplied
// function symbols the pass must leave untouched (spec.md §6).
type blacklist map[string]bool

func (b *blacklist) String() string {
	if b == nil || *b == nil {
		return ""
	}
	names := make([]string, 0, len(*b))
	for name := range *b {
		names = append(names, name)
	}
	return strings.Join(names, ",")
}

func (b *blacklist) Set(value string) error {
	if *b == nil {
		*b = make(blacklist)
	}
	for _, name := range strings.Split(value, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			(*b)[name] = true
		}
	}
	return nil
}

// Has reports whether name was given via one or more -blacklist flags.
func (b blacklist) Has(name string) bool {
	return b[name]
}

// BlacklistSet returns the blacklist as the plain map the rest of the pass
// (planner, ignore) takes, so only this package needs to know the
// flag.Value wrapper type exists.
func (o *Options) BlacklistSet() map[string]bool {
	return map[string]bool(o.Blacklist)
}

// RegisterFlags binds every recognized option to fs, defaulting the five
// instrument-* switches to on, emit-checks, -verbose-diagnostics and
// -stats to off, and the blacklist to empty.
func RegisterFlags(fs *flag.FlagSet) *Options {
	o := &Options{}
	fs.BoolVar(&o.InstrumentLoad, "instrument-load", true, "emit checks and metadata loads at loads")
	fs.BoolVar(&o.InstrumentStore, "instrument-store", true, "emit checks and metadata stores at stores")
	fs.BoolVar(&o.InstrumentCall, "instrument-call", true, "apply shadow-stack protocol at call sites")
	fs.BoolVar(&o.InstrumentStack, "instrument-stack", true, "track metadata for allocas")
	fs.BoolVar(&o.InstrumentBitcast, "instrument-bitcast", true, "propagate metadata through bitcasts")
	fs.BoolVar(&o.EmitChecks, "emit-checks", false, "emit optional metadata-self-consistency checks")
	fs.BoolVar(&o.VerboseDiagnostics, "verbose-diagnostics", false, "pretty-print operand detail with each diagnostic")
	fs.BoolVar(&o.Stats, "stats", false, "print a summary of inserted checks and rewritten calls")
	fs.Var(&o.Blacklist, "blacklist", "comma-separated, repeatable list of function symbols to leave uninstrumented")
	return o
}
