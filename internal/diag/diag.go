// Package diag implements the pass's error-handling design (spec.md §7):
// non-fatal diagnostics accumulate in a per-pass log flushed to stderr
// after the module is produced, while fatal conditions (metadata-scope
// conflicts, missing shadow storage, non-pointer operands where a pointer
// is required) abort immediately with a message naming the offending
// function and operand.
//
// Modeled on cmd/go/internal/base's Errorf/Fatalf/SetExitStatus split,
// with github.com/kr/pretty available for a verbose dump of the operand
// that triggered a diagnostic.
package diag

import (
	"fmt"
	"io"
	"os"

	"github.com/kr/pretty"
)

// Kind classifies a diagnostic per spec.md §7.
type Kind int

const (
	// UnsupportedConstruct: a pointer shape the pass does not yet handle.
	// Non-fatal; the pass falls back to don't-care metadata.
	UnsupportedConstruct Kind = iota
	// KilledMetadataReload: a pointer's block-scoped metadata was
	// invalidated by an earlier call and had to be reloaded from the
	// in-memory metadata table.
	KilledMetadataReload
)

// Entry is one accumulated diagnostic.
type Entry struct {
	Kind     Kind
	Function string
	Message  string
}

// Log accumulates non-fatal diagnostics for the lifetime of a pass run.
type Log struct {
	entries []Entry
	verbose bool
}

// NewLog returns an empty diagnostic log. When verbose is true, ReportDetail
// appends a pretty-printed rendering of its detail value to the entry's
// message.
func NewLog(verbose bool) *Log {
	return &Log{verbose: verbose}
}

// Report appends a non-fatal diagnostic naming the function it occurred
// in. It carries no detail value; see ReportDetail.
func (l *Log) Report(kind Kind, function, format string, args ...interface{}) {
	l.entries = append(l.entries, Entry{
		Kind:     kind,
		Function: function,
		Message:  fmt.Sprintf(format, args...),
	})
}

// ReportDetail is like Report but also records a value to pretty-print in
// verbose mode (spec_full.md's -verbose-diagnostics option).
func (l *Log) ReportDetail(kind Kind, function string, detail interface{}, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.verbose {
		msg = fmt.Sprintf("%s\n%s", msg, pretty.Sprint(detail))
	}
	l.entries = append(l.entries, Entry{Kind: kind, Function: function, Message: msg})
}

// Len reports how many diagnostics have accumulated.
func (l *Log) Len() int {
	return len(l.entries)
}

// Flush writes every accumulated diagnostic to w, one per line, and clears
// the log. Called once after the whole module has been produced.
func (l *Log) Flush(w io.Writer) {
	for _, e := range l.entries {
		fmt.Fprintf(w, "softboundcets: %s: %s\n", e.Function, e.Message)
	}
	l.entries = nil
}

// Fatalf reports a programmer-error diagnostic (spec.md §7 kinds 2-4) and
// aborts the process immediately, naming the offending function and
// printing the operand.
func Fatalf(function string, operand fmt.Stringer, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if operand != nil {
		fmt.Fprintf(os.Stderr, "softboundcets: fatal: %s: %s (operand: %s)\n", function, msg, operand.String())
	} else {
		fmt.Fprintf(os.Stderr, "softboundcets: fatal: %s: %s\n", function, msg)
	}
	os.Exit(2)
}
