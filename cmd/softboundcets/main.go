// Command softboundcets instruments an LLVM IR module with SoftBound+CETS
// spatial and temporal memory-safety checks.
//
// It mirrors cmd/compile/main.go's shape: a single entry point that binds
// its option surface through the flag package, dispatches into the pass
// proper, and exits with a status reflecting whether anything fatal
// happened along the way. Where cmd/compile dispatches on GOARCH into an
// archInits table, this command has only one pass to run; the table
// collapses to the direct pass.Run call SPEC_FULL.md's "Entry point
// shape" describes.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/llir/llvm/asm"

	"softboundcets/internal/options"
	"softboundcets/internal/pass"
)

func main() {
	// disable timestamps for reproducible output
	log.SetFlags(0)
	log.SetPrefix("softboundcets: ")

	opts := options.RegisterFlags(flag.CommandLine)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	inputPath := flag.Arg(0)

	m, err := asm.ParseFile(inputPath)
	if err != nil {
		log.Fatalf("parsing %s: %v", inputPath, err)
	}

	result, err := pass.Run(m, opts)
	if err != nil {
		log.Fatalf("%v", err)
	}

	fmt.Print(m.String())

	if opts.Stats {
		printStats(os.Stderr, result)
	}
	result.Diag.Flush(os.Stderr)
}

func printStats(w *os.File, result *pass.Result) {
	st := result.Stats
	fmt.Fprintf(w, "softboundcets: %d functions instrumented, %d checks inserted, %d calls rewritten\n",
		st.FunctionsInstrumented, st.ChecksInserted, st.CallsRewritten)
	for reason, n := range st.FunctionsSkipped {
		fmt.Fprintf(w, "softboundcets: %d functions skipped (%s)\n", n, reason)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: softboundcets [options] input.ll\n")
	flag.PrintDefaults()
}
