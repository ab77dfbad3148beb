// faultline is a catalogue of deliberately crashing programs and the harness
// that reproduces and verifies them. Each case demonstrates one classic
// crash pattern; the flagship case looks up a user record and dereferences
// its absent manager relation. The harness runs a case in a child process,
// captures its output, classifies how it died, and checks the observed
// behavior against an expectation manifest.
//
// Modes:
//   - list:   show the catalogue
//   - run:    reproduce one case and show what happened
//   - verify: regression-check the whole catalogue against the manifest
//   - serve:  newline-delimited JSON request/response loop on stdin/stdout
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// HarnessVersion tags reports, the serve protocol, and cache entries.
const HarnessVersion = "0.4.0"

// errOut is where diagnostics go; stdout stays machine-readable in --json
// and serve modes. Swapped out in tests.
var errOut io.Writer = os.Stderr

// noColorEnv honors the NO_COLOR convention and dumb terminals.
func noColorEnv() bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return true
	}
	return os.Getenv("TERM") == "dumb"
}

var rootCmd = &cobra.Command{
	Use:           "faultline",
	Short:         "faultline is a crash-reproduction catalogue and harness",
	Version:       HarnessVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the catalogued reproductions",
	RunE:  runList,
}

var runCmd = &cobra.Command{
	Use:   "run <case> [args...]",
	Short: "Reproduce one case in a child process and report how it died",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRun,
}

var verifyCmd = &cobra.Command{
	Use:   "verify [entries...]",
	Short: "Run manifest entries and check outcomes against expectations",
	RunE:  runVerify,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run JSON request/response loop on stdin/stdout",
	RunE:  runServe,
}

// execCmd is the child side of the runner: it executes a case body
// in-process. An escaped panic here IS the reproduction, so nothing may
// recover it. Hidden because users drive cases through run/verify.
var execCmd = &cobra.Command{
	Use:    "exec <case> [args...]",
	Short:  "Execute a case body in-process (child side of run)",
	Hidden: true,
	Args:   cobra.MinimumNArgs(1),
	RunE:   runExec,
}

var (
	jsonFlag    bool
	noColorFlag bool

	hardenedFlag     bool
	framesFlag       bool
	contextFlag      bool
	contextLinesFlag int
	contextRootFlag  string

	filterFlag          string
	limitFlag           int
	timeoutFlag         time.Duration
	manifestFlag        string
	cacheDirFlag        string
	maxCacheEntriesFlag int

	execHardenedFlag bool
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output")

	runCmd.Flags().BoolVar(&hardenedFlag, "hardened", false, "Run the checked variant of the case")
	runCmd.Flags().BoolVar(&framesFlag, "frames", false, "Show parsed crash trace frames")
	runCmd.Flags().BoolVar(&contextFlag, "context", false, "Show source context around the fault")
	runCmd.Flags().IntVar(&contextLinesFlag, "context-lines", DefaultContextLines, "Lines of source context on each side")
	runCmd.Flags().StringVar(&contextRootFlag, "context-root", "", "Root for resolving relative trace paths")
	runCmd.Flags().DurationVar(&timeoutFlag, "timeout", DefaultRunTimeout, "Per-case run timeout")

	verifyCmd.Flags().StringVarP(&filterFlag, "filter", "f", "", "Filter entries by name, case, or pattern substring")
	verifyCmd.Flags().IntVarP(&limitFlag, "limit", "n", 0, "Run at most this many entries (0 = all)")
	verifyCmd.Flags().DurationVar(&timeoutFlag, "timeout", DefaultRunTimeout, "Per-case run timeout")
	verifyCmd.Flags().StringVar(&manifestFlag, "manifest", "", "Expectation manifest path (default: built-in)")
	verifyCmd.Flags().StringVar(&cacheDirFlag, "cache-dir", "", "Directory for the verdict cache (empty = no cache)")
	verifyCmd.Flags().IntVar(&maxCacheEntriesFlag, "max-cache-entries", DefaultMaxCacheEntries, "Max cached verdicts before LRU eviction")

	serveCmd.Flags().StringVar(&manifestFlag, "manifest", "", "Expectation manifest path (default: built-in)")
	serveCmd.Flags().DurationVar(&timeoutFlag, "timeout", DefaultRunTimeout, "Per-case run timeout")

	execCmd.Flags().BoolVar(&execHardenedFlag, "hardened", false, "Execute the checked variant")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(execCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(errOut, "faultline: %v\n", err)
		os.Exit(1)
	}
}

func runList(cmd *cobra.Command, args []string) error {
	cases := AllCases()

	if jsonFlag {
		var infos []caseInfoJSON
		for _, c := range cases {
			infos = append(infos, caseInfoJSON{ID: c.ID, Pattern: c.Pattern, Description: c.Description})
		}
		return writeJSON(os.Stdout, infos)
	}

	p := newPalette(noColorFlag)
	fmt.Printf("%s%d catalogued reproductions%s\n\n", p.bold, len(cases), p.reset)
	for _, c := range cases {
		fmt.Printf("  %s%-26s%s %s[%s]%s %s\n", p.bold, c.ID, p.reset, p.cyan, c.Pattern, p.reset, c.Description)
	}
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	caseID := args[0]
	if _, ok := LookupCase(caseID); !ok {
		return fmt.Errorf("unknown case %q (see 'faultline list')", caseID)
	}

	r := &Runner{Timeout: timeoutFlag}
	out, err := r.Run(cmd.Context(), caseID, args[1:], hardenedFlag)
	if err != nil {
		return err
	}

	trace, hasTrace := ParseTrace(out.Stderr)

	if jsonFlag {
		payload := struct {
			*Outcome
			Trace *Trace `json:"trace,omitempty"`
		}{Outcome: out}
		if hasTrace {
			payload.Trace = trace
		}
		return writeJSON(os.Stdout, payload)
	}

	p := newPalette(noColorFlag)
	printOutcome(os.Stdout, out, p)

	if framesFlag && hasTrace {
		printFrames(os.Stdout, trace, p)
	}
	if contextFlag && hasTrace {
		sc := SourceContext{Lines: contextLinesFlag, Root: contextRootFlag}
		if ctxText, ok := sc.FrameContext(trace.RootCause()); ok {
			fmt.Printf("\n%ssource context:%s\n", p.cyan, p.reset)
			writeIndented(os.Stdout, ctxText, "  ")
		}
	}
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	manifest, manifestData, err := LoadManifest(manifestFlag)
	if err != nil {
		return err
	}

	entries := FilterEntries(manifest.Cases, args, filterFlag, limitFlag)
	if len(entries) == 0 {
		return fmt.Errorf("no manifest entries match")
	}

	vf := &Verifier{
		Runner:       &Runner{Timeout: timeoutFlag},
		ManifestData: manifestData,
	}
	if cacheDirFlag != "" {
		vf.Cache = &VerdictCache{Dir: cacheDirFlag, MaxEntries: maxCacheEntriesFlag}
	}

	p := newPalette(noColorFlag)
	if !jsonFlag {
		fmt.Printf("%sfaultline verify%s\n", p.bold, p.reset)
		fmt.Printf("%sentries: %d%s\n\n", p.dim, len(entries), p.reset)
		vf.OnVerdict = func(v *Verdict) { printVerdictLine(os.Stdout, v, p) }
	}

	verdicts, summary, err := vf.VerifyAll(cmd.Context(), entries)
	if err != nil {
		return err
	}

	if jsonFlag {
		if err := writeJSON(os.Stdout, verifyReportJSON{
			Version: HarnessVersion,
			Results: verdicts,
			Stats:   summary,
		}); err != nil {
			return err
		}
	} else {
		printSummary(os.Stdout, summary, p)
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d entries failed", summary.Failed, summary.Total)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	manifest, manifestData, err := LoadManifest(manifestFlag)
	if err != nil {
		return err
	}

	s := &Server{
		Runner:       &Runner{Timeout: timeoutFlag},
		Manifest:     manifest,
		ManifestData: manifestData,
	}
	return s.Serve(cmd.Context(), os.Stdin, os.Stdout)
}

func runExec(cmd *cobra.Command, args []string) error {
	c, ok := LookupCase(args[0])
	if !ok {
		return fmt.Errorf("unknown case %q", args[0])
	}
	return c.Run(args[1:], execHardenedFlag, os.Stdout)
}
