package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
)

// palette holds the ANSI escape codes used by the text reports. A zero
// palette renders plain text.
type palette struct {
	red, green, yellow, cyan, magenta, bold, dim, reset string
}

var colorPalette = palette{
	red:     "\033[0;31m",
	green:   "\033[0;32m",
	yellow:  "\033[0;33m",
	cyan:    "\033[0;36m",
	magenta: "\033[0;35m",
	bold:    "\033[1m",
	dim:     "\033[2m",
	reset:   "\033[0m",
}

// newPalette returns the color palette unless colors are disabled by flag or
// by the NO_COLOR convention.
func newPalette(noColor bool) palette {
	if noColor || noColorEnv() {
		return palette{}
	}
	return colorPalette
}

// printVerdictLine writes the one-line verdict summary used by verify.
func printVerdictLine(w io.Writer, v *Verdict, p palette) {
	icon := p.green + "ok" + p.reset
	status := p.green + "pass" + p.reset
	if !v.Pass {
		icon = p.red + "FAIL" + p.reset
		status = p.red + strings.Join(v.Failures, "; ") + p.reset
	}

	timing := ""
	if v.Outcome != nil {
		timing = fmt.Sprintf(" %s(%dms)%s", p.dim, v.Outcome.DurationMS, p.reset)
	}
	cached := ""
	if v.Cached {
		cached = p.dim + " [cached]" + p.reset
	}

	fmt.Fprintf(w, "  %-6s %s%s%s - %s%s%s\n", icon, p.bold, v.Name, p.reset, status, timing, cached)
}

// printSummary writes the verify footer.
func printSummary(w io.Writer, s Summary, p palette) {
	fmt.Fprintf(w, "\n%sSummary%s\n", p.bold, p.reset)
	fmt.Fprintf(w, "  %sPassed:%s %d/%d\n", p.green, p.reset, s.Passed, s.Total)
	if s.Failed > 0 {
		fmt.Fprintf(w, "  %sFailed:%s %d\n", p.red, p.reset, s.Failed)
	}
	if s.FromCache > 0 {
		fmt.Fprintf(w, "  %sCached:%s %d\n", p.dim, p.reset, s.FromCache)
	}
	fmt.Fprintf(w, "  %sDuration:%s %dms\n", p.magenta, p.reset, s.DurationMS)
}

// printOutcome writes the detailed view of a single run.
func printOutcome(w io.Writer, out *Outcome, p palette) {
	fmt.Fprintf(w, "%s%s%s\n", p.bold, out.CaseID, p.reset)
	if len(out.Args) > 0 {
		fmt.Fprintf(w, "%sargs: %s%s\n", p.dim, strings.Join(out.Args, " "), p.reset)
	}
	if out.Hardened {
		fmt.Fprintf(w, "%smode: hardened%s\n", p.dim, p.reset)
	}

	if out.Stdout != "" {
		fmt.Fprintf(w, "\n%sstdout:%s\n", p.cyan, p.reset)
		writeIndented(w, out.Stdout, "  ")
	}
	if out.Stderr != "" {
		fmt.Fprintf(w, "\n%sstderr:%s\n", p.yellow, p.reset)
		writeIndented(w, out.Stderr, "  ")
	}

	color := p.green
	if out.Class == TermFault || out.Class == TermTimeout {
		color = p.red
	} else if out.Class == TermError {
		color = p.yellow
	}
	fmt.Fprintf(w, "\n%stermination:%s %s%s%s\n", p.bold, p.reset, color, out.Describe(), p.reset)
}

// printFrames writes the parsed crash trace with the root cause marked.
func printFrames(w io.Writer, t *Trace, p palette) {
	fmt.Fprintf(w, "\n%s%s:%s %s\n", p.red, t.ErrorType, p.reset, t.Message)

	rootIdx := -1
	for i := range t.Frames {
		if t.Frames[i].UserCode {
			rootIdx = i
			break
		}
	}
	if rootIdx < 0 && len(t.Frames) > 0 {
		rootIdx = 0
	}

	for i, f := range t.Frames {
		mark := "  "
		if i == rootIdx {
			mark = p.red + "> " + p.reset
		}
		dim, reset := "", ""
		if !f.UserCode {
			dim, reset = p.dim, p.reset
		}
		loc := ""
		if f.File != "" {
			loc = fmt.Sprintf(" (%s:%d)", f.File, f.Line)
		}
		fmt.Fprintf(w, "%s%s%s%s%s\n", mark, dim, f.Function, loc, reset)
	}
}

func writeIndented(w io.Writer, text, indent string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintf(w, "%s%s\n", indent, line)
	}
}

// caseInfoJSON is the list entry for machine-readable output.
type caseInfoJSON struct {
	ID          string `json:"id"`
	Pattern     string `json:"pattern"`
	Description string `json:"description"`
}

// verifyReportJSON is the machine-readable shape of a verify run.
type verifyReportJSON struct {
	Version string     `json:"version"`
	Results []*Verdict `json:"results"`
	Stats   Summary    `json:"stats"`
}

// writeJSON encodes v to w as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
