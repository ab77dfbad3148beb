package main

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Verdict is the result of checking one manifest entry against the outcome
// of its run.
type Verdict struct {
	Name   string `json:"name"`
	CaseID string `json:"case"`
	Pass   bool   `json:"pass"`
	// Failures lists every expectation the outcome violated.
	Failures []string `json:"failures,omitempty"`
	Outcome  *Outcome `json:"outcome,omitempty"`
	// Cached is true when the verdict was served from the verdict cache
	// instead of a fresh run.
	Cached bool `json:"cached,omitempty"`
}

// CheckOutcome evaluates an outcome against one expectation entry.
func CheckOutcome(exp Expectation, out *Outcome) *Verdict {
	v := &Verdict{
		Name:    exp.EntryName(),
		CaseID:  exp.Case,
		Outcome: out,
	}

	fail := func(format string, args ...any) {
		v.Failures = append(v.Failures, fmt.Sprintf(format, args...))
	}

	if out.Class != exp.Termination {
		fail("termination = %s, want %s (%s)", out.Class, exp.Termination, out.Describe())
	}

	// Ordered marker scan: each marker must appear after the previous one.
	rest := out.Stdout
	for _, marker := range exp.StdoutContains {
		i := strings.Index(rest, marker)
		if i < 0 {
			if strings.Contains(out.Stdout, marker) {
				fail("stdout marker %q out of order", marker)
			} else {
				fail("stdout missing marker %q", marker)
			}
			continue
		}
		rest = rest[i+len(marker):]
	}

	for _, marker := range exp.StdoutAbsent {
		if strings.Contains(out.Stdout, marker) {
			fail("stdout unexpectedly contains %q", marker)
		}
	}

	for _, marker := range exp.StderrContains {
		if !strings.Contains(out.Stderr, marker) {
			fail("stderr missing marker %q", marker)
		}
	}

	if exp.PanicContains != "" || exp.FaultFrame != "" {
		trace, ok := ParseTrace(out.Stderr)
		if !ok {
			fail("stderr has no parseable crash trace")
		} else {
			if exp.PanicContains != "" && !strings.Contains(trace.Message, exp.PanicContains) {
				fail("crash message %q does not contain %q", trace.Message, exp.PanicContains)
			}
			if exp.FaultFrame != "" {
				root := trace.RootCause()
				if root == nil {
					fail("crash trace has no frames")
				} else if !strings.Contains(root.Function, exp.FaultFrame) {
					fail("root-cause frame %q does not contain %q", root.Function, exp.FaultFrame)
				}
			}
		}
	}

	v.Pass = len(v.Failures) == 0
	return v
}

// Summary aggregates a verification pass.
type Summary struct {
	Total      int   `json:"total"`
	Passed     int   `json:"passed"`
	Failed     int   `json:"failed"`
	FromCache  int   `json:"from_cache"`
	DurationMS int64 `json:"duration_ms"`
}

// Verifier runs manifest entries through the Runner and checks the results,
// consulting the verdict cache when one is configured.
type Verifier struct {
	Runner *Runner
	Cache  *VerdictCache // nil disables caching
	// ManifestData is the raw manifest, part of the cache key.
	ManifestData []byte
	// OnVerdict, when set, is called after each entry (progress reporting).
	OnVerdict func(*Verdict)
}

// VerifyAll runs every entry and returns the verdicts with a summary.
func (vf *Verifier) VerifyAll(ctx context.Context, entries []Expectation) ([]*Verdict, Summary, error) {
	var verdicts []*Verdict
	start := time.Now()

	for _, exp := range entries {
		if err := ctx.Err(); err != nil {
			return verdicts, summarize(verdicts, start), err
		}

		v, err := vf.verifyOne(ctx, exp)
		if err != nil {
			return verdicts, summarize(verdicts, start), err
		}
		verdicts = append(verdicts, v)
		if vf.OnVerdict != nil {
			vf.OnVerdict(v)
		}
	}

	return verdicts, summarize(verdicts, start), nil
}

func (vf *Verifier) verifyOne(ctx context.Context, exp Expectation) (*Verdict, error) {
	var key string
	if vf.Cache != nil {
		var err error
		key, err = vf.Cache.Fingerprint(vf.Runner.Exe, vf.ManifestData, exp)
		if err != nil {
			// Fingerprint trouble is non-fatal; fall through to a fresh run.
			fmt.Fprintf(errOut, "faultline: cache fingerprint error: %v\n", err)
		} else if v, ok := vf.Cache.Get(key); ok {
			v.Cached = true
			return v, nil
		}
	}

	out, err := vf.Runner.Run(ctx, exp.Case, exp.Args, exp.Hardened)
	if err != nil {
		return nil, err
	}
	v := CheckOutcome(exp, out)

	if vf.Cache != nil && key != "" {
		if err := vf.Cache.Put(key, v); err != nil {
			fmt.Fprintf(errOut, "faultline: cache store error: %v\n", err)
		}
	}
	return v, nil
}

func summarize(verdicts []*Verdict, start time.Time) Summary {
	s := Summary{
		Total:      len(verdicts),
		DurationMS: time.Since(start).Milliseconds(),
	}
	for _, v := range verdicts {
		if v.Pass {
			s.Passed++
		} else {
			s.Failed++
		}
		if v.Cached {
			s.FromCache++
		}
	}
	return s
}
