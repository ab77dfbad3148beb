package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Termination classes for a finished reproduction.
const (
	// TermClean: exit status 0.
	TermClean = "clean"
	// TermFault: abnormal termination, killed by a signal or exited with a
	// Go panic / runtime fatal trace on stderr.
	TermFault = "fault"
	// TermError: controlled nonzero exit without fault evidence (the
	// hardened reproductions end here).
	TermError = "error"
	// TermTimeout: the child outlived its deadline and was killed.
	TermTimeout = "timeout"
)

// Outcome captures one finished child run.
type Outcome struct {
	CaseID   string   `json:"case"`
	Args     []string `json:"args,omitempty"`
	Hardened bool     `json:"hardened,omitempty"`

	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	Class string `json:"termination"`
	// ExitCode is -1 when the child was killed by a signal.
	ExitCode int `json:"exit_code"`
	// Signal is the name of the terminating signal, when there was one.
	Signal string `json:"signal,omitempty"`

	DurationMS int64 `json:"duration_ms"`
}

// Runner executes catalogue cases in a child process so the parent survives
// the reproduced fault. The child is this same binary invoked with the
// hidden exec subcommand.
type Runner struct {
	// Exe is the harness binary to re-exec; defaults to os.Executable().
	Exe string
	// Timeout bounds each child run. Zero means DefaultRunTimeout.
	Timeout time.Duration
}

// DefaultRunTimeout bounds a single reproduction. Even the stack-exhaustion
// case finishes well inside this.
const DefaultRunTimeout = 30 * time.Second

// Run executes one case and classifies how the child died. The returned
// error covers harness problems only (missing binary, spawn failure); a
// crashing child is a successful run with Class == TermFault.
func (r *Runner) Run(ctx context.Context, caseID string, args []string, hardened bool) (*Outcome, error) {
	exe := r.Exe
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locating harness binary: %w", err)
		}
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := []string{"exec", caseID}
	if hardened {
		argv = append(argv, "--hardened")
	}
	argv = append(argv, args...)

	cmd := exec.CommandContext(ctx, exe, argv...)

	// In faithful mode the unrecovered panic must terminate the child
	// abnormally, by signal, like a native binary segfaulting.
	// GOTRACEBACK=crash makes the runtime abort instead of exiting 2.
	gotraceback := "GOTRACEBACK=system"
	if !hardened {
		gotraceback = "GOTRACEBACK=crash"
	}
	cmd.Env = append(os.Environ(), gotraceback)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	out := &Outcome{
		CaseID:     caseID,
		Args:       args,
		Hardened:   hardened,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMS: elapsed.Milliseconds(),
	}

	if ctx.Err() == context.DeadlineExceeded {
		out.Class = TermTimeout
		out.ExitCode = -1
		return out, nil
	}

	if runErr == nil {
		out.Class = TermClean
		out.ExitCode = 0
		return out, nil
	}

	var ee *exec.ExitError
	if !errors.As(runErr, &ee) {
		return nil, fmt.Errorf("running case %s: %w", caseID, runErr)
	}

	classify(out, ee)
	return out, nil
}

// classify fills Class, ExitCode and Signal from a nonzero child exit.
func classify(out *Outcome, ee *exec.ExitError) {
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok {
		us := unix.WaitStatus(ws)
		if us.Signaled() {
			out.Class = TermFault
			out.ExitCode = -1
			out.Signal = unix.SignalName(us.Signal())
			return
		}
		out.ExitCode = us.ExitStatus()
	} else {
		out.ExitCode = ee.ExitCode()
	}

	// No signal: the runtime may still have caught the fault itself and
	// exited with a trace (panic exit 2, fatal error, race detector).
	if ContainsErrorPatterns(out.Stderr) {
		out.Class = TermFault
		return
	}
	out.Class = TermError
}

// Describe returns a one-line human summary of how the child terminated.
func (o *Outcome) Describe() string {
	switch o.Class {
	case TermClean:
		return "exited normally"
	case TermTimeout:
		return "timed out and was killed"
	case TermFault:
		if o.Signal != "" {
			return fmt.Sprintf("abnormal termination by %s", o.Signal)
		}
		return fmt.Sprintf("abnormal termination, exit %d (%s)", o.ExitCode, InterpretExitCode(o.ExitCode))
	default:
		return fmt.Sprintf("exit %d (%s)", o.ExitCode, InterpretExitCode(o.ExitCode))
	}
}
