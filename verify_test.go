package main

import (
	"strings"
	"testing"
)

func faultOutcome(stdout, stderr string) *Outcome {
	return &Outcome{
		CaseID:   "nil-manager-deref",
		Stdout:   stdout,
		Stderr:   stderr,
		Class:    TermFault,
		ExitCode: -1,
		Signal:   "SIGABRT",
	}
}

func TestCheckOutcome_Pass(t *testing.T) {
	exp := Expectation{
		Case:           "nil-manager-deref",
		Termination:    TermFault,
		StdoutContains: []string{"Found user: Alice"},
		PanicContains:  "nil pointer dereference",
		FaultFrame:     "userdir.PrintManagerName",
	}
	out := faultOutcome("Found user: Alice\n", nilDerefDump)

	v := CheckOutcome(exp, out)
	if !v.Pass {
		t.Errorf("verdict failed: %v", v.Failures)
	}
}

func TestCheckOutcome_WrongTermination(t *testing.T) {
	exp := Expectation{Case: "nil-manager-deref", Termination: TermClean}
	out := faultOutcome("", nilDerefDump)

	v := CheckOutcome(exp, out)
	if v.Pass {
		t.Fatal("verdict passed despite wrong termination class")
	}
	if !strings.Contains(v.Failures[0], "termination") {
		t.Errorf("failure = %q, want termination mismatch", v.Failures[0])
	}
}

func TestCheckOutcome_MissingMarker(t *testing.T) {
	exp := Expectation{
		Case:           "nil-manager-deref",
		Termination:    TermFault,
		StdoutContains: []string{"Found user: Alice"},
	}
	out := faultOutcome("", nilDerefDump)

	v := CheckOutcome(exp, out)
	if v.Pass {
		t.Fatal("verdict passed despite missing stdout marker")
	}
}

// TestCheckOutcome_MarkerOrder verifies markers must appear in manifest
// order, not merely anywhere in stdout.
func TestCheckOutcome_MarkerOrder(t *testing.T) {
	exp := Expectation{
		Case:           "index-out-of-range",
		Termination:    TermClean,
		StdoutContains: []string{"item 0", "item 2"},
	}

	ordered := &Outcome{Class: TermClean, Stdout: "item 0: one\nitem 1: two\nitem 2: three\n"}
	if v := CheckOutcome(exp, ordered); !v.Pass {
		t.Errorf("ordered outcome failed: %v", v.Failures)
	}

	reversed := &Outcome{Class: TermClean, Stdout: "item 2: three\nitem 0: one\n"}
	v := CheckOutcome(exp, reversed)
	if v.Pass {
		t.Fatal("verdict passed despite out-of-order markers")
	}
	if !strings.Contains(strings.Join(v.Failures, ";"), "out of order") {
		t.Errorf("failures = %v, want out-of-order report", v.Failures)
	}
}

func TestCheckOutcome_AbsentMarker(t *testing.T) {
	exp := Expectation{
		Case:         "nil-manager-deref",
		Termination:  TermClean,
		StdoutAbsent: []string{"Found user"},
	}
	out := &Outcome{Class: TermClean, Stdout: "Found user: Alice\n"}

	if v := CheckOutcome(exp, out); v.Pass {
		t.Fatal("verdict passed despite forbidden marker in stdout")
	}
}

func TestCheckOutcome_StderrMarker(t *testing.T) {
	exp := Expectation{
		Case:           "nil-manager-deref",
		Hardened:       true,
		Termination:    TermError,
		StderrContains: []string{"absent relation"},
	}
	out := &Outcome{
		Class:    TermError,
		ExitCode: 1,
		Stdout:   "Found user: Alice\n",
		Stderr:   "faultline: user 1 (Alice): absent relation: user has no manager\n",
	}

	if v := CheckOutcome(exp, out); !v.Pass {
		t.Errorf("hardened verdict failed: %v", v.Failures)
	}
}

// TestCheckOutcome_MethodFaultFrame verifies a fault_frame naming only the
// method matches a pointer-receiver root frame, as the shipped
// nil-config-deref entry relies on.
func TestCheckOutcome_MethodFaultFrame(t *testing.T) {
	exp := Expectation{
		Case:        "nil-config-deref",
		Termination: TermFault,
		FaultFrame:  "connect",
	}
	out := &Outcome{
		CaseID:   "nil-config-deref",
		Class:    TermFault,
		ExitCode: -1,
		Signal:   "SIGABRT",
		Stderr:   methodFrameDump,
	}

	if v := CheckOutcome(exp, out); !v.Pass {
		t.Errorf("verdict failed: %v", v.Failures)
	}
}

func TestCheckOutcome_FaultFrameMismatch(t *testing.T) {
	exp := Expectation{
		Case:        "nil-manager-deref",
		Termination: TermFault,
		FaultFrame:  "somewhereElse",
	}
	out := faultOutcome("", nilDerefDump)

	v := CheckOutcome(exp, out)
	if v.Pass {
		t.Fatal("verdict passed despite wrong fault frame")
	}
}

func TestCheckOutcome_NoTraceWhenExpected(t *testing.T) {
	exp := Expectation{
		Case:          "nil-manager-deref",
		Termination:   TermFault,
		PanicContains: "nil pointer",
	}
	out := &Outcome{Class: TermFault, Stderr: "killed\n"}

	v := CheckOutcome(exp, out)
	if v.Pass {
		t.Fatal("verdict passed without a parseable trace")
	}
	if !strings.Contains(v.Failures[0], "no parseable crash trace") {
		t.Errorf("failure = %q", v.Failures[0])
	}
}
