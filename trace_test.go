package main

import (
	"strings"
	"testing"
)

// nilDerefDump is a real-shaped dump of a signal-induced nil dereference
// under GOTRACEBACK=crash: runtime plumbing frames precede the user frame.
const nilDerefDump = `panic: runtime error: invalid memory address or nil pointer dereference
[signal SIGSEGV: segmentation violation code=0x1 addr=0x0 pc=0x4b2d16]

goroutine 1 [running]:
runtime.panicmem(...)
	/usr/local/go/src/runtime/panic.go:262
runtime.sigpanic()
	/usr/local/go/src/runtime/signal_unix.go:917 +0x385
github.com/jamesbrink/faultline/userdir.PrintManagerName({0x54bd20, 0xc000010018}, 0xc00007ce38)
	/src/faultline/userdir/userdir.go:46 +0x16
github.com/jamesbrink/faultline/userdir.Report({0x54bd20, 0xc000010018}, 0x1, 0x0)
	/src/faultline/userdir/userdir.go:79 +0x1d8
main.runNilManagerDeref({0xc000014210, 0x0, 0x0}, 0x0, {0x54bd20, 0xc000010018})
	/src/faultline/cases.go:76 +0xc5
`

// explicitPanicDump is the shape of an explicit panic(...) call: the
// traceback printer shows runtime.gopanic as plain "panic".
const explicitPanicDump = `panic: missing required key "username"

goroutine 1 [running]:
panic({0x4e87a0?, 0x55f2c8?})
	/usr/local/go/src/runtime/panic.go:792 +0x132
main.runMissingMapKey({0x0, 0x0, 0x0}, 0x0, {0x54bd20, 0xc000010018})
	/src/faultline/cases.go:139 +0x1d4
`

// methodFrameDump is the shape the nil-config case produces: the faulting
// frame is a pointer-receiver method, so its name carries parens of its own
// before the argument list.
const methodFrameDump = `panic: runtime error: invalid memory address or nil pointer dereference
[signal SIGSEGV: segmentation violation code=0x1 addr=0x0 pc=0x4b9f02]

goroutine 1 [running]:
runtime.panicmem(...)
	/usr/local/go/src/runtime/panic.go:262
runtime.sigpanic()
	/usr/local/go/src/runtime/signal_unix.go:917 +0x385
main.(*app).connect(0xc000014240, {0x54bd20, 0xc000010018}, 0x0)
	/src/faultline/cases.go:101 +0x2d
main.runNilConfigDeref({0x0, 0x0, 0x0}, 0x0, {0x54bd20, 0xc000010018})
	/src/faultline/cases.go:108 +0x94
`

const stackOverflowDump = `runtime: goroutine stack exceeds 16777216-byte limit
runtime: sp=0xc0201603e0 stack=[0xc020160000, 0xc021160000]
fatal error: stack overflow

runtime stack:
runtime.throw({0x5204c1?, 0x0?})
	/usr/local/go/src/runtime/panic.go:1101 +0x48
runtime.newstack()
	/usr/local/go/src/runtime/stack.go:1113 +0x5bd

goroutine 1 [running]:
main.brokenFib(0xffffff38, 0xc9, 0x0)
	/src/faultline/cases.go:178 +0x9b
main.brokenFib(0xffffff39, 0xc8, 0x0)
	/src/faultline/cases.go:182 +0xb1
`

func TestParseTrace_NilDeref(t *testing.T) {
	trace, ok := ParseTrace(nilDerefDump)
	if !ok {
		t.Fatal("ParseTrace failed on nil deref dump")
	}

	if trace.ErrorType != "panic" {
		t.Errorf("ErrorType = %q, want panic", trace.ErrorType)
	}
	if trace.Message != "runtime error: invalid memory address or nil pointer dereference" {
		t.Errorf("Message = %q", trace.Message)
	}

	root := trace.RootCause()
	if root == nil {
		t.Fatal("no root cause frame")
	}
	if !strings.Contains(root.Function, "userdir.PrintManagerName") {
		t.Errorf("root cause = %q, want userdir.PrintManagerName", root.Function)
	}
	if root.File != "/src/faultline/userdir/userdir.go" || root.Line != 46 {
		t.Errorf("root location = %s:%d", root.File, root.Line)
	}
}

func TestParseTrace_RuntimeFramesNotUserCode(t *testing.T) {
	trace, ok := ParseTrace(nilDerefDump)
	if !ok {
		t.Fatal("ParseTrace failed")
	}
	for _, f := range trace.Frames {
		if strings.HasPrefix(f.Function, "runtime.") && f.UserCode {
			t.Errorf("runtime frame %q classified as user code", f.Function)
		}
	}
	if n := len(trace.UserFrames()); n != 3 {
		t.Errorf("user frames = %d, want 3", n)
	}
}

// TestParseTrace_ExplicitPanic verifies the printed "panic(...)" frame is
// treated as plumbing so the root cause lands on the case body.
func TestParseTrace_ExplicitPanic(t *testing.T) {
	trace, ok := ParseTrace(explicitPanicDump)
	if !ok {
		t.Fatal("ParseTrace failed on explicit panic dump")
	}
	if trace.Message != `missing required key "username"` {
		t.Errorf("Message = %q", trace.Message)
	}

	root := trace.RootCause()
	if root == nil {
		t.Fatal("no root cause frame")
	}
	if root.Function != "main.runMissingMapKey" {
		t.Errorf("root cause = %q, want main.runMissingMapKey", root.Function)
	}
}

// TestParseTrace_MethodReceiverFrame verifies the receiver's parenthesized
// type survives the argument-list cut and the root cause lands on the
// method, not a truncated package prefix.
func TestParseTrace_MethodReceiverFrame(t *testing.T) {
	trace, ok := ParseTrace(methodFrameDump)
	if !ok {
		t.Fatal("ParseTrace failed on method frame dump")
	}

	root := trace.RootCause()
	if root == nil {
		t.Fatal("no root cause frame")
	}
	if root.Function != "main.(*app).connect" {
		t.Errorf("root cause = %q, want main.(*app).connect", root.Function)
	}
	if root.File != "/src/faultline/cases.go" || root.Line != 101 {
		t.Errorf("root location = %s:%d", root.File, root.Line)
	}
}

func TestParseTrace_StackOverflow(t *testing.T) {
	trace, ok := ParseTrace(stackOverflowDump)
	if !ok {
		t.Fatal("ParseTrace failed on stack overflow dump")
	}
	if trace.ErrorType != "fatal error" {
		t.Errorf("ErrorType = %q, want fatal error", trace.ErrorType)
	}
	if trace.Message != "stack overflow" {
		t.Errorf("Message = %q, want stack overflow", trace.Message)
	}

	root := trace.RootCause()
	if root == nil || root.Function != "main.brokenFib" {
		t.Errorf("root cause = %+v, want main.brokenFib", root)
	}
}

func TestParseTrace_NotATrace(t *testing.T) {
	for _, text := range []string{
		"",
		"all fine here\n",
		"faultline: response missing required key \"username\"\n",
	} {
		if trace, ok := ParseTrace(text); ok {
			t.Errorf("ParseTrace(%q) parsed %+v, want no trace", text, trace)
		}
	}
}

func TestContainsErrorPatterns(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"panic: something broke", true},
		{"fatal error: stack overflow", true},
		{"[signal SIGSEGV: segmentation violation]", true},
		{"runtime error: index out of range", true},
		{"all good", false},
		{"faultline: connect: app config not initialized", false},
	}
	for _, tt := range tests {
		if got := ContainsErrorPatterns(tt.text); got != tt.want {
			t.Errorf("ContainsErrorPatterns(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestInterpretExitCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "success"},
		{2, "unrecovered panic or runtime fatal"},
		{139, "segmentation fault (SIGSEGV)"},
		{134, "aborted (SIGABRT)"},
		{150, "terminated by signal"},
		{99, "unknown error"},
	}
	for _, tt := range tests {
		if got := InterpretExitCode(tt.code); got != tt.want {
			t.Errorf("InterpretExitCode(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
