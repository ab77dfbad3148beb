package main

import (
	"strconv"
	"strings"
)

// Frame is one entry of a parsed Go panic or runtime fatal trace.
type Frame struct {
	Function string `json:"function"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	// UserCode is false for runtime/stdlib plumbing frames.
	UserCode bool `json:"user_code"`
}

// Trace is the structured form of a crash dump scraped from stderr.
type Trace struct {
	// ErrorType is "panic" or "fatal error".
	ErrorType string  `json:"error_type"`
	Message   string  `json:"message"`
	Frames    []Frame `json:"frames,omitempty"`
}

// RootCause returns the first user-code frame, or the first frame when none
// is classified as user code. Nil when the trace has no frames at all.
func (t *Trace) RootCause() *Frame {
	for i := range t.Frames {
		if t.Frames[i].UserCode {
			return &t.Frames[i]
		}
	}
	if len(t.Frames) > 0 {
		return &t.Frames[0]
	}
	return nil
}

// UserFrames returns only the user-code frames.
func (t *Trace) UserFrames() []Frame {
	var out []Frame
	for _, f := range t.Frames {
		if f.UserCode {
			out = append(out, f)
		}
	}
	return out
}

// ParseTrace scans crash output for a Go panic or runtime fatal error and
// extracts the message and stack frames. A frame is a function line
// ("pkg.Func(...)" ) followed by an indented file line ("\tfile.go:12 +0x1d").
// Returns false when the text contains no recognizable trace.
func ParseTrace(text string) (*Trace, bool) {
	if !looksLikeTrace(text) {
		return nil, false
	}

	t := &Trace{}
	var pendingFunc string

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if t.Message == "" {
			if rest, ok := strings.CutPrefix(trimmed, "panic:"); ok {
				t.ErrorType = "panic"
				t.Message = normalizePanicMessage(rest)
				continue
			}
			if rest, ok := strings.CutPrefix(trimmed, "fatal error:"); ok {
				t.ErrorType = "fatal error"
				t.Message = strings.TrimSpace(rest)
				continue
			}
		}

		if strings.HasPrefix(trimmed, "goroutine ") {
			pendingFunc = ""
			continue
		}

		// Function lines end with the argument list: "main.run(0x0, 0x2)".
		// The arg list is the final paren group; method names carry earlier
		// parens ("main.(*app).connect"), so cut at the last one.
		if strings.HasSuffix(trimmed, ")") && strings.Contains(trimmed, "(") {
			pendingFunc = trimmed[:strings.LastIndex(trimmed, "(")]
			continue
		}

		if strings.Contains(trimmed, ".go:") {
			frame := Frame{Function: pendingFunc}
			pendingFunc = ""

			loc := trimmed
			if i := strings.IndexByte(loc, ' '); i >= 0 {
				loc = loc[:i] // drop the " +0x1d" offset
			}
			if i := strings.LastIndexByte(loc, ':'); i >= 0 {
				if n, err := strconv.Atoi(loc[i+1:]); err == nil {
					frame.File = loc[:i]
					frame.Line = n
				}
			}
			frame.UserCode = frame.Function != "" &&
				!isRuntimeFunction(frame.Function) &&
				!isRuntimeFile(frame.File)
			t.Frames = append(t.Frames, frame)
		}
	}

	if t.Message == "" && len(t.Frames) == 0 {
		return nil, false
	}
	if t.ErrorType == "" {
		t.ErrorType = "panic"
	}
	return t, true
}

func looksLikeTrace(text string) bool {
	if strings.Contains(text, "panic:") && strings.Contains(text, "goroutine ") {
		return true
	}
	if strings.Contains(text, "fatal error:") {
		return true
	}
	return strings.Contains(text, ".go:") && strings.Contains(text, "runtime.")
}

// normalizePanicMessage trims the message and drops the runtime's signal
// decoration when the abort handler inlines it on the panic line.
func normalizePanicMessage(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "[signal "); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}

// isRuntimeFunction reports whether a frame belongs to runtime or stdlib
// plumbing rather than the reproduction itself. The traceback printer shows
// runtime.gopanic as plain "panic", so that name is plumbing too.
func isRuntimeFunction(fn string) bool {
	return fn == "panic" ||
		strings.HasPrefix(fn, "runtime.") ||
		strings.HasPrefix(fn, "syscall.") ||
		strings.HasPrefix(fn, "internal/") ||
		strings.HasPrefix(fn, "reflect.") ||
		strings.HasPrefix(fn, "testing.")
}

// isRuntimeFile catches frames whose function name escaped the prefix check
// but whose source clearly lives in the runtime.
func isRuntimeFile(file string) bool {
	return strings.Contains(file, "/runtime/") || strings.HasPrefix(file, "runtime/")
}

// ContainsErrorPatterns reports whether text carries any of the usual crash
// and failure markers. Used as cheap fault evidence when a child exits
// nonzero without a parseable trace.
func ContainsErrorPatterns(text string) bool {
	patterns := []string{
		"panic:", "fatal error:",
		"segmentation fault", "Segmentation fault",
		"SIGSEGV", "SIGABRT", "SIGBUS",
		"runtime error:",
		"stack overflow",
	}
	for _, p := range patterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// InterpretExitCode gives a human-readable description of a child's exit
// status for the run summary.
func InterpretExitCode(code int) string {
	switch code {
	case 0:
		return "success"
	case 1:
		return "general error"
	case 2:
		return "unrecovered panic or runtime fatal"
	case 126:
		return "command cannot execute"
	case 127:
		return "command not found"
	case 130:
		return "terminated by SIGINT"
	case 134:
		return "aborted (SIGABRT)"
	case 137:
		return "killed (SIGKILL)"
	case 139:
		return "segmentation fault (SIGSEGV)"
	case 143:
		return "terminated (SIGTERM)"
	}
	if code > 128 && code < 165 {
		return "terminated by signal"
	}
	return "unknown error"
}
