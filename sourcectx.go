package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SourceContext controls how much surrounding source is shown for a parsed
// crash frame.
type SourceContext struct {
	// Lines around the fault line on each side.
	Lines int
	// Root resolves relative paths from the trace.
	Root string
}

// DefaultContextLines is the window shown on each side of a fault line.
const DefaultContextLines = 5

// FrameContext reads the frame's source file and returns a numbered window
// around the fault line, marking the line itself. Returns false when the
// frame has no usable location or the file cannot be read.
func (sc SourceContext) FrameContext(f *Frame) (string, bool) {
	if f == nil || f.File == "" || f.Line <= 0 {
		return "", false
	}

	path, ok := sc.resolve(f.File)
	if !ok {
		return "", false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	lines := strings.Split(string(data), "\n")
	if f.Line > len(lines) {
		return "", false
	}

	n := sc.Lines
	if n <= 0 {
		n = DefaultContextLines
	}
	lo := f.Line - n
	if lo < 1 {
		lo = 1
	}
	hi := f.Line + n
	if hi > len(lines) {
		hi = len(lines)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s:%d\n", f.File, f.Line)
	for i := lo; i <= hi; i++ {
		marker := "  "
		if i == f.Line {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%4d | %s\n", marker, i, lines[i-1])
	}
	return b.String(), true
}

// resolve maps a trace path to a readable file. Absolute paths are used as
// is; relative paths are tried against Root and the working directory.
func (sc SourceContext) resolve(path string) (string, bool) {
	if filepath.IsAbs(path) {
		if fileExists(path) {
			return path, true
		}
		return "", false
	}
	if sc.Root != "" {
		if p := filepath.Join(sc.Root, path); fileExists(p) {
			return p, true
		}
	}
	if fileExists(path) {
		return path, true
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
