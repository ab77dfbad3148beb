package main

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// CaseFunc is the child-side body of a reproduction. It runs in the exec
// subprocess: whatever it prints to stdout is captured by the runner, a
// returned error becomes a controlled nonzero exit, and an escaped panic is
// the reproduced fault itself.
type CaseFunc func(args []string, hardened bool, stdout io.Writer) error

// Case is one catalogued crash reproduction.
type Case struct {
	ID          string
	Pattern     string // bug pattern family, e.g. "nil-deref"
	Description string
	Run         CaseFunc
}

// caseRegistry holds all built-in reproductions, keyed by id.
var caseRegistry = map[string]Case{}

// registerCase adds a reproduction to the registry. Duplicate ids are a
// programming error in the catalogue itself.
func registerCase(c Case) {
	if _, dup := caseRegistry[c.ID]; dup {
		panic(fmt.Sprintf("duplicate case id %q", c.ID))
	}
	caseRegistry[c.ID] = c
}

// AllCases returns every registered case sorted by id.
func AllCases() []Case {
	cases := make([]Case, 0, len(caseRegistry))
	for _, c := range caseRegistry {
		cases = append(cases, c)
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].ID < cases[j].ID })
	return cases
}

// LookupCase finds a case by exact id.
func LookupCase(id string) (Case, bool) {
	c, ok := caseRegistry[id]
	return c, ok
}

// Expectation describes what one verification entry must observe. A case can
// appear under several entries with different args (the nil-manager case is
// verified on both its hit and miss paths).
type Expectation struct {
	// Name uniquely identifies the entry; defaults to Case when empty.
	Name string `yaml:"name,omitempty"`
	// Case is the registered case id to execute.
	Case string `yaml:"case"`
	// Args are passed to the case body.
	Args []string `yaml:"args,omitempty"`
	// Hardened selects the checked variant of the reproduction.
	Hardened bool `yaml:"hardened,omitempty"`

	// StdoutContains are markers that must appear in stdout, in order.
	StdoutContains []string `yaml:"stdout_contains,omitempty"`
	// StdoutAbsent are markers that must NOT appear in stdout.
	StdoutAbsent []string `yaml:"stdout_absent,omitempty"`
	// StderrContains are markers that must appear in stderr.
	StderrContains []string `yaml:"stderr_contains,omitempty"`
	// Termination is the expected class: clean, fault, or error.
	Termination string `yaml:"termination"`
	// PanicContains must occur in the panic/fatal message, when set.
	PanicContains string `yaml:"panic_contains,omitempty"`
	// FaultFrame, when set, must occur in the root-cause frame's function.
	FaultFrame string `yaml:"fault_frame,omitempty"`
}

// EntryName returns the unique name of the entry.
func (e Expectation) EntryName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.Case
}

// Manifest is the expectation set the verifier runs against.
type Manifest struct {
	Cases []Expectation `yaml:"cases"`
}

//go:embed expectations.yaml
var defaultManifest []byte

// LoadManifest reads an expectation manifest from path, or the embedded
// default when path is empty. It validates case references, entry-name
// uniqueness, and termination classes.
func LoadManifest(path string) (*Manifest, []byte, error) {
	data := defaultManifest
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("reading manifest: %w", err)
		}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if len(m.Cases) == 0 {
		return nil, nil, fmt.Errorf("manifest has no entries")
	}

	seen := make(map[string]bool)
	for _, e := range m.Cases {
		if _, ok := LookupCase(e.Case); !ok {
			return nil, nil, fmt.Errorf("manifest entry %q references unknown case %q", e.EntryName(), e.Case)
		}
		if seen[e.EntryName()] {
			return nil, nil, fmt.Errorf("duplicate manifest entry name %q", e.EntryName())
		}
		seen[e.EntryName()] = true
		switch e.Termination {
		case TermClean, TermFault, TermError:
		default:
			return nil, nil, fmt.Errorf("entry %q: unknown termination class %q", e.EntryName(), e.Termination)
		}
	}

	return &m, data, nil
}

// FilterEntries narrows manifest entries for a verify run:
// exact names win, otherwise substring match on entry name, case id, or
// pattern family; limit <= 0 means no limit.
func FilterEntries(entries []Expectation, names []string, filter string, limit int) []Expectation {
	out := entries

	if len(names) > 0 {
		wanted := make(map[string]bool, len(names))
		for _, n := range names {
			wanted[n] = true
		}
		var picked []Expectation
		for _, e := range out {
			if wanted[e.EntryName()] || wanted[e.Case] {
				picked = append(picked, e)
			}
		}
		out = picked
	}

	if filter != "" {
		needle := strings.ToLower(filter)
		var picked []Expectation
		for _, e := range out {
			pattern := ""
			if c, ok := LookupCase(e.Case); ok {
				pattern = c.Pattern
			}
			if strings.Contains(strings.ToLower(e.EntryName()), needle) ||
				strings.Contains(strings.ToLower(e.Case), needle) ||
				strings.Contains(strings.ToLower(pattern), needle) {
				picked = append(picked, e)
			}
		}
		out = picked
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
