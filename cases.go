package main

import (
	"fmt"
	"io"
	"runtime/debug"
	"strconv"

	"github.com/jamesbrink/faultline/userdir"
)

// The built-in catalogue. Every case is a self-contained reproduction of one
// crash pattern: the default (faithful) body escalates to an unrecovered
// panic, the hardened body handles the same condition explicitly and returns
// an error instead.

func init() {
	registerCase(Case{
		ID:          "nil-manager-deref",
		Pattern:     "nil-deref",
		Description: "lookup hit followed by dereference of the record's absent manager relation",
		Run:         runNilManagerDeref,
	})
	registerCase(Case{
		ID:          "nil-config-deref",
		Pattern:     "nil-deref",
		Description: "method call on a struct whose config pointer was never initialized",
		Run:         runNilConfigDeref,
	})
	registerCase(Case{
		ID:          "nil-map-write",
		Pattern:     "nil-map",
		Description: "assignment to an uninitialized map",
		Run:         runNilMapWrite,
	})
	registerCase(Case{
		ID:          "missing-map-key",
		Pattern:     "missing-key",
		Description: "required key read from a response map without an ok check",
		Run:         runMissingMapKey,
	})
	registerCase(Case{
		ID:          "index-out-of-range",
		Pattern:     "bounds",
		Description: "slice indexed one past its final element",
		Run:         runIndexOutOfRange,
	})
	registerCase(Case{
		ID:          "unchecked-type-assertion",
		Pattern:     "type-assert",
		Description: "single-value type assertion on the wrong dynamic type",
		Run:         runUncheckedTypeAssertion,
	})
	registerCase(Case{
		ID:          "deep-recursion",
		Pattern:     "stack-overflow",
		Description: "recursion with a broken base case until the stack is exhausted",
		Run:         runDeepRecursion,
	})
}

// runNilManagerDeref is the core reproduction: find a user, print the found
// line, then report the manager name. User 1 exists and has no manager, so
// the faithful report faults after the found line. Any other id is a miss:
// no output, clean exit. An optional single argument overrides the id.
func runNilManagerDeref(args []string, hardened bool, stdout io.Writer) error {
	id := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id %q: %w", args[0], err)
		}
		id = n
	}
	return userdir.Report(stdout, id, hardened)
}

// appConfig and app reproduce the half-constructed-struct pattern: the
// constructor forgets the config field and Connect dereferences it.
type appConfig struct {
	DatabaseURL string
	MaxConns    int
}

type app struct {
	config *appConfig
}

func newApp() *app {
	// config deliberately left unset
	return &app{}
}

func (a *app) connect(stdout io.Writer, hardened bool) error {
	if hardened {
		if a.config == nil {
			return fmt.Errorf("connect: app config not initialized")
		}
	}
	fmt.Fprintf(stdout, "Connecting to %s with %d connections\n",
		a.config.DatabaseURL, a.config.MaxConns)
	return nil
}

func runNilConfigDeref(args []string, hardened bool, stdout io.Writer) error {
	a := newApp()
	fmt.Fprintln(stdout, "starting app")
	return a.connect(stdout, hardened)
}

func runNilMapWrite(args []string, hardened bool, stdout io.Writer) error {
	var scores map[string]int
	if hardened {
		scores = make(map[string]int)
	}
	fmt.Fprintln(stdout, "recording score")
	scores["alice"] = 42
	fmt.Fprintf(stdout, "score recorded: %d\n", scores["alice"])
	return nil
}

func runMissingMapKey(args []string, hardened bool, stdout io.Writer) error {
	// The upstream sometimes sends "user_name" instead of "username".
	response := map[string]string{
		"id":        "12345",
		"user_name": "alice",
		"email":     "alice@example.com",
	}

	fmt.Fprintln(stdout, "parsing response")
	name, ok := response["username"]
	if !ok {
		if hardened {
			return fmt.Errorf("response missing required key %q", "username")
		}
		panic(`missing required key "username"`)
	}
	fmt.Fprintf(stdout, "name: %s\n", name)
	return nil
}

func runIndexOutOfRange(args []string, hardened bool, stdout io.Writer) error {
	batch := []string{"one", "two", "three"}
	fmt.Fprintf(stdout, "processing %d items\n", len(batch))

	// Off-by-one: <= walks past the final element.
	for i := 0; i <= len(batch); i++ {
		if hardened && i >= len(batch) {
			return fmt.Errorf("index %d out of range for batch of %d", i, len(batch))
		}
		fmt.Fprintf(stdout, "item %d: %s\n", i, batch[i])
	}
	return nil
}

func runUncheckedTypeAssertion(args []string, hardened bool, stdout io.Writer) error {
	var payload any = 12345 // not the string the consumer assumes

	fmt.Fprintln(stdout, "decoding payload")
	if hardened {
		s, ok := payload.(string)
		if !ok {
			return fmt.Errorf("payload is %T, not string", payload)
		}
		fmt.Fprintf(stdout, "payload: %s\n", s)
		return nil
	}
	s := payload.(string)
	fmt.Fprintf(stdout, "payload: %s\n", s)
	return nil
}

// brokenFib recurses forever for positive n: the base case tests equality
// instead of <=, so n=2 never terminates.
func brokenFib(n, depth, maxDepth int) (int, error) {
	if maxDepth > 0 && depth >= maxDepth {
		return 0, fmt.Errorf("recursion depth %d exceeded without reaching a base case", maxDepth)
	}
	if n == 0 {
		return 0, nil
	}
	a, err := brokenFib(n-1, depth+1, maxDepth)
	if err != nil {
		return 0, err
	}
	b, err := brokenFib(n-2, depth+1, maxDepth)
	if err != nil {
		return 0, err
	}
	return a + b, nil
}

func runDeepRecursion(args []string, hardened bool, stdout io.Writer) error {
	// Keep the stack small so exhaustion is quick; the default 1GB limit
	// would make this reproduction take seconds and a gigabyte of memory.
	debug.SetMaxStack(16 << 20)

	fmt.Fprintln(stdout, "computing fib(2)")
	maxDepth := 0
	if hardened {
		maxDepth = 10000
	}
	v, err := brokenFib(2, 0, maxDepth)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "fib(2) = %d\n", v)
	return nil
}
