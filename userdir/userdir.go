// Package userdir is the toy user directory behind the nil-manager
// reproduction. It models exactly one record: user 1 ("Alice"), who has no
// manager assigned. The Manager reference is legitimately absent; the
// faithful reporting path dereferences it anyway, which is the bug this
// catalogue exists to reproduce.
package userdir

import (
	"errors"
	"fmt"
	"io"
)

// ErrNoManager is returned by the hardened reporting path when the manager
// relation is absent.
var ErrNoManager = errors.New("absent relation: user has no manager")

// User is a directory record. Manager may be nil; no invariant forces it to
// be set, and callers must treat absence as a normal state.
type User struct {
	ID      int
	Name    string
	Manager *User
}

// FindUser looks up a user by id. Only id 1 resolves; every other id is an
// ordinary not-found outcome, not an error.
func FindUser(id int) (*User, bool) {
	if id != 1 {
		return nil, false
	}
	return &User{
		ID:   1,
		Name: "Alice",
		// Manager deliberately left unset.
	}, true
}

// PrintManagerName writes the user's manager name to w.
//
// This is the faithful reproduction path: it dereferences u.Manager without
// a presence check. Calling it on a user whose manager relation is absent
// panics with a nil pointer dereference. Do not add a check here; the
// missing check is the point.
func PrintManagerName(w io.Writer, u *User) {
	fmt.Fprintf(w, "Manager: %s\n", u.Manager.Name)
}

// ManagerName is the hardened variant of the reporting operation. It handles
// the absent case explicitly and returns ErrNoManager instead of faulting.
func (u *User) ManagerName() (string, error) {
	if u.Manager == nil {
		return "", fmt.Errorf("user %d (%s): %w", u.ID, u.Name, ErrNoManager)
	}
	return u.Manager.Name, nil
}

// Report runs the end-to-end scenario for one id: on a hit it writes the
// "Found user" line and then reports the manager name, faithfully or
// hardened. On a miss it writes nothing and returns nil; not-found never
// reaches the reporting operation.
func Report(w io.Writer, id int, hardened bool) error {
	u, ok := FindUser(id)
	if !ok {
		return nil
	}

	fmt.Fprintf(w, "Found user: %s\n", u.Name)

	if hardened {
		name, err := u.ManagerName()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Manager: %s\n", name)
		return nil
	}

	PrintManagerName(w, u) // faults here for any record lacking a manager
	return nil
}
