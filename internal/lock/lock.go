// Package lock provides the exclusive boundaries held around every balance or loan mutation.
//
// A caller names every resource it will touch up front and Acquire takes them in one global
// order (loans before accounts, each ascending by id), so two operations over overlapping
// resources cannot deadlock. Waiting is bounded: when the boundaries cannot be taken within
// the configured wait, Acquire fails with model.ErrBusy and nothing is held.
package lock

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Key identifies one lockable resource
type Key struct {
	kind kind
	id   string
}

type kind int

// loans sort before accounts
const (
	kindLoan kind = iota
	kindAccount
)

// AccountKey returns the key guarding an account's balance
func AccountKey(id uuid.UUID) Key {
	return Key{kind: kindAccount, id: id.String()}
}

// LoanKey returns the key guarding a loan's state
func LoanKey(id string) Key {
	return Key{kind: kindLoan, id: id}
}

func (k Key) String() string {
	if k.kind == kindLoan {
		return "lock:loan:" + k.id
	}
	return "lock:account:" + k.id
}

// Release gives back everything taken by one Acquire call. It is safe to call more than once.
type Release func()

// Locker takes a set of exclusive boundaries
type Locker interface {
	Acquire(ctx context.Context, keys ...Key) (Release, error)
}

// Order returns keys deduplicated and in acquisition order
func Order(keys []Key) []Key {
	ordered := slices.Clone(keys)
	slices.SortFunc(ordered, func(a, b Key) int {
		if a.kind != b.kind {
			return int(a.kind) - int(b.kind)
		}
		return strings.Compare(a.id, b.id)
	})
	return slices.Compact(ordered)
}
