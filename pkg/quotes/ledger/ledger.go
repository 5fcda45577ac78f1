// Package ledger tracks identity keys admitted during a single build run.
package ledger

import "github.com/cognicore/quotes/pkg/quotes/record"

// Ledger is a write-once set of identity keys. It grows monotonically and is
// not safe for concurrent use; callers serialize admission.
type Ledger struct {
	seen map[record.Key]struct{}
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{seen: make(map[record.Key]struct{})}
}

// Admit records key and returns true if it was not seen before. A key that is
// already present leaves the ledger untouched and returns false.
func (l *Ledger) Admit(key record.Key) bool {
	if _, ok := l.seen[key]; ok {
		return false
	}
	l.seen[key] = struct{}{}
	return true
}

// Has reports whether key was admitted.
func (l *Ledger) Has(key record.Key) bool {
	_, ok := l.seen[key]
	return ok
}

// Len returns the number of admitted keys.
func (l *Ledger) Len() int {
	return len(l.seen)
}
