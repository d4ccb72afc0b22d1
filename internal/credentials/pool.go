// Package credentials holds the upstream API key pool.
//
// DESIGN: The pool is built once at startup from configuration and shared
// read-only by every request handler. The rotation counter is the only
// mutable state and is advanced with a single atomic add, so concurrent
// callers never observe the same counter value.
package credentials

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrNoCredentials is returned by Next when the pool is empty.
var ErrNoCredentials = errors.New("no credential configured")

// Entry is an aliased upstream secret. Only the alias may be logged.
type Entry struct {
	Alias  string
	Secret string
}

// Pool issues credentials in round-robin order.
type Pool struct {
	entries []Entry
	counter atomic.Uint64
}

// NewPool copies entries into a new pool. Entries with an empty alias or
// secret are rejected, as are duplicate aliases.
func NewPool(entries []Entry) (*Pool, error) {
	seen := make(map[string]struct{}, len(entries))
	copied := make([]Entry, 0, len(entries))
	for i, e := range entries {
		if e.Alias == "" {
			return nil, fmt.Errorf("credential %d: alias is empty", i)
		}
		if e.Secret == "" {
			return nil, fmt.Errorf("credential %q: secret is empty", e.Alias)
		}
		if _, dup := seen[e.Alias]; dup {
			return nil, fmt.Errorf("credential %q: duplicate alias", e.Alias)
		}
		seen[e.Alias] = struct{}{}
		copied = append(copied, e)
	}
	return &Pool{entries: copied}, nil
}

// Next returns the secret and alias of the next credential.
func (p *Pool) Next() (secret, alias string, err error) {
	if p == nil || len(p.entries) == 0 {
		return "", "", ErrNoCredentials
	}
	// Add returns the incremented value; subtract one so the first call
	// selects index 0.
	n := p.counter.Add(1) - 1
	e := p.entries[n%uint64(len(p.entries))]
	return e.Secret, e.Alias, nil
}

// Size returns the number of configured credentials. Zero means unhealthy.
func (p *Pool) Size() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

// Aliases returns the configured aliases in rotation order.
func (p *Pool) Aliases() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.Alias
	}
	return out
}
