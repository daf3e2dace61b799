// Package ids generates opaque identifiers for aggregates.
//
// Callers depend on the Generator interface; the concrete scheme is chosen
// once at process start. UUID is the default, ULID gives lexicographically
// sortable keys, and Sequence produces deterministic values for tests.
package ids

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Generator produces new non-blank identifiers.
type Generator interface {
	NewID() string
}

// UUID generates random (version 4) UUIDs.
type UUID struct{}

// NewID returns a random 128-bit identifier in canonical UUID form.
func (UUID) NewID() string {
	return uuid.NewString()
}

// ULID generates monotonic ULIDs.
//
// Thread Safety: safe for concurrent use.
type ULID struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewULID creates a ULID generator seeded from crypto/rand.
func NewULID() *ULID {
	return &ULID{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewID returns a new ULID string.
func (g *ULID) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

// Sequence yields prefix-1, prefix-2, ... in order.
type Sequence struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequence creates a deterministic generator.
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// NewID returns the next identifier in the sequence.
func (s *Sequence) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%d", s.prefix, s.n)
}

// FromName returns the generator registered under name ("uuid" or "ulid").
func FromName(name string) (Generator, error) {
	switch name {
	case "", "uuid":
		return UUID{}, nil
	case "ulid":
		return NewULID(), nil
	default:
		return nil, fmt.Errorf("unknown id generator %q", name)
	}
}
