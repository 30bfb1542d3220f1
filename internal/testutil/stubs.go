// Package testutil holds deterministic stand-ins shared by package tests.
package testutil

import (
	"fmt"
	"sync"
	"time"
)

// StubClock is a Clock that returns a settable time.
// This implementation is safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// StubIDGenerator returns "<prefix>-1", "<prefix>-2", ...
// This implementation is safe for concurrent use.
type StubIDGenerator struct {
	prefix string

	mu sync.Mutex
	n  int
}

func NewStubIDGenerator(prefix string) *StubIDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &StubIDGenerator{prefix: prefix}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// FixedIDGenerator hands out the given ids in order, then falls back to
// "id-N".
// This implementation is safe for concurrent use.
type FixedIDGenerator struct {
	mu       sync.Mutex
	ids      []string
	fallback *StubIDGenerator
}

func NewFixedIDGenerator(ids ...string) *FixedIDGenerator {
	return &FixedIDGenerator{ids: ids, fallback: NewStubIDGenerator("id")}
}

func (g *FixedIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.ids) == 0 {
		return g.fallback.New()
	}
	id := g.ids[0]
	g.ids = g.ids[1:]
	return id
}
