// Package testutil holds deterministic stand-ins for tests.
package testutil

import (
	"fmt"
	"sync"
)

// FixedRunIDGenerator returns predetermined run IDs for testing.
//
// Golden traces embed run IDs only through firing IDs, so a fixed sequence
// keeps recorded traces byte-identical across test runs. Once the given IDs
// are used up it continues with "<last>-2", "<last>-3", and so on.
//
// Thread-safety: FixedRunIDGenerator is safe for concurrent use.
type FixedRunIDGenerator struct {
	mu    sync.Mutex
	ids   []string
	idx   int
	extra int
}

// NewFixedRunIDGenerator creates a generator that returns ids in order.
// With no ids it starts from "test-run".
//
//	gen := NewFixedRunIDGenerator("run-a", "run-b")
//	gen.Generate() // "run-a"
//	gen.Generate() // "run-b"
//	gen.Generate() // "run-b-2"
func NewFixedRunIDGenerator(ids ...string) *FixedRunIDGenerator {
	if len(ids) == 0 {
		ids = []string{"test-run"}
	}
	return &FixedRunIDGenerator{ids: ids}
}

// Generate returns the next run ID. Implements store.RunIDGenerator.
func (g *FixedRunIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx < len(g.ids) {
		id := g.ids[g.idx]
		g.idx++
		return id
	}
	g.extra++
	return fmt.Sprintf("%s-%d", g.ids[len(g.ids)-1], g.extra+1)
}
