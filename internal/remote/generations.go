package remote

import (
	"sync"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
	"github.com/hugo-lorenzo-mato/bsqa/internal/metrics"
)

// Generations numbers the requests issued for each operation so that a
// response arriving after a newer request for the same operation can be
// discarded. One Generations belongs to one form session.
type Generations struct {
	mu     sync.Mutex
	latest map[string]uint64
}

// NewGenerations creates an empty counter set.
func NewGenerations() *Generations {
	return &Generations{latest: make(map[string]uint64)}
}

// Next issues the generation for a new request of op.
func (g *Generations) Next(op string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latest[op]++
	return g.latest[op]
}

// Latest returns the newest generation issued for op.
func (g *Generations) Latest(op string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.latest[op]
}

// Check returns core.ErrStaleResponse when gen has been superseded.
func (g *Generations) Check(op string, gen uint64) error {
	if g.Latest(op) != gen {
		metrics.StaleResponsesTotal.WithLabelValues(op).Inc()
		return core.ErrStaleResponse
	}
	return nil
}
