// Package distance keeps learned co-occurrence weights between meanings.
// Meanings that are used one after another in a channel drift closer, which
// biases resolution toward topically adjacent meanings.
package distance

import (
	"sync"
	"time"
)

// Increment is added in both directions for every observed adjacency
const Increment = 0.1

// PruneThreshold removes decayed weights below it
const PruneThreshold = 0.01

// Graph is a directed weighted adjacency between meaning ids
type Graph struct {
	mu      sync.RWMutex
	weights map[string]map[string]float64
	updated time.Time
	now     func() time.Time
}

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{
		weights: make(map[string]map[string]float64),
		now:     time.Now,
	}
}

// SetClock replaces the time source used for the freshness timestamp
func (g *Graph) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// ObserveAdjacency strengthens a<->b by Increment in both directions.
// Empty or identical ids are ignored.
func (g *Graph) ObserveAdjacency(a, b string) {
	if a == "" || b == "" || a == b {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.addLocked(a, b, Increment)
	g.addLocked(b, a, Increment)
	g.updated = g.now()
}

func (g *Graph) addLocked(a, b string, w float64) {
	row, ok := g.weights[a]
	if !ok {
		row = make(map[string]float64)
		g.weights[a] = row
	}
	row[b] += w
}

// Weight returns the weight of a->b, zero when absent
func (g *Graph) Weight(a, b string) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.weights[a][b]
}

// Decay scales every weight by factor and prunes the ones below
// PruneThreshold
func (g *Graph) Decay(factor float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for a, row := range g.weights {
		for b, w := range row {
			w *= factor
			if w < PruneThreshold {
				delete(row, b)
				continue
			}
			row[b] = w
		}
		if len(row) == 0 {
			delete(g.weights, a)
		}
	}
	g.updated = g.now()
}

// Snapshot returns a copy of the weights and the last update time
func (g *Graph) Snapshot() (map[string]map[string]float64, time.Time) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]map[string]float64, len(g.weights))
	for a, row := range g.weights {
		cp := make(map[string]float64, len(row))
		for b, w := range row {
			cp[b] = w
		}
		out[a] = cp
	}
	return out, g.updated
}

// Load replaces the graph wholesale. Negative weights are dropped.
func (g *Graph) Load(weights map[string]map[string]float64, updated time.Time) {
	loaded := make(map[string]map[string]float64, len(weights))
	for a, row := range weights {
		cp := make(map[string]float64, len(row))
		for b, w := range row {
			if w >= 0 && a != b {
				cp[b] = w
			}
		}
		if len(cp) > 0 {
			loaded[a] = cp
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.weights = loaded
	g.updated = updated
}

// Len returns the number of directed edges
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := 0
	for _, row := range g.weights {
		n += len(row)
	}
	return n
}
