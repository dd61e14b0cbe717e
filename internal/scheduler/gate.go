package scheduler

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// GateSet holds one exclusive gate per database, created lazily. The mutex
// only guards map mutation and is never held while a gate is owned.
type GateSet struct {
	mu    sync.Mutex
	gates map[string]*semaphore.Weighted
}

// NewGateSet creates an empty GateSet.
func NewGateSet() *GateSet {
	return &GateSet{gates: make(map[string]*semaphore.Weighted)}
}

func (g *GateSet) gate(key string) *semaphore.Weighted {
	g.mu.Lock()
	defer g.mu.Unlock()

	sem, ok := g.gates[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		g.gates[key] = sem
	}

	return sem
}

// Acquire blocks until the gate for key is owned or ctx is done. The returned
// release function must be called exactly once.
func (g *GateSet) Acquire(ctx context.Context, key string) (func(), error) {
	sem := g.gate(key)

	err := sem.Acquire(ctx, 1)
	if err != nil {
		return nil, err
	}

	return func() { sem.Release(1) }, nil
}

// Len returns the number of gates created so far.
func (g *GateSet) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.gates)
}
