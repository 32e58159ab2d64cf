package snapshot

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate admits one refresh or control cycle at a time, system wide.
type Gate struct {
	sem *semaphore.Weighted
}

func NewGate() *Gate {
	return &Gate{sem: semaphore.NewWeighted(1)}
}

// Do runs fn while holding the gate. It returns ctx's error if ctx ends
// before the gate is free; fn always runs to completion once started.
func (g *Gate) Do(ctx context.Context, fn func()) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)

	fn()

	return nil
}
