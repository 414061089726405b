package resilience

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrBulkheadFull is returned by TryExecute when every slot is taken.
var ErrBulkheadFull = errors.New("bulkhead is full")

// Bulkhead bounds how many calls run at once. Waiting callers are admitted
// in FIFO order.
type Bulkhead struct {
	max   int64
	sem   *semaphore.Weighted
	inUse atomic.Int64
}

// NewBulkhead creates a bulkhead with maxConcurrent slots (minimum one).
func NewBulkhead(maxConcurrent int) *Bulkhead {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Bulkhead{
		max: int64(maxConcurrent),
		sem: semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Execute waits for a slot, then runs fn. It returns ctx.Err() if ctx ends
// first, without running fn.
func (b *Bulkhead) Execute(ctx context.Context, fn func() error) error {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	return b.run(fn)
}

// TryExecute runs fn only if a slot is free right now.
func (b *Bulkhead) TryExecute(fn func() error) error {
	if !b.sem.TryAcquire(1) {
		return ErrBulkheadFull
	}
	return b.run(fn)
}

func (b *Bulkhead) run(fn func() error) error {
	b.inUse.Add(1)
	defer func() {
		b.inUse.Add(-1)
		b.sem.Release(1)
	}()
	return fn()
}

// InUse returns the number of running calls.
func (b *Bulkhead) InUse() int { return int(b.inUse.Load()) }

// MaxConcurrent returns the slot count.
func (b *Bulkhead) MaxConcurrent() int { return int(b.max) }
