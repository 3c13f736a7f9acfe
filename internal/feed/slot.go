// Package feed holds the latest preview frame and detection status for
// streaming consumers. Each value replaces the previous one; slow readers
// skip intermediate values rather than queueing them.
package feed

import (
	"context"
	"errors"
	"iter"
	"sync"
)

// ErrClosed is returned by Next once the slot is closed.
var ErrClosed = errors.New("feed closed")

// Slot is a single-value, latest-wins broadcast cell.
type Slot[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	value   T
	version uint64
	closed  bool
}

// NewSlot returns an empty slot.
func NewSlot[T any]() *Slot[T] {
	s := &Slot[T]{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Publish replaces the current value and wakes every waiting reader.
func (s *Slot[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.value = v
	s.version++
	s.cond.Broadcast()
}

// Latest returns the current value and its version. ok is false before the
// first Publish.
func (s *Slot[T]) Latest() (v T, version uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.version, s.version > 0
}

// Next waits for a value newer than after.
func (s *Slot[T]) Next(ctx context.Context, after uint64) (T, uint64, error) {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.version <= after {
		var zero T
		if s.closed {
			return zero, s.version, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return zero, s.version, err
		}
		s.cond.Wait()
	}
	return s.value, s.version, nil
}

// Stream yields every value published after the call until ctx is done or
// the slot closes. Values published faster than the consumer reads are skipped.
func (s *Slot[T]) Stream(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		_, version, _ := s.Latest()
		for {
			v, next, err := s.Next(ctx, version)
			if err != nil {
				return
			}
			version = next
			if !yield(v) {
				return
			}
		}
	}
}

// Close wakes all readers; Next returns ErrClosed afterwards.
func (s *Slot[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
}
