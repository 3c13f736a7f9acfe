package capture

import (
	"container/heap"
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned when submitting to a queue that no longer accepts work.
var ErrQueueClosed = errors.New("device command queue closed")

type queuedCommand struct {
	cmd Command
	seq uint64
}

type commandHeap []queuedCommand

func (h commandHeap) Len() int { return len(h) }

func (h commandHeap) Less(i, j int) bool {
	if h[i].cmd.Kind != h[j].cmd.Kind {
		return h[i].cmd.Kind < h[j].cmd.Kind
	}
	return h[i].seq < h[j].seq
}

func (h commandHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *commandHeap) Push(x any) { *h = append(*h, x.(queuedCommand)) }

func (h *commandHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Queue orders device commands by kind priority, then submission order.
// Push never blocks; Pop blocks until a command is available.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   commandHeap
	seq     uint64
	pending int
	closed  bool
}

// NewQueue returns an empty, open queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push inserts cmd. It fails only when the queue is closed.
func (q *Queue) Push(cmd Command) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.seq++
	heap.Push(&q.items, queuedCommand{cmd: cmd, seq: q.seq})
	q.pending++
	q.cond.Broadcast()
	return nil
}

// Pop removes the highest priority command, waiting for one if necessary.
// It returns ErrQueueClosed once the queue is closed and empty.
func (q *Queue) Pop(ctx context.Context) (Command, error) {
	stop := context.AfterFunc(ctx, q.wake)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		if q.closed {
			return Command{}, ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return Command{}, err
		}
		q.cond.Wait()
	}
	item := heap.Pop(&q.items).(queuedCommand)
	return item.cmd, nil
}

// Done marks one popped command as complete.
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending > 0 {
		q.pending--
	}
	if q.pending == 0 {
		q.cond.Broadcast()
	}
}

// Join blocks until every pushed command has been marked Done.
func (q *Queue) Join(ctx context.Context) error {
	stop := context.AfterFunc(ctx, q.wake)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.pending > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.cond.Wait()
	}
	return nil
}

// Close stops the queue from accepting new commands. Queued commands stay
// available to Pop and Drain.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Drain removes and returns all queued commands in dispatch order. The caller
// must mark each returned command Done.
func (q *Queue) Drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Command, 0, len(q.items))
	for len(q.items) > 0 {
		out = append(out, heap.Pop(&q.items).(queuedCommand).cmd)
	}
	return out
}

// Len is the number of queued, not yet popped, commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending is the number of pushed commands not yet marked Done.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

func (q *Queue) wake() {
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}
