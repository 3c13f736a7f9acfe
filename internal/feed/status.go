package feed

import (
	"context"
	"iter"
	"sync"
	"time"
)

const statusTimeLayout = "06-01-02 15:04:05"

// Status is one detection status change.
type Status struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Line renders the status as "yy-mm-dd HH:MM:SS:<text>".
func (s Status) Line() string {
	return s.At.Format(statusTimeLayout) + ":" + s.Text
}

// StatusBoard publishes detection status text only when it changes.
type StatusBoard struct {
	mu   sync.Mutex
	slot *Slot[Status]
	last string
}

// NewStatusBoard starts with initial as the current status.
func NewStatusBoard(initial string) *StatusBoard {
	b := &StatusBoard{slot: NewSlot[Status](), last: initial}
	b.slot.Publish(Status{Text: initial, At: time.Now()})
	return b
}

// Set records text and reports whether it differed from the current status.
func (b *StatusBoard) Set(text string, at time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if text == b.last {
		return false
	}
	b.last = text
	b.slot.Publish(Status{Text: text, At: at})
	return true
}

// Current returns the latest status.
func (b *StatusBoard) Current() Status {
	s, _, _ := b.slot.Latest()
	return s
}

// Latest returns the current status and its version.
func (b *StatusBoard) Latest() (Status, uint64) {
	s, version, _ := b.slot.Latest()
	return s, version
}

// Next waits for a status newer than version. It returns ErrClosed once the
// board is closed.
func (b *StatusBoard) Next(ctx context.Context, after uint64) (Status, uint64, error) {
	return b.slot.Next(ctx, after)
}

// Changes yields each status change after the call.
func (b *StatusBoard) Changes(ctx context.Context) iter.Seq[Status] {
	return b.slot.Stream(ctx)
}

// Close ends all change streams.
func (b *StatusBoard) Close() {
	b.slot.Close()
}
