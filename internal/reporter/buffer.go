// ABOUTME: Capacity-bounded replay buffer for request lines that must survive a failed send.
// ABOUTME: Keeps every stored line preceded by the context switch it depends on.

package reporter

import (
	"github.com/2389/sragent/internal/smartrest"
)

// minBufferCapacity is one context line plus one dependent line.
const minBufferCapacity = 2

type entry struct {
	ctx     string
	line    string
	context bool
}

func (e entry) String() string {
	if e.context {
		return smartrest.SelectContext(e.ctx)
	}
	return e.line
}

// ReplayBuffer holds previously sent lines until a send is confirmed.
// It is owned by the reporter goroutine and is not safe for concurrent use.
//
// Invariants after every Append: Len() <= Cap(), the first entry is a
// context line, and every context line is followed by at least one line
// that depends on it.
type ReplayBuffer struct {
	entries  []entry
	capacity int
}

// NewReplayBuffer creates a buffer holding at most capacity lines,
// context lines included. Capacities below two are raised to two.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity < minBufferCapacity {
		capacity = minBufferCapacity
	}
	return &ReplayBuffer{
		entries:  make([]entry, 0, capacity),
		capacity: capacity,
	}
}

// Append stores line under context ctx, declaring the context first when
// it differs from the context of the newest stored line.
func (b *ReplayBuffer) Append(ctx, line string) {
	if n := len(b.entries); n == 0 || b.entries[n-1].ctx != ctx {
		b.push(entry{ctx: ctx, context: true})
	}
	b.push(entry{ctx: ctx, line: line})
}

func (b *ReplayBuffer) push(e entry) {
	if len(b.entries) >= b.capacity {
		b.evict()
	}
	// Eviction may have taken the context this line depends on.
	if !e.context && len(b.entries) == 0 {
		b.entries = append(b.entries, entry{ctx: e.ctx, context: true})
	}
	b.entries = append(b.entries, e)
}

// evict drops the oldest application line. The front context line goes
// with it once nothing else depends on it.
func (b *ReplayBuffer) evict() {
	if len(b.entries) == 0 {
		return
	}
	front := b.entries[0]
	if !front.context {
		b.entries = b.entries[1:]
		return
	}
	if len(b.entries) == 1 {
		b.entries = b.entries[:0]
		return
	}

	// Front pair is {context, dependent}: remove the dependent.
	rest := b.entries[2:]
	if len(rest) == 0 || rest[0].context {
		b.entries = append(b.entries[:0], rest...)
		return
	}
	b.entries = append(b.entries[:1], rest...)
}

// Lines returns the stored lines, oldest first.
func (b *ReplayBuffer) Lines() []string {
	out := make([]string, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.String()
	}
	return out
}

// Len returns the number of stored lines, context lines included.
func (b *ReplayBuffer) Len() int {
	return len(b.entries)
}

// Cap returns the configured capacity.
func (b *ReplayBuffer) Cap() int {
	return b.capacity
}

// Clear drops everything after a confirmed send.
func (b *ReplayBuffer) Clear() {
	b.entries = b.entries[:0]
}
