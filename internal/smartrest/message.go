// ABOUTME: SmartREST wire-adjacent types: outbound messages, inbound batches, priorities.
// ABOUTME: Also defines the Poster contract every request/response caller depends on.

package smartrest

import (
	"context"
	"strings"
)

// Priority is a bitset attached to every outbound message.
type Priority uint8

const (
	// PriorityBuffer keeps the message in the reporter's replay buffer until
	// a send is confirmed. Retention is bounded, so this is not a guarantee.
	PriorityBuffer Priority = 1 << iota

	// PriorityAltXID marks a message whose first CSV field is an alternate
	// XID to use instead of the agent's own.
	PriorityAltXID
)

// Has reports whether all bits of flag are set.
func (p Priority) Has(flag Priority) bool {
	return p&flag == flag
}

// Message is one request line queued for reporting (measurement, alarm,
// event, ...). It is not modified after creation.
type Message struct {
	Data string
	Prio Priority
}

// Batch is a raw SmartREST response body, possibly holding many records.
type Batch struct {
	Data string
}

// ContextCode is the message id that selects the XID for following lines.
const ContextCode = "15"

// SelectContext renders the line that switches subsequent lines to xid.
func SelectContext(xid string) string {
	return ContextCode + "," + xid
}

// IsContextLine reports whether line is a context switch.
func IsContextLine(line string) bool {
	return strings.HasPrefix(line, ContextCode+",")
}

// Poster sends a request body and returns the response body.
type Poster interface {
	Post(ctx context.Context, body string) (string, error)
}
