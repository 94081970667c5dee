// ABOUTME: Background worker that aggregates queued requests into batches and posts them.
// ABOUTME: Retries with exponential backoff, replays buffered lines, and feeds responses back.

package reporter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/sragent/internal/queue"
	"github.com/2389/sragent/internal/smartrest"
)

// Defaults used when Options fields are zero.
const (
	DefaultBatchSize      = 32
	DefaultWait           = 400 * time.Millisecond
	DefaultRetries        = 9
	DefaultBackoff        = time.Second
	DefaultBufferCapacity = 1000
)

// Options tunes batching, retry and buffering.
type Options struct {
	// BatchSize caps how many queued messages go into one batch.
	BatchSize int
	// Wait bounds how long a cycle blocks for its first message.
	Wait time.Duration
	// Retries is the number of re-posts after a failed post. Zero means
	// DefaultRetries; a negative value disables retries.
	Retries int
	// Backoff is the delay before the first retry; it doubles per retry.
	Backoff time.Duration
	// BufferCapacity bounds the replay buffer, context lines included.
	BufferCapacity int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Wait <= 0 {
		o.Wait = DefaultWait
	}
	if o.Retries < 0 {
		o.Retries = 0
	} else if o.Retries == 0 {
		o.Retries = DefaultRetries
	}
	if o.Backoff <= 0 {
		o.Backoff = DefaultBackoff
	}
	if o.BufferCapacity <= 0 {
		o.BufferCapacity = DefaultBufferCapacity
	}
	return o
}

// XIDSource provides the default context for outgoing lines.
type XIDSource interface {
	XID() string
}

// Reporter drains the egress queue on its own goroutine. Everything except
// the sleeping flag is owned by that goroutine.
//
// A response is pushed to the ingress queue without blocking. When that
// queue is full or closed the response is dropped and a warning is logged;
// the batch still counts as delivered and the replay buffer is cleared.
// Size the ingress queue for the expected response rate.
type Reporter struct {
	poster smartrest.Poster
	xids   XIDSource
	out    *queue.Queue[smartrest.Message]
	in     *queue.Queue[smartrest.Batch]
	opts   Options
	buffer *ReplayBuffer
	logger *slog.Logger

	sleeping atomic.Bool

	// sleep waits between retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a reporter reading from out and pushing responses into in.
func New(
	poster smartrest.Poster,
	xids XIDSource,
	out *queue.Queue[smartrest.Message],
	in *queue.Queue[smartrest.Batch],
	opts Options,
	logger *slog.Logger,
) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	return &Reporter{
		poster: poster,
		xids:   xids,
		out:    out,
		in:     in,
		opts:   opts,
		buffer: NewReplayBuffer(opts.BufferCapacity),
		logger: logger.With("component", "reporter"),
		sleep:  sleepContext,
	}
}

// Sleep suppresses posting. Messages are still drained; buffered ones are
// kept for replay and the rest are dropped.
func (r *Reporter) Sleep() {
	r.sleeping.Store(true)
	r.logger.Debug("reporter sleeping")
}

// Resume re-enables posting.
func (r *Reporter) Resume() {
	r.sleeping.Store(false)
	r.logger.Debug("reporter resumed")
}

// Sleeping reports whether posting is suppressed.
func (r *Reporter) Sleeping() bool {
	return r.sleeping.Load()
}

// Start runs the reporter on a new goroutine.
func (r *Reporter) Start(ctx context.Context) {
	r.logger.Info("reporter started",
		"batch_size", r.opts.BatchSize,
		"retries", r.opts.Retries,
		"buffer_capacity", r.opts.BufferCapacity,
	)
	go func() {
		if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("reporter stopped", "error", err)
		}
	}()
}

// Run loops until ctx is done or the egress queue is closed and drained.
func (r *Reporter) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.cycle(ctx); err != nil {
			return err
		}
	}
}

// cycle builds and posts one batch. It returns an error only when the
// loop should stop.
func (r *Reporter) cycle(ctx context.Context) error {
	sleeping := r.sleeping.Load()

	var batch strings.Builder
	if !sleeping {
		for _, line := range r.buffer.Lines() {
			batch.WriteString(line)
			batch.WriteByte('\n')
		}
	}

	err := r.collect(ctx, &batch)
	if !sleeping && batch.Len() > 0 {
		r.flush(ctx, batch.String())
	}
	return err
}

// collect drains up to BatchSize messages into batch, inserting a context
// switch whenever the effective XID changes. The first message is waited
// for; the rest are taken only if already queued. An error means the
// first wait failed and nothing was collected.
func (r *Reporter) collect(ctx context.Context, batch *strings.Builder) error {
	xid := ""
	if r.xids != nil {
		xid = r.xids.XID()
	}

	current, declared := "", false
	n := 0
	for n < r.opts.BatchSize {
		var msg smartrest.Message
		if n == 0 {
			m, err := r.out.Get(ctx, r.opts.Wait)
			if errors.Is(err, queue.ErrTimeout) {
				return nil
			}
			if err != nil {
				return err
			}
			msg = m
		} else {
			m, ok := r.out.TryGet()
			if !ok {
				break
			}
			msg = m
		}
		n++

		ctxID, line := xid, msg.Data
		if msg.Prio.Has(smartrest.PriorityAltXID) {
			alt, rest, found := strings.Cut(msg.Data, ",")
			if !found {
				r.logger.Warn("dropping message without alternate xid", "data", msg.Data)
				continue
			}
			ctxID, line = alt, rest
		}

		if !declared || ctxID != current {
			current, declared = ctxID, true
			batch.WriteString(smartrest.SelectContext(ctxID))
			batch.WriteByte('\n')
		}
		batch.WriteString(line)
		batch.WriteByte('\n')

		if msg.Prio.Has(smartrest.PriorityBuffer) {
			r.buffer.Append(ctxID, line)
		}
	}
	return nil
}

// flush posts body with bounded exponential backoff.
func (r *Reporter) flush(ctx context.Context, body string) {
	batchID := uuid.New().String()
	logger := r.logger.With("batch_id", batchID)

	resp, err := r.poster.Post(ctx, body)
	for i := 0; err != nil && i < r.opts.Retries; i++ {
		delay := r.opts.Backoff << i
		logger.Warn("post failed, backing off",
			"attempt", i+1,
			"delay", delay,
			"error", err,
		)
		if serr := r.sleep(ctx, delay); serr != nil {
			return
		}
		resp, err = r.poster.Post(ctx, body)
	}
	if err != nil {
		logger.Error("giving up on batch until next cycle",
			"error", err,
			"buffered_lines", r.buffer.Len(),
		)
		return
	}

	r.buffer.Clear()
	logger.Debug("batch delivered", "bytes", len(body))

	if resp == "" {
		return
	}
	if err := r.in.Put(smartrest.Batch{Data: resp}); err != nil {
		logger.Warn("dropping response, ingress queue unavailable", "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
