// ABOUTME: Device agent: owns identity, timers and message handlers, and runs the control loop.
// ABOUTME: The loop blocks on the ingress queue until the nearest timer deadline.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/sragent/internal/queue"
	"github.com/2389/sragent/internal/smartrest"
)

// Default queue capacities.
const (
	DefaultIngressCapacity = 64
	DefaultEgressCapacity  = 1000
)

// ErrAlreadyIntegrated is returned when the identity is already bound.
var ErrAlreadyIntegrated = errors.New("agent already integrated")

// ErrIncompleteCredentials is returned when bootstrap yields partial credentials.
var ErrIncompleteCredentials = errors.New("incomplete credentials")

// MsgID is the numeric id leading every SmartREST record.
type MsgID uint16

// Handler processes one inbound record on the loop goroutine. Handlers
// must not block: a slow handler stalls every timer and dispatch.
type Handler interface {
	Handle(r smartrest.Record, a *Agent)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(r smartrest.Record, a *Agent)

// Handle calls f(r, a).
func (f HandlerFunc) Handle(r smartrest.Record, a *Agent) {
	f(r, a)
}

// Bootstrapper obtains device credentials.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, deviceID string) (Credentials, error)
}

// Integrator negotiates the template and managed object binding.
type Integrator interface {
	Integrate(ctx context.Context, deviceID string) (Binding, error)
}

// Quiescer is a traffic source that can be paused during integration.
type Quiescer interface {
	Sleep()
	Resume()
}

// State is the loop's current phase.
type State int32

const (
	StateIdle State = iota
	StateAwaitingEvent
	StateDispatching
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingEvent:
		return "awaiting_event"
	case StateDispatching:
		return "dispatching"
	default:
		return "unknown"
	}
}

// Options configures a new Agent.
type Options struct {
	Server          string
	DeviceID        string
	IngressCapacity int
	EgressCapacity  int
}

// Agent is the device's single control loop. Construct one per process and
// pass it to collaborators; timers and handlers must be registered before
// Loop is called.
type Agent struct {
	// Ingress carries server responses to the loop.
	Ingress *queue.Queue[smartrest.Batch]
	// Egress carries outbound messages to the reporter.
	Egress *queue.Queue[smartrest.Message]

	server   string
	deviceID string

	mu       sync.RWMutex
	creds    Credentials
	auth     string
	binding  Binding
	quiescer Quiescer

	timers   []*Timer
	handlers map[MsgID]Handler
	state    atomic.Int32
	logger   *slog.Logger
}

// New creates an agent with empty identity.
func New(opts Options, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.IngressCapacity <= 0 {
		opts.IngressCapacity = DefaultIngressCapacity
	}
	if opts.EgressCapacity <= 0 {
		opts.EgressCapacity = DefaultEgressCapacity
	}
	return &Agent{
		Ingress:  queue.New[smartrest.Batch](opts.IngressCapacity),
		Egress:   queue.New[smartrest.Message](opts.EgressCapacity),
		server:   opts.Server,
		deviceID: opts.DeviceID,
		handlers: make(map[MsgID]Handler),
		logger:   logger.With("component", "agent"),
	}
}

// Server returns the server URL.
func (a *Agent) Server() string { return a.server }

// DeviceID returns the unique device id.
func (a *Agent) DeviceID() string { return a.deviceID }

// Tenant returns the tenant the device is registered to.
func (a *Agent) Tenant() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.creds.Tenant
}

// Username returns the device user name.
func (a *Agent) Username() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.creds.Username
}

// Password returns the device password.
func (a *Agent) Password() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.creds.Password
}

// Auth returns the base64 basic authorization token.
func (a *Agent) Auth() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.auth
}

// XID returns the template XID bound by integration.
func (a *Agent) XID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.binding.XID
}

// ID returns the managed object id bound by integration.
func (a *Agent) ID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.binding.ManagedObjectID
}

// Identity returns a snapshot of the agent's identity.
func (a *Agent) Identity() Identity {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Identity{
		Server:          a.server,
		DeviceID:        a.deviceID,
		Tenant:          a.creds.Tenant,
		Username:        a.creds.Username,
		Password:        a.creds.Password,
		Auth:            a.auth,
		XID:             a.binding.XID,
		ManagedObjectID: a.binding.ManagedObjectID,
	}
}

// SetQuiescer attaches the traffic source to pause during integration.
func (a *Agent) SetQuiescer(q Quiescer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.quiescer = q
}

// Bootstrap obtains and commits the device credentials.
func (a *Agent) Bootstrap(ctx context.Context, b Bootstrapper) error {
	creds, err := b.Bootstrap(ctx, a.deviceID)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if !creds.Complete() {
		return fmt.Errorf("bootstrap: %w", ErrIncompleteCredentials)
	}

	a.mu.Lock()
	a.creds = creds
	a.auth = creds.Auth()
	a.mu.Unlock()

	a.logger.Info("bootstrap complete", "tenant", creds.Tenant, "username", creds.Username)
	return nil
}

// Integrate runs the integration handshake. The XID and managed object id
// are committed only when the whole handshake succeeds. The attached
// Quiescer sleeps for the duration of the handshake and is resumed whether
// or not it succeeds.
func (a *Agent) Integrate(ctx context.Context, ig Integrator) error {
	a.mu.RLock()
	bound := a.binding.XID != ""
	q := a.quiescer
	a.mu.RUnlock()
	if bound {
		return ErrAlreadyIntegrated
	}

	if q != nil {
		q.Sleep()
		defer q.Resume()
	}

	binding, err := ig.Integrate(ctx, a.deviceID)
	if err != nil {
		return fmt.Errorf("integrate: %w", err)
	}

	a.mu.Lock()
	a.binding = binding
	a.mu.Unlock()

	a.logger.Info("integration complete",
		"xid", binding.XID,
		"managed_object_id", binding.ManagedObjectID,
	)

	return nil
}

// Send queues msg for the reporter. queue.ErrFull is returned as is so the
// caller can choose to drop or retry.
func (a *Agent) Send(msg smartrest.Message) error {
	return a.Egress.Put(msg)
}

// AddTimer registers a timer. Not safe to call once Loop is running.
func (a *Agent) AddTimer(t *Timer) {
	a.timers = append(a.timers, t)
}

// AddMsgHandler binds a handler to a message id, replacing any previous one.
// Not safe to call once Loop is running.
func (a *Agent) AddMsgHandler(id MsgID, h Handler) {
	a.handlers[id] = h
}

// State returns the loop's current phase.
func (a *Agent) State() State {
	return State(a.state.Load())
}

// Loop takes over the calling goroutine, firing timers and dispatching
// inbound records. It returns when ctx is done or the ingress queue is
// closed.
func (a *Agent) Loop(ctx context.Context) error {
	a.logger.Info("agent loop started",
		"timers", len(a.timers),
		"handlers", len(a.handlers),
	)
	defer a.state.Store(int32(StateIdle))

	parser := smartrest.NewParser("")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.state.Store(int32(StateAwaitingEvent))

		var timeout time.Duration
		if deadline, ok := a.nextDeadline(); ok {
			timeout = time.Until(deadline)
			if timeout <= 0 {
				// A timer is already due. Take one pending batch first so
				// timers that overrun their period cannot starve ingress.
				a.state.Store(int32(StateDispatching))
				if batch, ok := a.Ingress.TryGet(); ok {
					a.dispatch(parser, batch)
				}
				a.fireTimers(time.Now())
				continue
			}
		}

		batch, err := a.Ingress.Get(ctx, timeout)
		switch {
		case err == nil:
			a.state.Store(int32(StateDispatching))
			a.dispatch(parser, batch)
		case errors.Is(err, queue.ErrTimeout):
			a.state.Store(int32(StateDispatching))
			a.fireTimers(time.Now())
		default:
			return err
		}
	}
}

// nextDeadline returns the earliest fire time among active timers.
func (a *Agent) nextDeadline() (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, t := range a.timers {
		if !t.active {
			continue
		}
		if !found || t.next.Before(earliest) {
			earliest = t.next
			found = true
		}
	}
	return earliest, found
}

func (a *Agent) fireTimers(now time.Time) {
	for _, t := range a.timers {
		if t.due(now) {
			t.fire(now, a)
		}
	}
}

// dispatch hands each record to the handler registered for its id, in the
// order the records appear. Records without a handler are skipped.
func (a *Agent) dispatch(p *smartrest.Parser, batch smartrest.Batch) {
	p.Reset(batch.Data)
	for r := p.Next(); r.Len() > 0; r = p.Next() {
		id, err := strconv.ParseUint(r.Code(), 10, 16)
		if err != nil {
			a.logger.Debug("skipping record with non-numeric id", "code", r.Code())
			continue
		}
		h, ok := a.handlers[MsgID(id)]
		if !ok {
			continue
		}
		h.Handle(r, a)
	}
}
