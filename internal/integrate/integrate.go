// ABOUTME: Startup handshake that registers the template and binds the managed object.
// ABOUTME: Runs synchronous request/response round trips before the agent loop starts.

package integrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/sragent/internal/agent"
	"github.com/2389/sragent/internal/smartrest"
)

// Response codes used by the handshake.
const (
	codeTemplateUnknown = "40"
	codeTemplateBound   = "20"
	codeObjectNotFound  = "50"
	codeObjectFound     = "800"
	codeObjectCreated   = "801"
)

// Request lines used by the handshake.
const (
	msgRequestObject = "300"
	msgCreateObject  = "301"
	msgBindObject    = "302"
)

// ErrProtocol matches every unexpected response during the handshake.
var ErrProtocol = errors.New("unexpected integration response")

// ProtocolError describes the step and record that broke the handshake.
type ProtocolError struct {
	Step   string
	Record smartrest.Record
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: unexpected response %q", e.Step, strings.Join(e.Record.Values(), ","))
}

// Is lets errors.Is(err, ErrProtocol) match.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

// Integrator runs the handshake over a poster bound to the template
// version (sent as X-Id).
type Integrator struct {
	poster   smartrest.Poster
	template string
	logger   *slog.Logger
}

// New creates an integrator that registers template when the server does
// not know it yet.
func New(poster smartrest.Poster, template string, logger *slog.Logger) *Integrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Integrator{
		poster:   poster,
		template: template,
		logger:   logger.With("component", "integrate"),
	}
}

// Integrate negotiates the template XID and looks up or creates the
// managed object for deviceID. Nothing is returned unless every step
// succeeds.
func (ig *Integrator) Integrate(ctx context.Context, deviceID string) (agent.Binding, error) {
	r, err := ig.roundTrip(ctx, "probe", "")
	if err != nil {
		return agent.Binding{}, err
	}
	if r.Code() == codeTemplateUnknown {
		ig.logger.Info("template unknown to server, registering")
		r, err = ig.roundTrip(ctx, "register template", ig.template)
		if err != nil {
			return agent.Binding{}, err
		}
	}
	if r.Len() != 2 || r.Code() != codeTemplateBound {
		return agent.Binding{}, &ProtocolError{Step: "template", Record: r}
	}
	xid := r.Value(1)
	ig.logger.Debug("template bound", "xid", xid)

	r, err = ig.roundTrip(ctx, "request object", smartrest.Line(msgRequestObject, deviceID))
	if err != nil {
		return agent.Binding{}, err
	}

	switch {
	case r.Len() == 3 && r.Code() == codeObjectFound:
		return agent.Binding{XID: xid, ManagedObjectID: r.Value(2)}, nil

	case r.Len() > 0 && r.Code() == codeObjectNotFound:
		ig.logger.Info("managed object not found, creating", "device_id", deviceID)
		r, err = ig.roundTrip(ctx, "create object", msgCreateObject)
		if err != nil {
			return agent.Binding{}, err
		}
		if r.Len() != 3 || r.Code() != codeObjectCreated {
			return agent.Binding{}, &ProtocolError{Step: "create object", Record: r}
		}
		id := r.Value(2)

		bind := smartrest.Line(msgBindObject, id, deviceID)
		if _, err := ig.poster.Post(ctx, bind); err != nil {
			return agent.Binding{}, fmt.Errorf("bind object: %w", err)
		}
		return agent.Binding{XID: xid, ManagedObjectID: id}, nil

	default:
		return agent.Binding{}, &ProtocolError{Step: "request object", Record: r}
	}
}

// roundTrip posts body and returns the first record of the response.
func (ig *Integrator) roundTrip(ctx context.Context, step, body string) (smartrest.Record, error) {
	resp, err := ig.poster.Post(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", step, err)
	}
	return smartrest.NewParser(resp).Next(), nil
}
