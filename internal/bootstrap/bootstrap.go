// ABOUTME: Device registration: requests tenant credentials for a device id and persists them.
// ABOUTME: Polls with the bootstrap account until the device is accepted on the server.

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/sragent/internal/agent"
	"github.com/2389/sragent/internal/smartrest"
	"github.com/2389/sragent/internal/store"
)

const (
	msgRequestCredentials = "61"
	codeCredentials       = "70"
	credentialFields      = 6
)

// DefaultInterval is the wait between credential polls.
const DefaultInterval = 5 * time.Second

// ErrBootstrapTimeout is returned when every poll attempt was used up.
var ErrBootstrapTimeout = errors.New("device was not accepted before attempts ran out")

// Options tunes polling.
type Options struct {
	Interval time.Duration
	// Attempts bounds the number of polls; zero polls until ctx is done.
	Attempts int
}

// Bootstrapper loads credentials from the store or requests new ones.
type Bootstrapper struct {
	poster smartrest.Poster
	kv     store.KV
	opts   Options
	logger *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a bootstrapper. poster must authenticate with the bootstrap
// account, not the device's own credentials.
func New(poster smartrest.Poster, kv store.KV, opts Options, logger *slog.Logger) *Bootstrapper {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Bootstrapper{
		poster: poster,
		kv:     kv,
		opts:   opts,
		logger: logger.With("component", "bootstrap"),
		sleep:  sleepContext,
	}
}

// Bootstrap returns stored credentials, or requests and stores new ones.
func (b *Bootstrapper) Bootstrap(ctx context.Context, deviceID string) (agent.Credentials, error) {
	creds, ok, err := b.Load(ctx)
	if err != nil {
		return agent.Credentials{}, err
	}
	if ok {
		b.logger.Debug("using stored credentials", "tenant", creds.Tenant)
		return creds, nil
	}

	creds, err = b.request(ctx, deviceID)
	if err != nil {
		return agent.Credentials{}, err
	}
	if err := b.save(ctx, creds); err != nil {
		return agent.Credentials{}, err
	}
	return creds, nil
}

// Load reads stored credentials. ok is false when any field is missing.
func (b *Bootstrapper) Load(ctx context.Context) (creds agent.Credentials, ok bool, err error) {
	fields := []struct {
		key string
		dst *string
	}{
		{store.KeyTenant, &creds.Tenant},
		{store.KeyUsername, &creds.Username},
		{store.KeyPassword, &creds.Password},
	}
	for _, f := range fields {
		v, err := b.kv.Get(ctx, f.key)
		if errors.Is(err, store.ErrNotFound) {
			return agent.Credentials{}, false, nil
		}
		if err != nil {
			return agent.Credentials{}, false, fmt.Errorf("loading credentials: %w", err)
		}
		*f.dst = v
	}
	return creds, creds.Complete(), nil
}

// Reset deletes stored credentials so the next run bootstraps again.
func (b *Bootstrapper) Reset(ctx context.Context) error {
	for _, key := range []string{store.KeyTenant, store.KeyUsername, store.KeyPassword} {
		if err := b.kv.Delete(ctx, key); err != nil {
			return fmt.Errorf("resetting credentials: %w", err)
		}
	}
	b.logger.Info("stored credentials removed")
	return nil
}

func (b *Bootstrapper) save(ctx context.Context, creds agent.Credentials) error {
	values := map[string]string{
		store.KeyTenant:   creds.Tenant,
		store.KeyUsername: creds.Username,
		store.KeyPassword: creds.Password,
	}
	for key, v := range values {
		if err := b.kv.Set(ctx, key, v); err != nil {
			return fmt.Errorf("saving credentials: %w", err)
		}
	}
	return nil
}

// request polls the server until it hands out credentials for deviceID.
func (b *Bootstrapper) request(ctx context.Context, deviceID string) (agent.Credentials, error) {
	body := smartrest.Line(msgRequestCredentials, deviceID)
	b.logger.Info("requesting device credentials", "device_id", deviceID)

	for attempt := 1; b.opts.Attempts == 0 || attempt <= b.opts.Attempts; attempt++ {
		resp, err := b.poster.Post(ctx, body)
		if err != nil {
			b.logger.Warn("credential request failed", "attempt", attempt, "error", err)
		} else {
			r := smartrest.NewParser(resp).Next()
			if r.Len() == credentialFields && r.Code() == codeCredentials {
				b.logger.Info("device credentials received", "tenant", r.Value(3))
				return agent.Credentials{
					Tenant:   r.Value(3),
					Username: r.Value(4),
					Password: r.Value(5),
				}, nil
			}
			b.logger.Debug("device not accepted yet", "attempt", attempt, "code", r.Code())
		}
		if attempt == b.opts.Attempts {
			break
		}

		if err := b.sleep(ctx, b.opts.Interval); err != nil {
			return agent.Credentials{}, err
		}
	}
	return agent.Credentials{}, ErrBootstrapTimeout
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
