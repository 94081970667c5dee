// ABOUTME: Tests for device bootstrap: stored credentials, polling and persistence.
// ABOUTME: Uses the in-memory store and a scripted poster; sleeps are recorded, not waited.

package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/sragent/internal/agent"
	"github.com/2389/sragent/internal/store"
)

type reply struct {
	body string
	err  error
}

type scriptedPoster struct {
	replies []reply
	bodies  []string
}

func (p *scriptedPoster) Post(_ context.Context, body string) (string, error) {
	p.bodies = append(p.bodies, body)
	if len(p.replies) == 0 {
		return "", errors.New("no more replies")
	}
	r := p.replies[0]
	p.replies = p.replies[1:]
	return r.body, r.err
}

func newTestBootstrapper(p *scriptedPoster, kv store.KV, opts Options) (*Bootstrapper, *[]time.Duration) {
	b := New(p, kv, opts, nil)
	var sleeps []time.Duration
	b.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return b, &sleeps
}

func TestBootstrap_UsesStoredCredentials(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMockStore()
	require.NoError(t, kv.Set(ctx, store.KeyTenant, "t1"))
	require.NoError(t, kv.Set(ctx, store.KeyUsername, "u1"))
	require.NoError(t, kv.Set(ctx, store.KeyPassword, "p1"))

	p := &scriptedPoster{}
	b, _ := newTestBootstrapper(p, kv, Options{})

	creds, err := b.Bootstrap(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, agent.Credentials{Tenant: "t1", Username: "u1", Password: "p1"}, creds)
	assert.Empty(t, p.bodies)
}

func TestBootstrap_PollsUntilAccepted(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMockStore()
	p := &scriptedPoster{replies: []reply{
		{body: "50,1,404,Not found\n"},
		{err: errors.New("timeout")},
		{body: "70,1,1,t1,device_dev-1,secret\n"},
	}}
	b, sleeps := newTestBootstrapper(p, kv, Options{Interval: 3 * time.Second})

	creds, err := b.Bootstrap(ctx, "dev-1")
	require.NoError(t, err)

	assert.Equal(t, agent.Credentials{Tenant: "t1", Username: "device_dev-1", Password: "secret"}, creds)
	assert.Equal(t, []string{"61,dev-1", "61,dev-1", "61,dev-1"}, p.bodies)
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, *sleeps)

	// Persisted for the next start
	loaded, ok, err := b.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, creds, loaded)
}

func TestBootstrap_AttemptsExhausted(t *testing.T) {
	p := &scriptedPoster{replies: []reply{{body: "50\n"}, {body: "50\n"}}}
	b, _ := newTestBootstrapper(p, store.NewMockStore(), Options{Attempts: 2})

	_, err := b.Bootstrap(context.Background(), "dev-1")
	assert.ErrorIs(t, err, ErrBootstrapTimeout)
	assert.Len(t, p.bodies, 2)
}

func TestBootstrap_ContextCancelled(t *testing.T) {
	p := &scriptedPoster{replies: []reply{{body: "50\n"}}}
	b := New(p, store.NewMockStore(), Options{Interval: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Bootstrap(ctx, "dev-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBootstrap_PartialStoreRequestsAgain(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMockStore()
	require.NoError(t, kv.Set(ctx, store.KeyTenant, "stale"))

	p := &scriptedPoster{replies: []reply{{body: "70,1,1,t2,u2,p2\n"}}}
	b, _ := newTestBootstrapper(p, kv, Options{})

	creds, err := b.Bootstrap(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "t2", creds.Tenant)
}

func TestBootstrap_Reset(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMockStore()
	require.NoError(t, kv.Set(ctx, store.KeyTenant, "t1"))
	require.NoError(t, kv.Set(ctx, store.KeyUsername, "u1"))
	require.NoError(t, kv.Set(ctx, store.KeyPassword, "p1"))

	b, _ := newTestBootstrapper(&scriptedPoster{}, kv, Options{})
	require.NoError(t, b.Reset(ctx))

	_, ok, err := b.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBootstrap_WithAgent(t *testing.T) {
	p := &scriptedPoster{replies: []reply{{body: "70,1,1,t1,u1,p1\n"}}}
	b, _ := newTestBootstrapper(p, store.NewMockStore(), Options{})

	a := agent.New(agent.Options{DeviceID: "dev-7"}, nil)
	require.NoError(t, a.Bootstrap(context.Background(), b))

	assert.Equal(t, []string{"61,dev-7"}, p.bodies)
	assert.Equal(t, "t1", a.Tenant())
	assert.NotEmpty(t, a.Auth())
}
