// ABOUTME: Entry point for the sragent SmartREST device agent
// ABOUTME: Bootstraps credentials, integrates with the server and runs the agent loop

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/sragent/internal/agent"
	"github.com/2389/sragent/internal/bootstrap"
	"github.com/2389/sragent/internal/config"
	"github.com/2389/sragent/internal/integrate"
	"github.com/2389/sragent/internal/reporter"
	"github.com/2389/sragent/internal/smartrest"
	"github.com/2389/sragent/internal/store"
	"github.com/2389/sragent/internal/transport"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                        _
  ___ _ __ __ _  __ _  ___ _ __ | |_
 / __| '__/ _' |/ _' |/ _ \ '_ \| __|
 \__ \ | | (_| | (_| |  __/ | | | |_
 |___/_|  \__,_|\__, |\___|_| |_|\__|
                |___/
`

// msgServerError is the static template id the server uses to report a
// failed request inside a response.
const msgServerError agent.MsgID = 50

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: sragent <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  run        Bootstrap, integrate and run the agent")
		fmt.Println("  bootstrap  Request and store device credentials, then exit")
		fmt.Println("  reset      Forget stored device credentials")
		fmt.Println("  version    Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "run":
		err = runAgent(ctx)
	case "bootstrap":
		err = runBootstrap(ctx)
	case "reset":
		err = runReset(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runAgent(ctx context.Context) error {
	configPath := config.Path()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Server:    %s\n", cfg.Server.URL)
	green.Print("    ▶ ")
	fmt.Printf("Device:    %s\n", cfg.Device.ID)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	fmt.Println()

	tplVersion, template, err := smartrest.ReadTemplate(cfg.Device.Template)
	if err != nil {
		return fmt.Errorf("reading template: %w", err)
	}

	kv, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer kv.Close()

	a := agent.New(agent.Options{
		Server:          cfg.Server.URL,
		DeviceID:        cfg.Device.ID,
		IngressCapacity: cfg.Agent.IngressCapacity,
		EgressCapacity:  cfg.Agent.EgressCapacity,
	}, logger)

	logger.Info("starting sragent",
		"config", configPath,
		"server", cfg.Server.URL,
		"device_id", cfg.Device.ID,
		"template", tplVersion,
	)

	if err := a.Bootstrap(ctx, newBootstrapper(cfg, kv, logger)); err != nil {
		return fmt.Errorf("bootstrapping: %w", err)
	}

	client := transport.New(transport.Options{
		URL:     cfg.Server.URL,
		Auth:    a.Auth(),
		Timeout: cfg.Server.Timeout,
	}, logger)

	rep := reporter.New(client, a, a.Egress, a.Ingress, reporter.Options{
		BatchSize:      cfg.Reporter.BatchSize,
		Wait:           cfg.Reporter.Wait,
		Retries:        cfg.Reporter.Retries,
		Backoff:        cfg.Reporter.Backoff,
		BufferCapacity: cfg.Reporter.BufferCapacity,
	}, logger)
	a.SetQuiescer(rep)
	rep.Start(ctx)

	if err := a.Integrate(ctx, integrate.New(client.WithXID(tplVersion), template, logger)); err != nil {
		return fmt.Errorf("integrating: %w", err)
	}

	id := a.Identity()
	green.Print("    ▶ ")
	fmt.Printf("Tenant:    %s\n", id.Tenant)
	green.Print("    ▶ ")
	fmt.Printf("XID:       %s\n", id.XID)
	green.Print("    ▶ ")
	fmt.Printf("Object:    %s\n\n", id.ManagedObjectID)

	a.AddMsgHandler(msgServerError, agent.HandlerFunc(func(r smartrest.Record, _ *agent.Agent) {
		logger.Warn("server rejected a request", "fields", r.Values())
	}))

	if cfg.Agent.HeartbeatCode != "" {
		heartbeat := agent.NewTimer(cfg.Agent.HeartbeatInterval, func(_ *agent.Timer, a *agent.Agent) {
			msg := smartrest.Message{
				Data: smartrest.Line(cfg.Agent.HeartbeatCode, a.ID()),
				Prio: smartrest.PriorityBuffer,
			}
			if err := a.Send(msg); err != nil {
				logger.Warn("dropping heartbeat", "error", err)
			}
		})
		a.AddTimer(heartbeat)
		heartbeat.Start()
	}

	err = a.Loop(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}

func runBootstrap(ctx context.Context) error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	kv, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer kv.Close()

	creds, err := newBootstrapper(cfg, kv, logger).Bootstrap(ctx, cfg.Device.ID)
	if err != nil {
		return fmt.Errorf("bootstrapping: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Device %s registered in tenant %s as %s\n", cfg.Device.ID, creds.Tenant, creds.Username)
	return nil
}

func runReset(ctx context.Context) error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	kv, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer kv.Close()

	if err := newBootstrapper(cfg, kv, logger).Reset(ctx); err != nil {
		return err
	}

	yellow := color.New(color.FgYellow)
	yellow.Print("✓ ")
	fmt.Println("Stored credentials removed; the next run bootstraps again")
	return nil
}

// newBootstrapper builds a bootstrapper that polls with the shared
// bootstrap account.
func newBootstrapper(cfg *config.Config, kv store.KV, logger *slog.Logger) *bootstrap.Bootstrapper {
	client := transport.New(transport.Options{
		URL:     cfg.Server.URL,
		Auth:    transport.BasicAuth(cfg.Bootstrap.Username, cfg.Bootstrap.Password),
		Timeout: cfg.Server.Timeout,
	}, logger)
	return bootstrap.New(client, kv, bootstrap.Options{
		Interval: cfg.Bootstrap.Interval,
		Attempts: cfg.Bootstrap.Attempts,
	}, logger)
}
