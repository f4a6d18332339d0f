package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	rerun "github.com/ethereum-optimism/infra/op-rerun"
	"github.com/ethereum-optimism/infra/op-rerun/flags"
	"github.com/ethereum-optimism/infra/op-rerun/service"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := newApp()

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-rerun"
	app.Usage = "Grouped test check runner with group-level reruns"
	app.Description = "op-rerun runs a plan of go test checks and reruns failing groups as a whole"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.ExitErrHandler = exitErrHandler
	return app
}

// exitErrHandler maps typed errors to exit codes: 1 for check failures,
// 2 for runtime errors.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	if exitErr, ok := err.(cli.ExitCoder); ok {
		cli.HandleExitCoder(exitErr)
		return
	}
	cli.HandleExitCoder(cli.Exit(err.Error(), rerun.ExitCode(err)))
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := rerun.NewConfig(ctx, log)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, rerun.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	cfg.Log.Debug("Config", "config", cfg)

	svc, err := rerun.New(cfg, Version, closeApp)
	if err != nil {
		return nil, rerun.NewRuntimeError(fmt.Errorf("failed to create op-rerun: %w", err))
	}

	servers := service.New(service.Config{
		HealthzAddr: ctx.String(flags.HealthzAddr.Name),
		Metrics:     opmetrics.ReadCLIConfig(ctx),
	})
	return &lifecycle{Service: svc, servers: servers}, nil
}

// lifecycle runs the health and metrics endpoints alongside the rerun service.
type lifecycle struct {
	*rerun.Service
	servers *service.Service
}

func (l *lifecycle) Start(ctx context.Context) error {
	l.servers.Start(ctx)
	if err := l.Service.Start(ctx); err != nil {
		l.servers.Shutdown()
		return err
	}
	return nil
}

func (l *lifecycle) Stop(ctx context.Context) error {
	defer l.servers.Shutdown()
	return l.Service.Stop(ctx)
}
