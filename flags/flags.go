package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_RERUN"

// MaxWorkers caps --workers to avoid resource exhaustion.
const MaxWorkers = 32

var (
	Plan = &cli.StringFlag{
		Name:     "plan",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "PLAN"),
		Usage:    "Path to the check plan file (eg. 'plan.yaml'). Group state entries are not visible to 'go test' checks and are only restored between reruns by in-process engines",
	}
	TestDir = &cli.StringFlag{
		Name:    "testdir",
		Value:   ".",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TESTDIR"),
		Usage:   "Module root the plan's packages are resolved against",
	}
	GoBinary = &cli.StringFlag{
		Name:    "go-binary",
		Value:   "go",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "GO_BINARY"),
		Usage:   "Path to the Go binary to use for running checks",
	}
	RerunClassMax = &cli.IntFlag{
		Name:    "rerun-class-max",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RERUN_CLASS_MAX"),
		Usage:   "Number of times a failing group is rerun as a whole. 0 disables reruns.",
		Action:  validateRerunMax,
	}
	RerunDelay = &cli.Float64Flag{
		Name:    "rerun-delay",
		Value:   0.5,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RERUN_DELAY"),
		Usage:   "Seconds to wait between group reruns",
		Action:  validateRerunDelay,
	}
	RerunShowOnlyLast = &cli.BoolFlag{
		Name:    "rerun-show-only-last",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RERUN_SHOW_ONLY_LAST"),
		Usage:   "Report only the final attempt of every rerun check",
	}
	HideRerunSummary = &cli.BoolFlag{
		Name:    "hide-rerun-summary",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HIDE_RERUN_SUMMARY"),
		Usage:   "Do not print the rerun summary section at the end of a run",
	}
	Workers = &cli.IntFlag{
		Name:    "workers",
		Value:   1,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WORKERS"),
		Usage:   fmt.Sprintf("Number of workers sharing the plan; groups are never split between workers (max %d)", MaxWorkers),
		Action:  validateWorkers,
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "logs",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGDIR"),
		Usage:   "Directory to store per-run event logs",
	}
	DefaultTimeout = &cli.DurationFlag{
		Name:    "default-timeout",
		Value:   10 * time.Minute,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DEFAULT_TIMEOUT"),
		Usage:   "Timeout of a single check execution when the plan sets none (e.g. '5m')",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between plan runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	ShowMembers = &cli.BoolFlag{
		Name:    "show-members",
		Value:   true,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_MEMBERS"),
		Usage:   "List group members individually in the results table",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz.addr",
		Value:   "0.0.0.0:8080",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Listen address of the health endpoint. Empty disables it.",
	}
)

var requiredFlags = []cli.Flag{
	Plan,
}

var optionalFlags = []cli.Flag{
	TestDir,
	GoBinary,
	RerunClassMax,
	RerunDelay,
	RerunShowOnlyLast,
	HideRerunSummary,
	Workers,
	LogDir,
	DefaultTimeout,
	RunInterval,
	ShowMembers,
	HealthzAddr,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}

func validateRerunMax(_ *cli.Context, v int) error {
	if v < 0 {
		return fmt.Errorf("rerun-class-max must not be negative, got %d", v)
	}
	return nil
}

func validateRerunDelay(_ *cli.Context, v float64) error {
	if v < 0 {
		return fmt.Errorf("rerun-delay must not be negative, got %v", v)
	}
	return nil
}

func validateWorkers(_ *cli.Context, v int) error {
	if v < 1 || v > MaxWorkers {
		return fmt.Errorf("workers must be between 1 and %d, got %d", MaxWorkers, v)
	}
	return nil
}

// DelayDuration converts the rerun-delay seconds into a duration.
func DelayDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
