package flags

import (
	"strings"
	"testing"
	"time"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// TestOptionalFlagsDontSetRequired asserts that all flags deemed optional set
// the Required field to false.
func TestOptionalFlagsDontSetRequired(t *testing.T) {
	for _, flag := range optionalFlags {
		reqFlag, ok := flag.(cli.RequiredFlag)
		require.True(t, ok)
		require.False(t, reqFlag.IsRequired())
	}
}

// TestUniqueFlags asserts that all flag names are unique, to avoid accidental conflicts between the many flags.
func TestUniqueFlags(t *testing.T) {
	seenCLI := make(map[string]struct{})
	for _, flag := range Flags {
		name := flag.Names()[0]
		if _, ok := seenCLI[name]; ok {
			t.Errorf("duplicate flag %s", name)
			continue
		}
		seenCLI[name] = struct{}{}
	}
}

func TestEnvVarFormat(t *testing.T) {
	for _, flag := range Flags {
		flagName := flag.Names()[0]

		t.Run(flagName, func(t *testing.T) {
			envFlagGetter, ok := flag.(interface {
				GetEnvVars() []string
			})
			require.True(t, ok, "must be able to cast the flag to an EnvVar interface")
			envFlags := envFlagGetter.GetEnvVars()
			require.Equal(t, 1, len(envFlags), "flags should have exactly one env var")
			require.Equal(t, opservice.FlagNameToEnvVarName(flagName, EnvVarPrefix), envFlags[0])
			require.True(t, strings.HasPrefix(envFlags[0], EnvVarPrefix+"_"))
		})
	}
}

func runApp(t *testing.T, args ...string) (*cli.Context, error) {
	t.Helper()
	return runAppWith(t, Flags, args...)
}

func runAppWith(t *testing.T, flags []cli.Flag, args ...string) (*cli.Context, error) {
	t.Helper()
	var captured *cli.Context
	app := &cli.App{
		Flags: flags,
		Action: func(ctx *cli.Context) error {
			captured = ctx
			return CheckRequired(ctx)
		},
	}
	err := app.Run(append([]string{"op-rerun"}, args...))
	return captured, err
}

func TestDefaults(t *testing.T) {
	ctx, err := runApp(t, "--plan", "plan.yaml")
	require.NoError(t, err)
	require.NotNil(t, ctx)

	assert.Equal(t, "plan.yaml", ctx.String(Plan.Name))
	assert.Equal(t, ".", ctx.String(TestDir.Name))
	assert.Equal(t, 0, ctx.Int(RerunClassMax.Name))
	assert.Equal(t, 0.5, ctx.Float64(RerunDelay.Name))
	assert.False(t, ctx.Bool(RerunShowOnlyLast.Name))
	assert.False(t, ctx.Bool(HideRerunSummary.Name))
	assert.Equal(t, 1, ctx.Int(Workers.Name))
	assert.Equal(t, 10*time.Minute, ctx.Duration(DefaultTimeout.Name))
	assert.True(t, ctx.Bool(ShowMembers.Name))
}

func TestEnvVars(t *testing.T) {
	t.Setenv("OP_RERUN_PLAN", "from-env.yaml")
	t.Setenv("OP_RERUN_RERUN_CLASS_MAX", "3")
	t.Setenv("OP_RERUN_RERUN_DELAY", "1.25")
	t.Setenv("OP_RERUN_RERUN_SHOW_ONLY_LAST", "true")

	// Flags read from the environment remember it, so work on copies.
	plan, rerunMax, delay, onlyLast := *Plan, *RerunClassMax, *RerunDelay, *RerunShowOnlyLast
	ctx, err := runAppWith(t, []cli.Flag{&plan, &rerunMax, &delay, &onlyLast})
	require.NoError(t, err)
	assert.Equal(t, "from-env.yaml", ctx.String(Plan.Name))
	assert.Equal(t, 3, ctx.Int(RerunClassMax.Name))
	assert.Equal(t, 1250*time.Millisecond, DelayDuration(ctx.Float64(RerunDelay.Name)))
	assert.True(t, ctx.Bool(RerunShowOnlyLast.Name))
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		err  string
	}{
		{name: "missing plan", args: nil, err: "plan"},
		{name: "negative reruns", args: []string{"--plan", "p", "--rerun-class-max", "-1"}, err: "rerun-class-max must not be negative"},
		{name: "negative delay", args: []string{"--plan", "p", "--rerun-delay", "-0.1"}, err: "rerun-delay must not be negative"},
		{name: "zero workers", args: []string{"--plan", "p", "--workers", "0"}, err: "workers must be between 1 and 32"},
		{name: "too many workers", args: []string{"--plan", "p", "--workers", "33"}, err: "workers must be between 1 and 32"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runApp(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestDelayDuration(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, DelayDuration(0.5))
	assert.Equal(t, time.Duration(0), DelayDuration(0))
	assert.Equal(t, 2*time.Second, DelayDuration(2))
}
