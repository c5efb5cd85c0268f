package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/agentgrid/internal/app"
	"github.com/vk/agentgrid/internal/experiment"
	"github.com/zclconf/go-cty/cty"
)

func parse(t *testing.T, args ...string) (*Invocation, bool, string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	inv, exit, err := Parse(args, out)
	return inv, exit, out.String(), err
}

func requireExitError(t *testing.T, err error, contains string) {
	t.Helper()
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "expected an ExitError, got %v", err)
	assert.Equal(t, 2, exitErr.Code)
	assert.Contains(t, exitErr.Message, contains)
}

func TestParse_Help(t *testing.T) {
	for _, args := range [][]string{nil, {"--help"}, {"run", "-h"}} {
		inv, exit, out, err := parse(t, args...)
		require.NoError(t, err, "args %v", args)
		assert.True(t, exit)
		assert.Nil(t, inv)
		assert.Contains(t, out, "Usage:")
	}
}

func TestParse_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown flag", []string{"run", "--this-is-not-a-valid-flag", "m.hcl"}, "unknown flag: --this-is-not-a-valid-flag"},
		{"unknown command", []string{"fly"}, `unknown command "fly"`},
		{"no model", []string{"run"}, "at least one model path is required"},
		{"bad log format", []string{"run", "m.hcl", "--log-format", "xml"}, "invalid log-format"},
		{"bad log level", []string{"batch", "m.hcl", "--log-level", "loud"}, "invalid log-level"},
		{"bad param", []string{"run", "m.hcl", "-p", "rate"}, "expected name=value"},
		{"negative ticks", []string{"run", "m.hcl", "--ticks", "-1"}, "ticks must not be negative"},
		{"missing config", []string{"run", "m.hcl", "--config", "/does/not/exist.yaml"}, "failed to read run config"},
		{"operators takes no args", []string{"operators", "x"}, "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, exit, _, err := parse(t, tt.args...)
			assert.Nil(t, inv)
			assert.False(t, exit)
			requireExitError(t, err, tt.want)
		})
	}
}

func TestParse_RunFlags(t *testing.T) {
	inv, exit, _, err := parse(t, "run", "a.hcl", "-m", "models/",
		"--experiment", "main", "--ticks", "5", "--seed", "7", "--parallelism", "3",
		"-p", "rate=5", "-p", "name=bob", "-p", "xs=[1, 2]",
		"--output", "food,cycle", "--keep-simulations=false", "--log-format", "TEXT")
	require.NoError(t, err)
	require.False(t, exit)
	require.Equal(t, CommandRun, inv.Command)

	cfg := inv.Config
	assert.Equal(t, []string{"a.hcl", "models/"}, cfg.ModelPaths)
	assert.Equal(t, "main", cfg.Experiment)
	assert.Equal(t, 5, cfg.Ticks)
	assert.Equal(t, uint64(7), cfg.Seed)
	assert.Equal(t, 3, cfg.Parallelism)
	assert.Equal(t, 1, cfg.Replications)
	assert.Equal(t, []string{"food", "cycle"}, cfg.Outputs)
	require.NotNil(t, cfg.KeepSimulations)
	assert.False(t, *cfg.KeepSimulations)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)

	assert.True(t, cfg.Params["rate"].RawEquals(cty.NumberIntVal(5)))
	assert.True(t, cfg.Params["name"].RawEquals(cty.StringVal("bob")))
	assert.Equal(t, 2, cfg.Params["xs"].LengthInt())
	assert.Nil(t, cfg.ParameterSets)
}

func TestParse_DefaultsLeaveModelSettings(t *testing.T) {
	inv, _, _, err := parse(t, "run", "a.hcl")
	require.NoError(t, err)
	assert.Nil(t, inv.Config.KeepSimulations, "the experiment's keep_simulations facet applies")
	assert.Empty(t, inv.Config.Params)
	assert.Equal(t, "json", inv.Config.LogFormat)
}

func TestParse_ConfigFileMergesWithFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
experiment: sweep
ticks: 10
seed: 3
keep_simulations: false
replications: 4
parameters:
  rate: 2
  size: 1
parameter_sets:
  - {size: 10}
  - {size: 20}
outputs: [food]
`), 0o644))

	inv, _, _, err := parse(t, "batch", "a.hcl", "--config", path, "--ticks", "4", "-p", "rate=9")
	require.NoError(t, err)
	require.Equal(t, CommandBatch, inv.Command)

	cfg := inv.Config
	assert.Equal(t, "sweep", cfg.Experiment)
	assert.Equal(t, 4, cfg.Ticks, "flags override the file")
	assert.Equal(t, uint64(3), cfg.Seed)
	assert.Equal(t, 4, cfg.Replications)
	require.NotNil(t, cfg.KeepSimulations)
	assert.False(t, *cfg.KeepSimulations)
	assert.Equal(t, []string{"food"}, cfg.Outputs)
	assert.True(t, cfg.Params["rate"].RawEquals(cty.NumberIntVal(9)))

	require.Len(t, cfg.ParameterSets, 2)
	assert.True(t, cfg.ParameterSets[0]["size"].RawEquals(cty.NumberIntVal(10)))
	assert.True(t, cfg.ParameterSets[1]["size"].RawEquals(cty.NumberIntVal(20)))
	assert.True(t, cfg.ParameterSets[1]["rate"].RawEquals(cty.NumberIntVal(9)))
}

func TestParse_Operators(t *testing.T) {
	inv, exit, _, err := parse(t, "operators")
	require.NoError(t, err)
	assert.False(t, exit)
	assert.Equal(t, CommandOperators, inv.Command)
	assert.Nil(t, inv.Config)
}

func TestPrintBatch(t *testing.T) {
	pterm.DisableStyling()
	t.Cleanup(pterm.EnableStyling)

	out := &bytes.Buffer{}
	err := PrintBatch(out, []experiment.BatchResult{
		{Key: "rate=2", Seed: 11, Cycle: 3, Outputs: map[string]cty.Value{"food": cty.NumberIntVal(16)}},
		{Key: "rate=3", Replication: 1, Seed: 12, Cycle: 1, Err: errors.New("boom")},
	})
	require.NoError(t, err)

	s := out.String()
	for _, want := range []string{"parameters", "food", "rate=2", "16", "ok", "failed: boom", "12"} {
		assert.Contains(t, s, want)
	}
}

func TestPrintOperators(t *testing.T) {
	pterm.DisableStyling()
	t.Cleanup(pterm.EnableStyling)

	out := &bytes.Buffer{}
	require.NoError(t, PrintOperators(out, app.Operators()))

	s := out.String()
	assert.Contains(t, s, "rnd(int)")
	assert.Contains(t, s, "primitives:")
	assert.Contains(t, s, "write")
	assert.Contains(t, s, "fetch")
}
