package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vk/agentgrid/internal/app"
	"github.com/vk/agentgrid/internal/config"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// Command names the subcommand an invocation runs.
type Command string

const (
	CommandRun       Command = "run"
	CommandBatch     Command = "batch"
	CommandOperators Command = "operators"
)

// Invocation is the result of a successful parse. Config is nil for the
// operators command.
type Invocation struct {
	Command Command
	Config  *app.Config
}

// options receives the flags shared by run and batch.
type options struct {
	models          []string
	configPath      string
	experiment      string
	ticks           int
	parallelism     int
	seed            uint64
	keepSimulations bool
	replications    int
	params          []string
	outputs         []string
	statusURL       string
	statusRate      float64
	healthPort      int
	logFormat       string
	logLevel        string
}

func (o *options) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSliceVarP(&o.models, "model", "m", nil, "Model file or directory; repeatable, added to the positional paths.")
	f.StringVarP(&o.configPath, "config", "c", "", "YAML run configuration. Flags override its values.")
	f.StringVarP(&o.experiment, "experiment", "e", "", "Experiment to run. Defaults to the first one declared.")
	f.IntVar(&o.ticks, "ticks", 0, "Stop after this many ticks. 0 runs until every simulation ends.")
	f.IntVar(&o.parallelism, "parallelism", 0, "Simulations stepped concurrently. 0 uses the experiment's setting.")
	f.Uint64Var(&o.seed, "seed", 0, "Experiment seed.")
	f.BoolVar(&o.keepSimulations, "keep-simulations", true, "Keep the globals of finished simulations readable.")
	f.IntVar(&o.replications, "replications", 1, "Simulations created per parameter set.")
	f.StringArrayVarP(&o.params, "param", "p", nil, "Parameter value as name=value, value in YAML syntax; repeatable.")
	f.StringSliceVar(&o.outputs, "output", nil, "Globals to report; repeatable. Defaults to all.")
	f.StringVar(&o.statusURL, "status-url", "", "socket.io server receiving status events.")
	f.Float64Var(&o.statusRate, "status-rate", 0, "Maximum tick events per second sent to the status server. 0 is unlimited.")
	f.IntVar(&o.healthPort, "healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	f.StringVar(&o.logFormat, "log-format", "json", "Log output format. Options: 'text' or 'json'.")
	f.StringVar(&o.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
}

// Parse processes command-line arguments. It returns the invocation to
// execute, a boolean indicating if the program should exit cleanly (help
// was shown), or an ExitError.
func Parse(args []string, output io.Writer) (*Invocation, bool, error) {
	slog.Debug("CLI parser started.")
	var inv *Invocation
	root := newRootCommand(func(i *Invocation) { inv = i })
	if args == nil {
		// cobra falls back to os.Args on nil.
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(output)
	root.SetErr(output)

	if err := root.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return nil, false, exitErr
		}
		return nil, false, usageError("%v", err)
	}
	if inv == nil {
		return nil, true, nil
	}
	slog.Debug("CLI parser finished successfully.", "command", inv.Command)
	return inv, false, nil
}

func newRootCommand(done func(*Invocation)) *cobra.Command {
	root := &cobra.Command{
		Use:   "agentgrid",
		Short: "agentgrid runs agent-based simulation models.",
		Long: `agentgrid compiles agent-based models written in HCL and runs their
experiments, one or many simulations at a time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError("%v", err)
	})

	for _, c := range []struct {
		cmd   Command
		short string
	}{
		{CommandRun, "Run an experiment of a model."},
		{CommandBatch, "Run every parameter set of an experiment and print a result table."},
	} {
		o := &options{}
		sub := &cobra.Command{
			Use:   string(c.cmd) + " [MODEL_PATH...]",
			Short: c.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := o.config(cmd, args)
				if err != nil {
					return err
				}
				done(&Invocation{Command: c.cmd, Config: cfg})
				return nil
			},
		}
		o.bind(sub)
		root.AddCommand(sub)
	}

	root.AddCommand(&cobra.Command{
		Use:   string(CommandOperators),
		Short: "List the operators and primitives models can call.",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			done(&Invocation{Command: CommandOperators})
			return nil
		},
	})
	return root
}

// config validates the flags and merges them over the run configuration
// file, if any.
func (o *options) config(cmd *cobra.Command, args []string) (*app.Config, error) {
	paths := append(append([]string{}, args...), o.models...)
	if len(paths) == 0 {
		return nil, usageError("at least one model path is required")
	}

	logFormat := strings.ToLower(o.logFormat)
	if logFormat != "text" && logFormat != "json" {
		return nil, usageError("invalid log-format: must be 'text' or 'json'")
	}
	logLevel := strings.ToLower(o.logLevel)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}

	rc := &config.RunConfig{}
	if o.configPath != "" {
		var err error
		if rc, err = config.LoadRunConfig(o.configPath); err != nil {
			return nil, usageError("%v", err)
		}
	}

	changed := cmd.Flags().Changed
	if changed("experiment") {
		rc.Experiment = o.experiment
	}
	if changed("ticks") {
		rc.Ticks = o.ticks
	}
	if changed("parallelism") {
		rc.Parallelism = o.parallelism
	}
	if changed("seed") {
		rc.Seed = &o.seed
	}
	if changed("keep-simulations") {
		rc.KeepSimulations = &o.keepSimulations
	}
	if changed("replications") || rc.Replications == 0 {
		rc.Replications = o.replications
	}
	if changed("output") {
		rc.Outputs = o.outputs
	}
	if changed("status-url") {
		rc.StatusURL = o.statusURL
	}
	if changed("status-rate") {
		rc.StatusRate = o.statusRate
	}
	if len(o.params) > 0 && rc.Parameters == nil {
		rc.Parameters = make(map[string]any, len(o.params))
	}
	for _, p := range o.params {
		name, v, err := parseParam(p)
		if err != nil {
			return nil, usageError("%v", err)
		}
		rc.Parameters[name] = v
	}
	if err := rc.Validate(); err != nil {
		return nil, usageError("%v", err)
	}

	params, err := config.Values(rc.Parameters)
	if err != nil {
		return nil, usageError("invalid parameters: %v", err)
	}
	var sets []map[string]cty.Value
	if len(rc.ParameterSets) > 0 {
		if sets, err = rc.ParameterSetValues(); err != nil {
			return nil, usageError("invalid parameter sets: %v", err)
		}
	}

	var seed uint64
	if rc.Seed != nil {
		seed = *rc.Seed
	}
	cfg, err := app.NewConfig(app.Config{
		ModelPaths:      paths,
		Experiment:      rc.Experiment,
		Ticks:           rc.Ticks,
		Parallelism:     rc.Parallelism,
		Seed:            seed,
		KeepSimulations: rc.KeepSimulations,
		Replications:    rc.Replications,
		Params:          params,
		ParameterSets:   sets,
		Outputs:         rc.Outputs,
		StatusURL:       rc.StatusURL,
		StatusRate:      rc.StatusRate,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		HealthcheckPort: o.healthPort,
	})
	if err != nil {
		return nil, usageError("%v", err)
	}
	return cfg, nil
}

// parseParam splits name=value and decodes value as YAML, so numbers, bools
// and lists keep their type.
func parseParam(s string) (string, any, error) {
	name, raw, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", nil, fmt.Errorf("invalid --param %q: expected name=value", s)
	}
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return "", nil, fmt.Errorf("invalid --param %q: %w", s, err)
	}
	return name, v, nil
}
