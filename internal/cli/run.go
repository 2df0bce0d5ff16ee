package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wesleyorama2/stampede/internal/performance/config"
	"github.com/wesleyorama2/stampede/internal/performance/engine"
	"github.com/wesleyorama2/stampede/internal/performance/output"
)

// runOptions are the run command settings after flag and environment
// resolution.
type runOptions struct {
	outputPath string
	jsonOutput bool
	quiet      bool
	noColor    bool
	logLevel   string
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario-file>",
		Short: "Run a load test from a scenario file",
		Long: `Run a load test described by a YAML or JSON scenario file.

The file defines the target request, think-time, the load profile (constant
VUs for a duration, or stages stepping the VU count) and thresholds. Every
flag can also be set through an environment variable with the STAMPEDE_
prefix, e.g. STAMPEDE_LOG_LEVEL=debug.

Examples:
  stampede run examples/load-test.yaml
  stampede run examples/stress-test.yaml --output results.json
  stampede run stress.yaml --json --quiet > results.json`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := runOptions{
				outputPath: v.GetString("output"),
				jsonOutput: v.GetBool("json"),
				quiet:      v.GetBool("quiet"),
				noColor:    v.GetBool("no-color"),
				logLevel:   v.GetString("log-level"),
			}
			return runTest(cmd.Context(), args[0], opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringP("output", "o", "", "Write the JSON result to this file")
	cmd.Flags().Bool("json", false, "Print the JSON result to stdout instead of the console report")
	cmd.Flags().BoolP("quiet", "q", false, "Disable live progress and print only PASSED/FAILED")
	cmd.Flags().Bool("no-color", false, "Disable colored output")
	cmd.Flags().String("log-level", "warn", "Log level written to stderr (debug, info, warn, error)")

	if err := bindFlags(v, cmd.Flags()); err != nil {
		panic(fmt.Sprintf("binding run flags: %v", err))
	}
	return cmd
}

// runTest loads the scenario, runs it and reports the result. It returns
// errThresholdsFailed when the run completed with a failed threshold.
func runTest(ctx context.Context, path string, opts runOptions, stdout, stderr io.Writer) error {
	logger, err := newLogger(opts.logLevel, stderr)
	if err != nil {
		return &usageError{err: err}
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}

	eng, err := engine.NewEngine(cfg, logger)
	if err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) && cfgErr.File == "" {
			cfgErr.File = path
		}
		return err
	}

	// The first SIGINT/SIGTERM stops the run gracefully; a second one
	// terminates the process.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	var console *output.ConsoleOutput
	if !opts.jsonOutput {
		console = output.NewConsoleOutput(output.ConsoleOutputConfig{
			TestName:     cfg.Name,
			ExecutorType: string(cfg.ExecutorType()),
			Writer:       stdout,
			Quiet:        opts.quiet,
			NoColor:      opts.noColor,
		})
		console.PrintHeader()
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if console != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			console.Watch(watchCtx, eng.Progress)
		}()
	}

	result, runErr := eng.Run(ctx)
	stopWatch()
	wg.Wait()

	if result == nil {
		return runErr
	}

	if console != nil {
		console.PrintSummary(result)
	} else if err := output.WriteJSON(stdout, result); err != nil {
		return err
	}

	if opts.outputPath != "" {
		if err := output.WriteJSONFile(opts.outputPath, result); err != nil {
			return err
		}
		logger.Info("result written", zap.String("path", opts.outputPath))
	}

	if runErr != nil {
		return runErr
	}
	if !result.Passed {
		return errThresholdsFailed
	}
	return nil
}

// newLogger builds a console logger writing to w at the given level.
func newLogger(level string, w io.Writer) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return nil, fmt.Errorf("invalid log level %q (use debug, info, warn or error)", level)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}
