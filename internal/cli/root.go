package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wesleyorama2/stampede/internal/performance/config"
	"github.com/wesleyorama2/stampede/internal/performance/executor"
)

var version = "0.1.0"

// Process exit codes.
const (
	ExitPassed          = 0
	ExitThresholdFailed = 1
	ExitConfigError     = 2
	ExitSchedulerFault  = 3

	// ExitRunError covers every other failure to carry out or report a run,
	// e.g. an unwritable --output file. It shares the scheduler fault code.
	ExitRunError = ExitSchedulerFault
)

// envPrefix is the prefix for environment variables overriding flags, e.g.
// STAMPEDE_NO_COLOR=true.
const envPrefix = "STAMPEDE"

// errThresholdsFailed is returned by the run command when the run completed
// but at least one threshold failed.
var errThresholdsFailed = errors.New("one or more thresholds failed")

// usageError marks invalid command-line usage.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// NewRootCmd builds the command tree. Every call returns an independent tree
// with its own viper instance.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:     "stampede",
		Short:   "Virtual-user load and stress testing for HTTP services",
		Version: version,
		Long: `Stampede drives an HTTP endpoint with a population of virtual users, each
issuing one request per iteration followed by a think-time pause. The VU count
is held constant or stepped through stages, latencies and failures are
recorded, and pass/fail thresholds decide the exit status.

Exit codes:
  0  all thresholds passed
  1  a threshold failed
  2  invalid configuration or usage
  3  the VU pool could not be managed, or the run could not be carried
     out or reported`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return &usageError{err: fmt.Errorf("unknown command %q for %q", args[0], cmd.CommandPath())}
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			_ = cmd.Help()
		},
	}

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})
	rootCmd.AddCommand(newRunCmd(v))
	return rootCmd
}

// exactArgs is cobra.ExactArgs reported as a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

// bindFlags makes every flag readable through v, with environment fallback.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	return bindErr
}

// Execute runs the command line and returns the process exit code.
// This is called by main.main().
func Execute() int {
	return ExecuteArgs(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

// ExecuteArgs runs the command line with explicit arguments and streams.
func ExecuteArgs(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := NewRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	code := ExitCode(err)
	if err != nil && !errors.Is(err, errThresholdsFailed) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if code == ExitConfigError && isUsage(err) {
			fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", rootCmd.CommandPath())
		}
	}
	return code
}

// ExitCode maps a command error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitPassed
	}

	var cfgErr *config.ConfigError
	var fault *executor.SchedulerFault
	switch {
	case errors.As(err, &fault):
		return ExitSchedulerFault
	case errors.As(err, &cfgErr), isUsage(err):
		return ExitConfigError
	case errors.Is(err, errThresholdsFailed):
		return ExitThresholdFailed
	default:
		return ExitRunError
	}
}

func isUsage(err error) bool {
	var uerr *usageError
	return errors.As(err, &uerr)
}
