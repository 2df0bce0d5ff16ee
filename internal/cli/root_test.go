package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/stampede/internal/performance"
	"github.com/wesleyorama2/stampede/internal/performance/config"
	"github.com/wesleyorama2/stampede/internal/performance/executor"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitPassed},
		{"thresholds failed", errThresholdsFailed, ExitThresholdFailed},
		{"config error", &config.ConfigError{File: "x.yaml", Err: errors.New("bad")}, ExitConfigError},
		{"wrapped config error", fmt.Errorf("load: %w", &config.ConfigError{Err: errors.New("bad")}), ExitConfigError},
		{"usage error", &usageError{err: errors.New("accepts 1 arg")}, ExitConfigError},
		{"scheduler fault", &executor.SchedulerFault{Op: "spawn", Err: performance.ErrPoolExhausted}, ExitSchedulerFault},
		{"joined scheduler fault", errors.Join(&executor.SchedulerFault{Op: "drain", Err: errors.New("stuck")}, errors.New("other")), ExitSchedulerFault},
		{"other error", errors.New("disk full"), ExitRunError},
		{"wrapped run error", fmt.Errorf("run failed: %w", errors.New("boom")), ExitRunError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestExecuteArgs_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := ExecuteArgs(context.Background(), nil, &stdout, &stderr)

	assert.Equal(t, ExitPassed, code)
	assert.Contains(t, stdout.String(), "stampede")
	assert.Contains(t, stdout.String(), "run")
}

func TestExecuteArgs_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := ExecuteArgs(context.Background(), []string{"--version"}, &stdout, &stderr)

	assert.Equal(t, ExitPassed, code)
	assert.Contains(t, stdout.String(), version)
}

func TestExecuteArgs_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"run without file", []string{"run"}},
		{"run with two files", []string{"run", "a.yaml", "b.yaml"}},
		{"unknown flag", []string{"run", "a.yaml", "--bogus"}},
		{"unknown command", []string{"stomp"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := ExecuteArgs(context.Background(), tt.args, &stdout, &stderr)

			assert.Equal(t, ExitConfigError, code)
			assert.Contains(t, stderr.String(), "Error:")
			assert.Contains(t, stderr.String(), "--help")
		})
	}
}

func TestNewRootCmd_Independent(t *testing.T) {
	a := NewRootCmd()
	b := NewRootCmd()
	require.NotSame(t, a, b)

	runA, _, err := a.Find([]string{"run"})
	require.NoError(t, err)
	require.NoError(t, runA.Flags().Set("quiet", "true"))

	runB, _, err := b.Find([]string{"run"})
	require.NoError(t, err)
	assert.Equal(t, "false", runB.Flags().Lookup("quiet").Value.String())
}
