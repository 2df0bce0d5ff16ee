package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// NewExecutor creates a new executor of the specified type.
//
// Supported types:
//   - "constant-vus" - Fixed number of VUs for a duration
//   - "staged-vus" - VU count stepped through a list of stages
//
// Returns an uninitialized executor. Call Init() before Run().
func NewExecutor(executorType Type, logger *zap.Logger) (Executor, error) {
	switch executorType {
	case TypeConstantVUs:
		return NewConstantVUs(logger), nil
	case TypeStagedVUs:
		return NewStagedVUs(logger), nil
	default:
		return nil, fmt.Errorf("unknown executor type: %s", executorType)
	}
}

// CreateAndInitExecutor creates and initializes an executor with the given config.
func CreateAndInitExecutor(ctx context.Context, cfg *Config, logger *zap.Logger) (Executor, error) {
	exec, err := NewExecutor(cfg.Type, logger)
	if err != nil {
		return nil, err
	}

	if err := exec.Init(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize executor: %w", err)
	}

	return exec, nil
}

// IsValidExecutorType returns true if the type is a valid executor type.
func IsValidExecutorType(executorType string) bool {
	switch Type(executorType) {
	case TypeConstantVUs, TypeStagedVUs:
		return true
	default:
		return false
	}
}

// GetSupportedExecutors returns a list of all supported executor types.
func GetSupportedExecutors() []Type {
	return []Type{TypeConstantVUs, TypeStagedVUs}
}
