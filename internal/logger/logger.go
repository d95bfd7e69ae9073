package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// Initialize replaces the global zap logger with one at the given level.
func Initialize(level string) error {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return fmt.Errorf("error parse log level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl

	zl, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("error build logger: %w", err)
	}

	zap.ReplaceGlobals(zl)

	return nil
}
