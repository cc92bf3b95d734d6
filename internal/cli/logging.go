// Package cli provides utility functions shared by the command line applications.
package cli

import (
	"log/slog"

	"github.com/ecotrend/go-ecotrend-ista/internal/constants"
)

// SetVerbosity sets the logging level for the default logger based on the verbose flag count.
func SetVerbosity(level int) {
	switch level {
	case 0:
		slog.SetLogLoggerLevel(constants.DefaultLogLevel)
	case 1:
		slog.SetLogLoggerLevel(slog.LevelInfo)
	default:
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}
}
