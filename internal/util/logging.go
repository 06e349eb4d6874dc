package util

import (
	"fmt"

	"github.com/rs/zerolog"
)

// LogError logs an error with component and operation context.
// This helper standardizes error logging across the codebase.
//
// Parameters:
//   - logger: The logger instance to use
//   - component: The component where the error occurred (e.g., "websocket", "router")
//   - operation: The operation that failed (e.g., "persist message", "join room")
//   - err: The error that occurred
//
// Example:
//
//	LogError(logger, "router", "persist message", err)
func LogError(logger zerolog.Logger, component, operation string, err error) {
	logger.Error().
		Err(err).
		Str("component", component).
		Msg(fmt.Sprintf("Failed to %s", operation))
}
