package application

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/example/calendar-scheduler/internal/logging"
)

// serviceLogger derives an operation-scoped logger from the context.
func serviceLogger(ctx context.Context, serviceName, operation string) zerolog.Logger {
	return logging.FromContext(ctx).With().
		Str("service", serviceName).
		Str("operation", operation).
		Logger()
}
