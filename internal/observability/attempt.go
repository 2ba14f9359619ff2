package observability

import (
	"go.uber.org/zap"
)

// Field keys shared by every component that logs about an attempt.
const (
	FieldCorrelationID = "correlation_id"
	FieldIdentifier    = "identifier"
	FieldStage         = "stage"
)

// WithAttempt scopes a logger to one validation attempt so every line carries
// the correlation id that also lands in the audit rows.
func WithAttempt(logger *zap.Logger, correlationID, identifier string) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.With(
		zap.String(FieldCorrelationID, correlationID),
		zap.String(FieldIdentifier, identifier),
	)
}

// Stage returns the stage field used when logging a step of the interaction.
func Stage(name string) zap.Field {
	return zap.String(FieldStage, name)
}
