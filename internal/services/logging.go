package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ServiceLogger provides structured logging for service layer operations
type ServiceLogger struct {
	logger *slog.Logger
}

func NewServiceLogger(logger *slog.Logger, service, component string) *ServiceLogger {
	return &ServiceLogger{
		logger: logger.With("service", service, "component", component),
	}
}

func (l *ServiceLogger) Logger() *slog.Logger {
	return l.logger
}

// LogOperation logs the outcome of one service call at a level derived from the error kind.
func (l *ServiceLogger) LogOperation(ctx context.Context, operation, organizationID, jobID string, duration time.Duration, err error) {
	level := slog.LevelInfo
	status := "success"

	if err != nil {
		level = slog.LevelError
		status = "error"

		switch {
		case IsValidation(err) || IsBusinessRule(err):
			level = slog.LevelWarn
			status = "validation_error"
		case IsConflict(err):
			level = slog.LevelWarn
			status = "conflict"
		case IsNotFound(err):
			status = "not_found"
		}
	}

	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("organization_id", organizationID),
		slog.String("status", status),
		slog.Duration("duration", duration),
	}
	if jobID != "" {
		attrs = append(attrs, slog.String("job_id", jobID))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		if ve, ok := err.(ValidationErrors); ok {
			attrs = append(attrs, slog.Int("validation_errors_count", len(ve)))
		} else if bre, ok := err.(*BusinessRuleError); ok {
			attrs = append(attrs, slog.String("business_rule", bre.Rule))
		}
	}

	l.logger.LogAttrs(ctx, level, fmt.Sprintf("%s operation %s", operation, status), attrs...)
}

// LogTransition records every job status change.
func (l *ServiceLogger) LogTransition(ctx context.Context, jobID string, from, to string, applied bool) {
	level := slog.LevelInfo
	if !applied {
		level = slog.LevelWarn
	}
	l.logger.LogAttrs(ctx, level, "Import job transition",
		slog.String("job_id", jobID),
		slog.String("from", from),
		slog.String("to", to),
		slog.Bool("applied", applied),
	)
}

func (l *ServiceLogger) LogRecovery(ctx context.Context, operation, jobID string, recovered interface{}, stack []byte) {
	l.logger.LogAttrs(ctx, slog.LevelError, "Panic recovered",
		slog.String("operation", operation),
		slog.String("job_id", jobID),
		slog.Any("panic_value", recovered),
		slog.String("stack_trace", string(stack)),
	)
}

// ContextualLogger times one operation and logs its result.
type ContextualLogger struct {
	logger         *ServiceLogger
	operation      string
	organizationID string
	startTime      time.Time
	ctx            context.Context
}

func (l *ServiceLogger) WithOperation(ctx context.Context, operation, organizationID string) *ContextualLogger {
	return &ContextualLogger{
		logger:         l,
		operation:      operation,
		organizationID: organizationID,
		startTime:      time.Now(),
		ctx:            ctx,
	}
}

func (cl *ContextualLogger) LogResult(jobID string, err error) {
	cl.logger.LogOperation(cl.ctx, cl.operation, cl.organizationID, jobID, time.Since(cl.startTime), err)
}
