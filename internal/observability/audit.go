package observability

import (
	"context"

	"rollcall/internal/core"
)

// LogAuditRecorder writes audit entries to a structured logger.
type LogAuditRecorder struct {
	logger core.Logger
}

// NewLogAuditRecorder returns a recorder logging through logger.
func NewLogAuditRecorder(logger core.Logger) *LogAuditRecorder {
	return &LogAuditRecorder{logger: logger}
}

// Record implements core.AuditRecorder.
func (r *LogAuditRecorder) Record(_ context.Context, entry core.AuditEntry) {
	args := []any{
		"operation", entry.Operation,
		"entity", entry.Entity,
		"action", entry.Action,
		"entity_id", entry.EntityID,
		"status", entry.Status,
		"duration", entry.Duration,
		"at", entry.Timestamp,
	}
	if entry.Status == core.AuditStatusError {
		r.logger.Warn("audit", append(args, "error", entry.Error)...)
		return
	}
	r.logger.Info("audit", args...)
}
