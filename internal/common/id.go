package common

import (
	"github.com/google/uuid"
)

// NewRenderTaskID generates a unique external-render task ID.
// Format: task_<uuid>
func NewRenderTaskID() string {
	return "task_" + uuid.New().String()
}

// NewDiagnosticID generates a correlation ID for a diagnostic batch.
// Format: diag_<uuid>
func NewDiagnosticID() string {
	return "diag_" + uuid.New().String()
}
