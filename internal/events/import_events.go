package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/SAP-F-2025/property-import-service/internal/models"
)

// EventType identifies an import lifecycle event.
type EventType string

const (
	EventImportValidated EventType = "import.validated"
	EventImportFailed    EventType = "import.failed"
	EventImportCancelled EventType = "import.cancelled"
	EventImportCompleted EventType = "import.completed"
)

const (
	eventSource  = "property-import-service"
	eventVersion = "1.0"
)

// ImportEvent is the envelope published for every job lifecycle change.
type ImportEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      ImportEventData        `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type ImportEventData struct {
	JobID          string                 `json:"job_id"`
	OrganizationID string                 `json:"organization_id"`
	FileName       string                 `json:"file_name"`
	ImportType     models.ImportType      `json:"import_type"`
	Status         models.ImportJobStatus `json:"status"`
	TotalRows      int                    `json:"total_rows"`
	SuccessCount   int                    `json:"success_count"`
	ErrorCount     int                    `json:"error_count"`
	SkippedCount   int                    `json:"skipped_count"`
	ErrorMessage   *string                `json:"error_message,omitempty"`
}

// EventTypeFor maps a job status onto the event announcing it. Non-announced statuses return false.
func EventTypeFor(status models.ImportJobStatus) (EventType, bool) {
	switch status {
	case models.ImportValidated:
		return EventImportValidated, true
	case models.ImportFailed:
		return EventImportFailed, true
	case models.ImportCancelled:
		return EventImportCancelled, true
	case models.ImportCompleted:
		return EventImportCompleted, true
	}
	return "", false
}

func NewImportEvent(eventType EventType, job *models.ImportJob) *ImportEvent {
	return &ImportEvent{
		ID:        GenerateEventID(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    eventSource,
		Version:   eventVersion,
		Data: ImportEventData{
			JobID:          job.ID,
			OrganizationID: job.OrganizationID,
			FileName:       job.FileName,
			ImportType:     job.ImportType,
			Status:         job.Status,
			TotalRows:      job.TotalRows,
			SuccessCount:   job.SuccessCount,
			ErrorCount:     job.ErrorCount,
			SkippedCount:   job.SkippedCount,
			ErrorMessage:   job.ErrorMessage,
		},
	}
}

func GenerateEventID() string {
	return uuid.NewString()
}
