package models

import (
	"time"

	"gorm.io/datatypes"
)

type ImportJobStatus string

const (
	ImportPending    ImportJobStatus = "pending"
	ImportValidating ImportJobStatus = "validating"
	ImportValidated  ImportJobStatus = "validated"
	ImportProcessing ImportJobStatus = "processing"
	ImportCompleted  ImportJobStatus = "completed"
	ImportFailed     ImportJobStatus = "failed"
	ImportCancelled  ImportJobStatus = "cancelled"
)

// importTransitions lists the statuses reachable from each non-terminal status.
var importTransitions = map[ImportJobStatus][]ImportJobStatus{
	ImportPending:    {ImportValidating, ImportFailed, ImportCancelled},
	ImportValidating: {ImportValidated, ImportFailed, ImportCancelled},
	ImportValidated:  {ImportProcessing, ImportCancelled},
	ImportProcessing: {ImportCompleted, ImportFailed},
}

func (s ImportJobStatus) IsValid() bool {
	switch s {
	case ImportPending, ImportValidating, ImportValidated, ImportProcessing,
		ImportCompleted, ImportFailed, ImportCancelled:
		return true
	}
	return false
}

func (s ImportJobStatus) CanTransitionTo(next ImportJobStatus) bool {
	for _, allowed := range importTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SourcesOf returns every status that may move into target, in declaration order.
func SourcesOf(target ImportJobStatus) []ImportJobStatus {
	var sources []ImportJobStatus
	for _, s := range []ImportJobStatus{ImportPending, ImportValidating, ImportValidated, ImportProcessing} {
		if s.CanTransitionTo(target) {
			sources = append(sources, s)
		}
	}
	return sources
}

// HasStagedResult reports whether a job in this status may carry a staged validation result.
// Failed jobs only carry one when they failed after confirm.
func (s ImportJobStatus) HasStagedResult() bool {
	switch s {
	case ImportValidated, ImportProcessing, ImportCompleted, ImportFailed:
		return true
	}
	return false
}

// ImportType is either a single entity type or ImportTypeCombined.
type ImportType string

const ImportTypeCombined ImportType = "combined"

func (t ImportType) IsValid() bool {
	return t == ImportTypeCombined || EntityType(t).IsValid()
}

func (t ImportType) Entity() (EntityType, bool) {
	e := EntityType(t)
	return e, e.IsValid()
}

type ImportJob struct {
	ID             string     `json:"id" gorm:"primaryKey;size:36"` // UUID
	OrganizationID string     `json:"organization_id" gorm:"not null;index;size:64"`
	FileName       string     `json:"file_name" gorm:"not null;size:255"`
	FileSize       int64      `json:"file_size" gorm:"not null;default:0"`
	ImportType     ImportType `json:"import_type" gorm:"not null;size:20"`

	// Job status
	Status          ImportJobStatus `json:"status" gorm:"not null;default:pending;index;size:20"`
	ProgressPercent int             `json:"progress_percent" gorm:"not null;default:0"` // 0-100, never decreases

	// Processing info
	TotalRows     int `json:"total_rows" gorm:"not null;default:0"`
	ValidatedRows int `json:"validated_rows" gorm:"not null;default:0"`
	ProcessedRows int `json:"processed_rows" gorm:"not null;default:0"`
	SuccessCount  int `json:"success_count" gorm:"not null;default:0"`
	ErrorCount    int `json:"error_count" gorm:"not null;default:0"`
	SkippedCount  int `json:"skipped_count" gorm:"not null;default:0"`

	ErrorMessage *string `json:"error_message,omitempty" gorm:"type:text"`

	// Results
	StagedResult  datatypes.JSON `json:"-" gorm:"type:jsonb"`                              // StagedImport
	CommitSummary datatypes.JSON `json:"commit_summary,omitempty" gorm:"type:jsonb"` // CommitSummary

	// Timestamps
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (ImportJob) TableName() string {
	return "import_jobs"
}

// Progress splits the bar in two halves: validation fills 0-50, commit fills 50-100.
func Progress(status ImportJobStatus, totalRows, validatedRows, processedRows int) int {
	switch status {
	case ImportPending:
		return 0
	case ImportValidating:
		return ratio(validatedRows, totalRows, 50)
	case ImportValidated:
		return 50
	case ImportProcessing:
		return 50 + ratio(processedRows, totalRows, 50)
	case ImportCompleted:
		return 100
	}
	// failed and cancelled keep the last reached value
	return -1
}

func ratio(done, total, span int) int {
	if total <= 0 {
		return 0
	}
	if done > total {
		done = total
	}
	return done * span / total
}
