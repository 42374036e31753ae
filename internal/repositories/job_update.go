package repositories

import (
	"time"

	"gorm.io/datatypes"

	"github.com/SAP-F-2025/property-import-service/internal/models"
)

// JobUpdate lists the job columns to write alongside a status change. Nil fields are left alone.
type JobUpdate struct {
	ProgressPercent *int
	TotalRows       *int
	ValidatedRows   *int
	ProcessedRows   *int
	SuccessCount    *int
	ErrorCount      *int
	SkippedCount    *int
	ErrorMessage    *string
	StagedResult    datatypes.JSON
	ClearStaged     bool
	CommitSummary   datatypes.JSON
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

func IntPtr(v int) *int { return &v }

// Columns maps the update onto column names for gorm Updates.
func (u JobUpdate) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	setInt := func(name string, v *int) {
		if v != nil {
			cols[name] = *v
		}
	}
	setInt("progress_percent", u.ProgressPercent)
	setInt("total_rows", u.TotalRows)
	setInt("validated_rows", u.ValidatedRows)
	setInt("processed_rows", u.ProcessedRows)
	setInt("success_count", u.SuccessCount)
	setInt("error_count", u.ErrorCount)
	setInt("skipped_count", u.SkippedCount)
	if u.ErrorMessage != nil {
		cols["error_message"] = *u.ErrorMessage
	}
	if u.ClearStaged {
		cols["staged_result"] = nil
	} else if u.StagedResult != nil {
		cols["staged_result"] = u.StagedResult
	}
	if u.CommitSummary != nil {
		cols["commit_summary"] = u.CommitSummary
	}
	if u.StartedAt != nil {
		cols["started_at"] = *u.StartedAt
	}
	if u.CompletedAt != nil {
		cols["completed_at"] = *u.CompletedAt
	}
	return cols
}

// Apply writes the update onto an in-memory job.
func (u JobUpdate) Apply(job *models.ImportJob) {
	apply := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	if u.ProgressPercent != nil && *u.ProgressPercent > job.ProgressPercent {
		job.ProgressPercent = *u.ProgressPercent
	}
	apply(&job.TotalRows, u.TotalRows)
	apply(&job.ValidatedRows, u.ValidatedRows)
	apply(&job.ProcessedRows, u.ProcessedRows)
	apply(&job.SuccessCount, u.SuccessCount)
	apply(&job.ErrorCount, u.ErrorCount)
	apply(&job.SkippedCount, u.SkippedCount)
	if u.ErrorMessage != nil {
		msg := *u.ErrorMessage
		job.ErrorMessage = &msg
	}
	if u.ClearStaged {
		job.StagedResult = nil
	} else if u.StagedResult != nil {
		job.StagedResult = append(datatypes.JSON(nil), u.StagedResult...)
	}
	if u.CommitSummary != nil {
		job.CommitSummary = append(datatypes.JSON(nil), u.CommitSummary...)
	}
	if u.StartedAt != nil {
		t := *u.StartedAt
		job.StartedAt = &t
	}
	if u.CompletedAt != nil {
		t := *u.CompletedAt
		job.CompletedAt = &t
	}
}
