package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/property-import-service/internal/models"
	"github.com/SAP-F-2025/property-import-service/internal/repositories"
)

type ImportJobPostgreSQL struct {
	db *gorm.DB
}

func NewImportJobPostgreSQL(db *gorm.DB) repositories.ImportJobRepository {
	return &ImportJobPostgreSQL{db: db}
}

func (r *ImportJobPostgreSQL) Create(ctx context.Context, job *models.ImportJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create import job: %w", err)
	}
	return nil
}

// GetByID is scoped to the organization so one tenant can never read another's job.
func (r *ImportJobPostgreSQL) GetByID(ctx context.Context, organizationID, id string) (*models.ImportJob, error) {
	var job models.ImportJob
	err := r.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, organizationID).
		First(&job).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &job, nil
}

func (r *ImportJobPostgreSQL) List(ctx context.Context, filters repositories.ImportJobFilters) ([]*models.ImportJob, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.ImportJob{}).
		Where("organization_id = ?", filters.OrganizationID)
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.ImportType != nil {
		query = query.Where("import_type = ?", *filters.ImportType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []*models.ImportJob
	err := applyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset).
		Omit("staged_result").
		Find(&jobs).Error
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (r *ImportJobPostgreSQL) Transition(ctx context.Context, id string, from []models.ImportJobStatus, to models.ImportJobStatus, update repositories.JobUpdate) (bool, error) {
	cols := r.columns(update)
	cols["status"] = to

	result := r.db.WithContext(ctx).
		Model(&models.ImportJob{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(cols)
	if result.Error != nil {
		return false, fmt.Errorf("failed to move import job %s to %s: %w", id, to, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *ImportJobPostgreSQL) UpdateProgress(ctx context.Context, id string, status models.ImportJobStatus, update repositories.JobUpdate) (bool, error) {
	cols := r.columns(update)
	if len(cols) == 1 {
		return true, nil
	}

	result := r.db.WithContext(ctx).
		Model(&models.ImportJob{}).
		Where("id = ? AND status = ?", id, status).
		Updates(cols)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update import job %s progress: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *ImportJobPostgreSQL) columns(update repositories.JobUpdate) map[string]interface{} {
	cols := update.Columns()
	if p, ok := cols["progress_percent"]; ok {
		cols["progress_percent"] = gorm.Expr("GREATEST(progress_percent, ?)", p)
	}
	cols["updated_at"] = time.Now()
	return cols
}
