package repositories

import (
	"context"
	"errors"

	"github.com/SAP-F-2025/property-import-service/internal/models"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("duplicate natural key")
)

// ===== SHARED FILTER STRUCTS =====

type ImportJobFilters struct {
	OrganizationID string                  `json:"organization_id"`
	Status         *models.ImportJobStatus `json:"status"`
	ImportType     *models.ImportType      `json:"import_type"`
	Limit          int                     `json:"limit"`
	Offset         int                     `json:"offset"`
	SortBy         string                  `json:"sort_by"`    // "created_at", "updated_at", "file_name"
	SortOrder      string                  `json:"sort_order"` // "asc", "desc"
}

// ===== REPOSITORY INTERFACES =====

// ImportJobRepository stores jobs. Status only moves through Transition so concurrent writers
// (a cancel racing a worker) cannot both win.
type ImportJobRepository interface {
	Create(ctx context.Context, job *models.ImportJob) error
	GetByID(ctx context.Context, organizationID, id string) (*models.ImportJob, error)
	List(ctx context.Context, filters ImportJobFilters) ([]*models.ImportJob, int64, error)

	// Transition moves the job to `to` only if its current status is one of `from`.
	// It reports whether the row was changed.
	Transition(ctx context.Context, id string, from []models.ImportJobStatus, to models.ImportJobStatus, update JobUpdate) (bool, error)

	// UpdateProgress writes counters while the job is still in status. Progress never decreases.
	UpdateProgress(ctx context.Context, id string, status models.ImportJobStatus, update JobUpdate) (bool, error)
}

// EntityStore is the tenant store the commit engine writes to.
type EntityStore interface {
	// WithinTransaction commits when fn returns nil and rolls back otherwise.
	WithinTransaction(ctx context.Context, fn func(tx EntityTx) error) error
}

type EntityTx interface {
	FindIDByNaturalKey(ctx context.Context, entity models.EntityType, organizationID, naturalKey string) (uint, bool, error)

	// Create inserts record and assigns its ID. A natural key already present for the
	// organization returns ErrDuplicateKey and leaves the transaction usable.
	Create(ctx context.Context, record models.Record) error
}
