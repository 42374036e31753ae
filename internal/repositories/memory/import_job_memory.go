package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/datatypes"

	"github.com/SAP-F-2025/property-import-service/internal/models"
	"github.com/SAP-F-2025/property-import-service/internal/repositories"
)

// ImportJobMemory keeps jobs in a map. Every read returns a copy.
type ImportJobMemory struct {
	mu   sync.RWMutex
	jobs map[string]*models.ImportJob
	now  func() time.Time
}

func NewImportJobMemory() *ImportJobMemory {
	return &ImportJobMemory{
		jobs: make(map[string]*models.ImportJob),
		now:  time.Now,
	}
}

func (r *ImportJobMemory) Create(ctx context.Context, job *models.ImportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; exists {
		return fmt.Errorf("import job %s already exists", job.ID)
	}
	now := r.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *ImportJobMemory) GetByID(ctx context.Context, organizationID, id string) (*models.ImportJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok || job.OrganizationID != organizationID {
		return nil, repositories.ErrNotFound
	}
	return cloneJob(job), nil
}

func (r *ImportJobMemory) List(ctx context.Context, filters repositories.ImportJobFilters) ([]*models.ImportJob, int64, error) {
	r.mu.RLock()
	var matched []*models.ImportJob
	for _, job := range r.jobs {
		if job.OrganizationID != filters.OrganizationID {
			continue
		}
		if filters.Status != nil && job.Status != *filters.Status {
			continue
		}
		if filters.ImportType != nil && job.ImportType != *filters.ImportType {
			continue
		}
		c := cloneJob(job)
		c.StagedResult = nil
		matched = append(matched, c)
	}
	r.mu.RUnlock()

	sortJobs(matched, filters.SortBy, filters.SortOrder == "asc")

	total := int64(len(matched))
	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	start := filters.Offset
	if start < 0 {
		start = 0
	}
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *ImportJobMemory) Transition(ctx context.Context, id string, from []models.ImportJobStatus, to models.ImportJobStatus, update repositories.JobUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, s := range from {
		if job.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	update.Apply(job)
	job.Status = to
	job.UpdatedAt = r.now()
	return true, nil
}

func (r *ImportJobMemory) UpdateProgress(ctx context.Context, id string, status models.ImportJobStatus, update repositories.JobUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.Status != status {
		return false, nil
	}
	update.Apply(job)
	job.UpdatedAt = r.now()
	return true, nil
}

func sortJobs(jobs []*models.ImportJob, sortBy string, asc bool) {
	less := func(a, b *models.ImportJob) int {
		switch sortBy {
		case "updated_at":
			return a.UpdatedAt.Compare(b.UpdatedAt)
		case "file_name":
			return strings.Compare(a.FileName, b.FileName)
		case "status":
			return strings.Compare(string(a.Status), string(b.Status))
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		c := less(jobs[i], jobs[j])
		if c == 0 {
			c = strings.Compare(jobs[i].ID, jobs[j].ID)
		}
		if asc {
			return c < 0
		}
		return c > 0
	})
}

func cloneJob(job *models.ImportJob) *models.ImportJob {
	c := *job
	if job.ErrorMessage != nil {
		msg := *job.ErrorMessage
		c.ErrorMessage = &msg
	}
	if job.StagedResult != nil {
		c.StagedResult = append(datatypes.JSON(nil), job.StagedResult...)
	}
	if job.CommitSummary != nil {
		c.CommitSummary = append(datatypes.JSON(nil), job.CommitSummary...)
	}
	return &c
}
