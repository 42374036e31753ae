package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/SAP-F-2025/property-import-service/internal/cache"
	"github.com/SAP-F-2025/property-import-service/internal/config"
	"github.com/SAP-F-2025/property-import-service/internal/events"
	"github.com/SAP-F-2025/property-import-service/internal/importer"
	"github.com/SAP-F-2025/property-import-service/internal/jobs"
	"github.com/SAP-F-2025/property-import-service/internal/metrics"
	"github.com/SAP-F-2025/property-import-service/internal/models"
	"github.com/SAP-F-2025/property-import-service/internal/repositories"
	"github.com/SAP-F-2025/property-import-service/internal/validator"
)

// ImportService is the job orchestrator. It is the only writer of job status.
type ImportService interface {
	Upload(ctx context.Context, req UploadRequest) (*JobDetail, error)
	Confirm(ctx context.Context, organizationID, jobID string) (*JobDetail, error)
	Cancel(ctx context.Context, organizationID, jobID string) (*JobDetail, error)
	GetJob(ctx context.Context, organizationID, jobID string) (*JobDetail, error)
	ListJobs(ctx context.Context, filters repositories.ImportJobFilters) ([]*models.ImportJob, int64, error)

	Templates(downloadBase string) []importer.TemplateInfo
	TemplateFile(importType, format string) ([]byte, string, error)

	// Background entry points, registered with the job runner.
	RunValidation(ctx context.Context, task jobs.Task) error
	RunCommit(ctx context.Context, task jobs.Task) error
}

// Dispatcher hands work to the background job runner.
type Dispatcher interface {
	Dispatch(ctx context.Context, topic string, task jobs.Task) error
}

type UploadRequest struct {
	OrganizationID string            `json:"organization_id" validate:"required,max=64"`
	ImportType     models.ImportType `json:"import_type" validate:"required,import_type"`
	FileName       string            `json:"file_name" validate:"required,max=255"`
	Data           []byte            `json:"-"`
}

// JobDetail is what clients poll: the job plus its review surface and commit accounting.
type JobDetail struct {
	Job        *models.ImportJob        `json:"job"`
	Validation *models.ValidationResult `json:"validation,omitempty"`
	Summary    *models.ImportSummary    `json:"commit_summary,omitempty"`
}

type importService struct {
	jobs       repositories.ImportJobRepository
	engine     *CommitEngine
	pipeline   *importer.Pipeline
	dispatcher Dispatcher
	publisher  events.EventPublisher
	cache      cache.CacheService
	validator  *validator.Validator
	cfg        config.ImportConfig
	logger     *ServiceLogger

	uploadsMu sync.Mutex
	uploads   map[string][]byte // files waiting for background validation
}

type ImportServiceDeps struct {
	Jobs       repositories.ImportJobRepository
	Store      repositories.EntityStore
	Schema     *importer.Schema // nil selects the default schema
	Dispatcher Dispatcher
	Publisher  events.EventPublisher
	Cache      cache.CacheService
	Validator  *validator.Validator
	Config     config.ImportConfig
	Logger     *slog.Logger
}

func NewImportService(deps ImportServiceDeps) ImportService {
	pipeline := importer.NewPipeline(deps.Schema, deps.Config.PipelineOptions())
	if deps.Cache == nil {
		deps.Cache = cache.NewNoopCache()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	return &importService{
		jobs:       deps.Jobs,
		engine:     NewCommitEngine(deps.Store, pipeline.Schema(), deps.Logger, deps.Config.MaxIssuesPerEntity),
		pipeline:   pipeline,
		dispatcher: deps.Dispatcher,
		publisher:  deps.Publisher,
		cache:      deps.Cache,
		validator:  deps.Validator,
		cfg:        deps.Config,
		logger:     NewServiceLogger(deps.Logger, "property-import-service", "import"),
		uploads:    make(map[string][]byte),
	}
}

// ===== CLIENT OPERATIONS =====

// Upload creates the job and validates small files inline. Larger files are validated by the
// job runner and the pending job is returned immediately.
func (s *importService) Upload(ctx context.Context, req UploadRequest) (detail *JobDetail, err error) {
	op := s.logger.WithOperation(ctx, "upload", req.OrganizationID)
	jobID := ""
	defer func() { op.LogResult(jobID, err) }()

	if err := s.validator.Validate(&req); err != nil {
		return nil, err
	}

	job := &models.ImportJob{
		ID:             uuid.NewString(),
		OrganizationID: req.OrganizationID,
		FileName:       req.FileName,
		FileSize:       int64(len(req.Data)),
		ImportType:     req.ImportType,
		Status:         models.ImportPending,
	}
	jobID = job.ID
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	if int64(len(req.Data)) <= s.cfg.SyncMaxBytes {
		if err := s.validate(ctx, job, req.Data); err != nil {
			return nil, err
		}
		return s.loadDetail(ctx, job.OrganizationID, job.ID)
	}

	s.uploadsMu.Lock()
	s.uploads[job.ID] = req.Data
	s.uploadsMu.Unlock()

	task := jobs.Task{JobID: job.ID, OrganizationID: job.OrganizationID}
	if err := s.dispatcher.Dispatch(ctx, jobs.TopicValidate, task); err != nil {
		s.takeUpload(job.ID)
		s.fail(ctx, job, []models.ImportJobStatus{models.ImportPending}, fmt.Sprintf("could not schedule validation: %v", err), repositories.JobUpdate{})
		return nil, err
	}
	return s.loadDetail(ctx, job.OrganizationID, job.ID)
}

// Confirm moves a validated job to processing and schedules the commit.
func (s *importService) Confirm(ctx context.Context, organizationID, jobID string) (detail *JobDetail, err error) {
	op := s.logger.WithOperation(ctx, "confirm", organizationID)
	defer func() { op.LogResult(jobID, err) }()

	current, err := s.loadDetail(ctx, organizationID, jobID)
	if err != nil {
		return nil, err
	}
	job := current.Job
	if job.Status != models.ImportValidated {
		return nil, &TransitionError{JobID: jobID, From: string(job.Status), Action: "confirm"}
	}
	if current.Validation == nil {
		return nil, ErrImportNotValidated
	}
	if !current.Validation.CanImport {
		return nil, NewBusinessRuleError("can_import",
			fmt.Sprintf("%d validation errors must be fixed before the import can be confirmed", current.Validation.ErrorCount),
			map[string]interface{}{
				"error_count":   current.Validation.ErrorCount,
				"warning_count": current.Validation.WarningCount,
			}, ErrImportHasErrors)
	}

	now := time.Now()
	applied, err := s.transition(ctx, job, []models.ImportJobStatus{models.ImportValidated}, models.ImportProcessing, repositories.JobUpdate{
		ProgressPercent: repositories.IntPtr(50),
		ProcessedRows:   repositories.IntPtr(0),
		StartedAt:       &now,
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, s.rejected(ctx, organizationID, jobID, "confirm")
	}

	task := jobs.Task{JobID: jobID, OrganizationID: organizationID}
	if err := s.dispatcher.Dispatch(ctx, jobs.TopicCommit, task); err != nil {
		s.fail(ctx, job, []models.ImportJobStatus{models.ImportProcessing}, fmt.Sprintf("could not schedule commit: %v", err), repositories.JobUpdate{})
		return nil, err
	}
	return s.loadDetail(ctx, organizationID, jobID)
}

// Cancel is accepted from pending, validating and validated. The staged result is discarded.
func (s *importService) Cancel(ctx context.Context, organizationID, jobID string) (detail *JobDetail, err error) {
	op := s.logger.WithOperation(ctx, "cancel", organizationID)
	defer func() { op.LogResult(jobID, err) }()

	job, err := s.getJob(ctx, organizationID, jobID)
	if err != nil {
		return nil, err
	}
	sources := models.SourcesOf(models.ImportCancelled)
	if !job.Status.CanTransitionTo(models.ImportCancelled) {
		return nil, &TransitionError{JobID: jobID, From: string(job.Status), Action: "cancel"}
	}

	now := time.Now()
	applied, err := s.transition(ctx, job, sources, models.ImportCancelled, repositories.JobUpdate{
		ClearStaged: true,
		CompletedAt: &now,
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, s.rejected(ctx, organizationID, jobID, "cancel")
	}
	s.takeUpload(jobID)
	return s.loadDetail(ctx, organizationID, jobID)
}

func (s *importService) GetJob(ctx context.Context, organizationID, jobID string) (*JobDetail, error) {
	var cached JobDetail
	if err := s.cache.Get(ctx, cacheKey(organizationID, jobID), &cached); err == nil && cached.Job != nil {
		return &cached, nil
	}
	detail, err := s.loadDetail(ctx, organizationID, jobID)
	if err != nil {
		return nil, err
	}
	s.storeCache(ctx, detail)
	return detail, nil
}

func (s *importService) ListJobs(ctx context.Context, filters repositories.ImportJobFilters) ([]*models.ImportJob, int64, error) {
	if filters.OrganizationID == "" {
		return nil, 0, ErrMissingOrganization
	}
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, 0, NewValidationError("status", "must be a valid job status", *filters.Status)
	}
	if filters.ImportType != nil && !filters.ImportType.IsValid() {
		return nil, 0, NewValidationError("import_type", "must be a valid import type", *filters.ImportType)
	}
	return s.jobs.List(ctx, filters)
}

func (s *importService) Templates(downloadBase string) []importer.TemplateInfo {
	return s.pipeline.Schema().Templates(downloadBase)
}

func (s *importService) TemplateFile(importType, format string) ([]byte, string, error) {
	if format == "" {
		format = importer.FormatXLSX
	}
	return s.pipeline.Schema().BuildTemplate(models.ImportType(importType), format)
}

// ===== BACKGROUND OPERATIONS =====

func (s *importService) RunValidation(ctx context.Context, task jobs.Task) error {
	job, err := s.getJob(ctx, task.OrganizationID, task.JobID)
	if err != nil {
		return err
	}
	data, ok := s.takeUpload(task.JobID)
	if !ok {
		if job.Status != models.ImportPending {
			return nil
		}
		s.fail(ctx, job, []models.ImportJobStatus{models.ImportPending}, "uploaded file is no longer available", repositories.JobUpdate{})
		return nil
	}
	return s.validate(ctx, job, data)
}

// validate runs parse and the validation pipeline for a pending job.
func (s *importService) validate(ctx context.Context, job *models.ImportJob, data []byte) (err error) {
	done := metrics.TrackPhase("validating")
	defer done()
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			s.logger.LogRecovery(ctx, "validate", job.ID, p, debug.Stack())
			s.fail(ctx, job, []models.ImportJobStatus{models.ImportValidating}, "validation failed unexpectedly", repositories.JobUpdate{})
			err = nil
		}
	}()

	now := time.Now()
	applied, err := s.transition(ctx, job, []models.ImportJobStatus{models.ImportPending}, models.ImportValidating, repositories.JobUpdate{StartedAt: &now})
	if err != nil || !applied {
		return err
	}

	wb, err := importer.Parse(job.FileName, data, s.cfg.MaxUploadBytes)
	if err != nil {
		var fatal *importer.FatalError
		if errors.As(err, &fatal) {
			s.fail(ctx, job, []models.ImportJobStatus{models.ImportValidating}, fatal.Reason, repositories.JobUpdate{})
			metrics.ValidationObserved(job.ImportType, nil, time.Since(start), true)
			return nil
		}
		s.fail(ctx, job, []models.ImportJobStatus{models.ImportValidating}, err.Error(), repositories.JobUpdate{})
		return err
	}

	total := wb.TotalRows()
	s.progress(ctx, job, models.ImportValidating, repositories.JobUpdate{TotalRows: &total})

	staged, err := s.pipeline.Run(ctx, wb, job.ImportType, func(validated int) {
		s.progress(ctx, job, models.ImportValidating, repositories.JobUpdate{
			ValidatedRows:   &validated,
			ProgressPercent: repositories.IntPtr(models.Progress(models.ImportValidating, total, validated, 0)),
		})
	})
	if err != nil {
		s.fail(ctx, job, []models.ImportJobStatus{models.ImportValidating}, fmt.Sprintf("validation aborted: %v", err), repositories.JobUpdate{})
		metrics.ValidationObserved(job.ImportType, nil, time.Since(start), true)
		return nil
	}

	payload, err := json.Marshal(staged)
	if err != nil {
		s.fail(ctx, job, []models.ImportJobStatus{models.ImportValidating}, "could not store validation result", repositories.JobUpdate{})
		return err
	}

	applied, err = s.transition(ctx, job, []models.ImportJobStatus{models.ImportValidating}, models.ImportValidated, repositories.JobUpdate{
		TotalRows:       &total,
		ValidatedRows:   &total,
		ProgressPercent: repositories.IntPtr(50),
		StagedResult:    datatypes.JSON(payload),
	})
	if err != nil {
		return err
	}
	metrics.ValidationObserved(job.ImportType, staged.Result, time.Since(start), false)
	if !applied {
		s.logger.Logger().InfoContext(ctx, "Validation result dropped, job left validating", "job_id", job.ID)
	}
	return nil
}

func (s *importService) RunCommit(ctx context.Context, task jobs.Task) (err error) {
	done := metrics.TrackPhase("processing")
	defer done()

	job, err := s.getJob(ctx, task.OrganizationID, task.JobID)
	if err != nil {
		return err
	}
	if job.Status != models.ImportProcessing {
		s.logger.Logger().WarnContext(ctx, "Commit task for job not in processing", "job_id", job.ID, "status", job.Status)
		return nil
	}

	defer func() {
		if p := recover(); p != nil {
			s.logger.LogRecovery(ctx, "commit", job.ID, p, debug.Stack())
			s.fail(ctx, job, []models.ImportJobStatus{models.ImportProcessing}, "commit failed unexpectedly", repositories.JobUpdate{})
			err = nil
		}
	}()

	var staged models.StagedImport
	if err := json.Unmarshal(job.StagedResult, &staged); err != nil || staged.Result == nil {
		s.fail(ctx, job, []models.ImportJobStatus{models.ImportProcessing}, "stored validation result is unreadable", repositories.JobUpdate{})
		return nil
	}

	if s.cfg.CommitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CommitTimeout)
		defer cancel()
	}

	start := time.Now()
	total := len(staged.Entities)
	summary := s.engine.Commit(ctx, CommitRequest{
		OrganizationID: job.OrganizationID,
		JobID:          job.ID,
		Staged:         &staged,
	}, func(processed int) {
		s.progress(ctx, job, models.ImportProcessing, repositories.JobUpdate{
			ProcessedRows:   &processed,
			ProgressPercent: repositories.IntPtr(models.Progress(models.ImportProcessing, total, processed, 0)),
		})
	})
	metrics.CommitObserved(job.ImportType, summary, time.Since(start))

	// a timed-out commit context must not prevent recording the outcome
	ctx = context.WithoutCancel(ctx)

	created, skipped, failed := summary.Totals()
	processed := 0
	for _, e := range summary.Entities {
		processed += e.Attempted
	}
	payload, _ := json.Marshal(summary)
	completedAt := time.Now()
	update := repositories.JobUpdate{
		ProcessedRows: &processed,
		SuccessCount:  &created,
		SkippedCount:  &skipped,
		ErrorCount:    &failed,
		CommitSummary: datatypes.JSON(payload),
		CompletedAt:   &completedAt,
	}

	if summary.FailedEntity != "" {
		s.fail(ctx, job, []models.ImportJobStatus{models.ImportProcessing}, commitFailureMessage(summary), update)
		return nil
	}

	update.ProgressPercent = repositories.IntPtr(100)
	_, err = s.transition(ctx, job, []models.ImportJobStatus{models.ImportProcessing}, models.ImportCompleted, update)
	return err
}

func commitFailureMessage(summary *models.ImportSummary) string {
	for _, e := range summary.Entities {
		if string(e.Entity) == summary.FailedEntity {
			return fmt.Sprintf("commit of %s failed and its rows were rolled back: %s; entity types committed before %s were kept",
				e.Entity, e.Error, e.Entity)
		}
	}
	return fmt.Sprintf("commit of %s failed", summary.FailedEntity)
}

// ===== STATE HELPERS =====

// transition is the single path through which job status changes.
func (s *importService) transition(ctx context.Context, job *models.ImportJob, from []models.ImportJobStatus, to models.ImportJobStatus, update repositories.JobUpdate) (bool, error) {
	applied, err := s.jobs.Transition(ctx, job.ID, from, to, update)
	if err != nil {
		return false, err
	}
	s.logger.LogTransition(ctx, job.ID, string(job.Status), string(to), applied)
	if !applied {
		return false, nil
	}

	fresh, err := s.jobs.GetByID(ctx, job.OrganizationID, job.ID)
	if err != nil {
		return true, nil
	}
	*job = *fresh
	s.storeCache(ctx, s.detailOf(fresh))

	if eventType, ok := events.EventTypeFor(to); ok {
		if to != models.ImportValidated {
			metrics.JobFinished(job.ImportType, to)
		}
		if s.publisher != nil {
			if err := s.publisher.PublishImportEvent(ctx, events.NewImportEvent(eventType, fresh)); err != nil {
				s.logger.Logger().WarnContext(ctx, "Import event not published", "job_id", job.ID, "error", err)
			}
		}
	}
	return true, nil
}

func (s *importService) fail(ctx context.Context, job *models.ImportJob, from []models.ImportJobStatus, message string, update repositories.JobUpdate) {
	update.ErrorMessage = &message
	// A commit failure keeps the review surface of the rows that were confirmed.
	update.ClearStaged = !slices.Contains(from, models.ImportProcessing)
	if update.CompletedAt == nil {
		now := time.Now()
		update.CompletedAt = &now
	}
	if _, err := s.transition(ctx, job, from, models.ImportFailed, update); err != nil {
		s.logger.Logger().ErrorContext(ctx, "Failed to mark import job failed", "job_id", job.ID, "error", err)
	}
}

func (s *importService) progress(ctx context.Context, job *models.ImportJob, status models.ImportJobStatus, update repositories.JobUpdate) {
	applied, err := s.jobs.UpdateProgress(ctx, job.ID, status, update)
	if err != nil {
		s.logger.Logger().WarnContext(ctx, "Progress update failed", "job_id", job.ID, "error", err)
		return
	}
	if applied {
		_ = s.cache.Delete(ctx, cacheKey(job.OrganizationID, job.ID))
	}
}

// rejected builds the error for a transition that lost a race.
func (s *importService) rejected(ctx context.Context, organizationID, jobID, action string) error {
	job, err := s.getJob(ctx, organizationID, jobID)
	if err != nil {
		return err
	}
	return &TransitionError{JobID: jobID, From: string(job.Status), Action: action}
}

func (s *importService) getJob(ctx context.Context, organizationID, jobID string) (*models.ImportJob, error) {
	if organizationID == "" {
		return nil, ErrMissingOrganization
	}
	job, err := s.jobs.GetByID(ctx, organizationID, jobID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrImportJobNotFound
	}
	return job, err
}

func (s *importService) loadDetail(ctx context.Context, organizationID, jobID string) (*JobDetail, error) {
	job, err := s.getJob(ctx, organizationID, jobID)
	if err != nil {
		return nil, err
	}
	return s.detailOf(job), nil
}

func (s *importService) detailOf(job *models.ImportJob) *JobDetail {
	detail := &JobDetail{Job: job}
	if job.Status.HasStagedResult() && len(job.StagedResult) > 0 {
		var staged models.StagedImport
		if err := json.Unmarshal(job.StagedResult, &staged); err == nil {
			detail.Validation = staged.Result
		}
	}
	if len(job.CommitSummary) > 0 {
		var summary models.ImportSummary
		if err := json.Unmarshal(job.CommitSummary, &summary); err == nil {
			detail.Summary = &summary
		}
	}
	return detail
}

func (s *importService) takeUpload(jobID string) ([]byte, bool) {
	s.uploadsMu.Lock()
	defer s.uploadsMu.Unlock()
	data, ok := s.uploads[jobID]
	delete(s.uploads, jobID)
	return data, ok
}

func cacheKey(organizationID, jobID string) string {
	return fmt.Sprintf("import_job:%s:%s", organizationID, jobID)
}

func (s *importService) storeCache(ctx context.Context, detail *JobDetail) {
	if err := s.cache.Set(ctx, cacheKey(detail.Job.OrganizationID, detail.Job.ID), detail, s.cfg.JobCacheTTL); err != nil {
		s.logger.Logger().DebugContext(ctx, "Job cache write skipped", "job_id", detail.Job.ID, "error", err)
	}
}
