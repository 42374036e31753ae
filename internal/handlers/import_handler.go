package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/property-import-service/internal/importer"
	"github.com/SAP-F-2025/property-import-service/internal/models"
	"github.com/SAP-F-2025/property-import-service/internal/repositories"
	"github.com/SAP-F-2025/property-import-service/internal/services"
	"github.com/SAP-F-2025/property-import-service/internal/utils"
	"github.com/SAP-F-2025/property-import-service/internal/validator"
)

const templatesPath = "/api/v1/imports/templates"

type ImportHandler struct {
	BaseHandler
	importService  services.ImportService
	validator      *validator.Validator
	maxUploadBytes int64
}

func NewImportHandler(
	importService services.ImportService,
	validator *validator.Validator,
	maxUploadBytes int64,
	logger utils.Logger,
) *ImportHandler {
	return &ImportHandler{
		BaseHandler:    NewBaseHandler(logger),
		importService:  importService,
		validator:      validator,
		maxUploadBytes: maxUploadBytes,
	}
}

// ListJobsQuery is the query string accepted by ListJobs.
type ListJobsQuery struct {
	Status     string `form:"status" validate:"omitempty,job_status"`
	ImportType string `form:"import_type" validate:"omitempty,import_type"`
	Limit      int    `form:"limit" validate:"omitempty,min=1,max=100"`
	Offset     int    `form:"offset" validate:"omitempty,min=0"`
	SortBy     string `form:"sort_by" validate:"omitempty,oneof=created_at updated_at status file_name"`
	SortOrder  string `form:"sort_order" validate:"omitempty,oneof=asc desc"`
}

// UploadFile accepts a multipart upload and starts validation.
// @Summary Upload an import file
// @Tags imports
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV or Excel file"
// @Param import_type formData string true "landlord, property, unit, tenant, lease or combined"
// @Success 201 {object} services.JobDetail "validated inline"
// @Success 202 {object} services.JobDetail "queued for background validation"
// @Failure 400 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Router /imports/upload [post]
func (h *ImportHandler) UploadFile(c *gin.Context) {
	org := OrganizationID(c)
	if org == "" {
		return
	}

	if h.maxUploadBytes > 0 {
		// multipart framing needs headroom above the file itself
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			h.RespondWithError(c, http.StatusRequestEntityTooLarge, CodeFileTooLarge,
				fmt.Sprintf("File exceeds the %d byte upload limit", h.maxUploadBytes), err)
			return
		}
		h.RespondWithError(c, http.StatusBadRequest, CodeValidation, "A file is required in the 'file' form field", err)
		return
	}
	if h.maxUploadBytes > 0 && fileHeader.Size > h.maxUploadBytes {
		h.RespondWithError(c, http.StatusRequestEntityTooLarge, CodeFileTooLarge,
			fmt.Sprintf("File exceeds the %d byte upload limit", h.maxUploadBytes), nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.RespondWithError(c, http.StatusBadRequest, CodeValidation, "Uploaded file could not be read", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.RespondWithError(c, http.StatusBadRequest, CodeValidation, "Uploaded file could not be read", err)
		return
	}

	detail, err := h.importService.Upload(c.Request.Context(), services.UploadRequest{
		OrganizationID: org,
		ImportType:     models.ImportType(strings.ToLower(strings.TrimSpace(c.PostForm("import_type")))),
		FileName:       fileHeader.Filename,
		Data:           data,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if detail.Job.Status == models.ImportPending || detail.Job.Status == models.ImportValidating {
		status = http.StatusAccepted
	}
	h.LogInfo(c, "Import uploaded", "job_id", detail.Job.ID, "status", detail.Job.Status, "file_size", len(data))
	c.JSON(status, detail)
}

// GetJob returns a job with its validation result and commit summary.
// @Summary Get import job
// @Tags imports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} services.JobDetail
// @Failure 404 {object} ErrorResponse
// @Router /imports/jobs/{id} [get]
func (h *ImportHandler) GetJob(c *gin.Context) {
	org := OrganizationID(c)
	if org == "" {
		return
	}
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}

	detail, err := h.importService.GetJob(c.Request.Context(), org, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// ListJobs lists the organization's jobs, newest first by default.
// @Summary List import jobs
// @Tags imports
// @Produce json
// @Param status query string false "Job status"
// @Param import_type query string false "Import type"
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} ListResponse
// @Router /imports/jobs [get]
func (h *ImportHandler) ListJobs(c *gin.Context) {
	org := OrganizationID(c)
	if org == "" {
		return
	}

	var query ListJobsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, CodeValidation, "Invalid query parameters", err, err.Error())
		return
	}
	if err := h.validator.Validate(&query); err != nil {
		h.handleServiceError(c, err)
		return
	}
	if query.Limit == 0 {
		query.Limit = 20
	}

	filters := repositories.ImportJobFilters{
		OrganizationID: org,
		Limit:          query.Limit,
		Offset:         query.Offset,
		SortBy:         query.SortBy,
		SortOrder:      query.SortOrder,
	}
	if query.Status != "" {
		status := models.ImportJobStatus(query.Status)
		filters.Status = &status
	}
	if query.ImportType != "" {
		importType := models.ImportType(query.ImportType)
		filters.ImportType = &importType
	}

	jobs, total, err := h.importService.ListJobs(c.Request.Context(), filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: jobs, Total: total, Limit: query.Limit, Offset: query.Offset})
}

// ConfirmJob starts the commit of a validated job.
// @Summary Confirm import job
// @Tags imports
// @Produce json
// @Param id path string true "Job ID"
// @Success 202 {object} services.JobDetail
// @Failure 409 {object} ErrorResponse
// @Router /imports/jobs/{id}/confirm [post]
func (h *ImportHandler) ConfirmJob(c *gin.Context) {
	h.transition(c, "Import confirmed", http.StatusAccepted, h.importService.Confirm)
}

// CancelJob discards a job that has not started committing.
// @Summary Cancel import job
// @Tags imports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} services.JobDetail
// @Failure 409 {object} ErrorResponse
// @Router /imports/jobs/{id}/cancel [post]
func (h *ImportHandler) CancelJob(c *gin.Context) {
	h.transition(c, "Import cancelled", http.StatusOK, h.importService.Cancel)
}

func (h *ImportHandler) transition(c *gin.Context, message string, status int,
	action func(ctx context.Context, organizationID, jobID string) (*services.JobDetail, error)) {
	org := OrganizationID(c)
	if org == "" {
		return
	}
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}

	detail, err := action(c.Request.Context(), org, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.LogInfo(c, message, "job_id", id, "status", detail.Job.Status)
	c.JSON(status, detail)
}

// ListTemplates describes the downloadable templates.
// @Summary List import templates
// @Tags imports
// @Produce json
// @Success 200 {array} importer.TemplateInfo
// @Router /imports/templates [get]
func (h *ImportHandler) ListTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, h.importService.Templates(templatesPath))
}

// DownloadTemplate streams a template workbook or CSV.
// @Summary Download import template
// @Tags imports
// @Produce application/octet-stream
// @Param type path string true "Import type"
// @Param format query string false "xlsx or csv" default(xlsx)
// @Success 200 {file} file
// @Failure 404 {object} ErrorResponse
// @Router /imports/templates/{type}/download [get]
func (h *ImportHandler) DownloadTemplate(c *gin.Context) {
	importType := ParseStringIDParam(c, "type")
	if importType == "" {
		return
	}
	format := strings.ToLower(c.DefaultQuery("format", importer.FormatXLSX))
	if err := h.validator.Var(format, "template_format"); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, CodeUnsupportedFormat, "format must be xlsx or csv", err)
		return
	}

	data, filename, err := h.importService.TemplateFile(importType, format)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	contentType := "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	if format == importer.FormatCSV {
		contentType = "text/csv; charset=utf-8"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}

func (h *ImportHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		h.RespondWithError(c, http.StatusBadRequest, CodeValidation, "Validation failed", err, validationErrors)
		return
	}
	var validationError *services.ValidationError
	if errors.As(err, &validationError) {
		h.RespondWithError(c, http.StatusBadRequest, CodeValidation, "Validation failed", err, validationError)
		return
	}

	var transitionError *services.TransitionError
	if errors.As(err, &transitionError) {
		h.RespondWithError(c, http.StatusConflict, CodeInvalidTransition, transitionError.Error(), err,
			map[string]interface{}{"status": transitionError.From, "action": transitionError.Action})
		return
	}

	switch {
	case errors.Is(err, services.ErrMissingOrganization):
		h.RespondWithError(c, http.StatusBadRequest, CodeMissingOrg, "Organization is required", err)
	case errors.Is(err, services.ErrImportJobNotFound):
		h.RespondWithError(c, http.StatusNotFound, CodeNotFound, "Import job not found", err)
	case errors.Is(err, services.ErrUnknownTemplate):
		h.RespondWithError(c, http.StatusNotFound, CodeNotFound, "Unknown import type", err)
	case errors.Is(err, services.ErrImportHasErrors):
		var rule *services.BusinessRuleError
		if errors.As(err, &rule) {
			h.RespondWithError(c, http.StatusConflict, CodeHasErrors, rule.Message, err, rule.Context)
			return
		}
		h.RespondWithError(c, http.StatusConflict, CodeHasErrors, "Import has validation errors and cannot be confirmed", err)
	case services.IsConflict(err):
		h.RespondWithError(c, http.StatusConflict, CodeInvalidTransition, err.Error(), err)
	case errors.Is(err, services.ErrUnsupportedFormat):
		h.RespondWithError(c, http.StatusBadRequest, CodeUnsupportedFormat, err.Error(), err)
	case errors.Is(err, services.ErrFileTooLarge):
		h.RespondWithError(c, http.StatusRequestEntityTooLarge, CodeFileTooLarge, err.Error(), err)
	default:
		h.RespondWithError(c, http.StatusInternalServerError, CodeInternal, "Internal server error", err)
	}
}
