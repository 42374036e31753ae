package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/property-import-service/internal/importer"
	"github.com/SAP-F-2025/property-import-service/internal/models"
	"github.com/SAP-F-2025/property-import-service/internal/repositories"
)

const defaultMaxCommitIssues = 50

// CommitEngine writes a validated import to the tenant store, one transaction per entity type.
type CommitEngine struct {
	store     repositories.EntityStore
	schema    *importer.Schema
	logger    *slog.Logger
	maxIssues int
}

func NewCommitEngine(store repositories.EntityStore, schema *importer.Schema, logger *slog.Logger, maxIssues int) *CommitEngine {
	if schema == nil {
		schema = importer.DefaultSchema()
	}
	if maxIssues <= 0 {
		maxIssues = defaultMaxCommitIssues
	}
	return &CommitEngine{store: store, schema: schema, logger: logger, maxIssues: maxIssues}
}

// CommitRequest identifies whose data is being written.
type CommitRequest struct {
	OrganizationID string
	JobID          string
	Staged         *models.StagedImport
}

// Commit walks EntityOrder. A hard failure rolls back the current entity type and stops;
// earlier entity types stay committed. progress receives the running count of rows visited.
func (e *CommitEngine) Commit(ctx context.Context, req CommitRequest, progress func(processed int)) *models.ImportSummary {
	start := time.Now()
	summary := &models.ImportSummary{}
	byEntity := make(map[models.EntityType][]*models.StagedEntity)
	for _, s := range req.Staged.Entities {
		byEntity[s.Entity] = append(byEntity[s.Entity], s)
	}

	processed := 0
	for _, entity := range models.EntityOrder {
		rows := byEntity[entity]
		if len(rows) == 0 {
			continue
		}

		outcome, err := e.commitEntity(ctx, req, entity, rows, func() {
			processed++
			if progress != nil {
				progress(processed)
			}
		})
		if err != nil {
			outcome.RolledBack = true
			outcome.Error = err.Error()
			outcome.Failed += outcome.Created
			outcome.Created = 0
			outcome.Issues = append([]models.Issue{{
				Code:    models.IssueRolledBack,
				Message: fmt.Sprintf("%s rows were rolled back: %v", entity, err),
			}}, outcome.Issues...)
			summary.Entities = append(summary.Entities, *outcome)
			summary.FailedEntity = string(entity)

			e.logger.ErrorContext(ctx, "Entity commit rolled back",
				"job_id", req.JobID,
				"entity", entity,
				"error", err)
			break
		}

		summary.Entities = append(summary.Entities, *outcome)
		e.logger.InfoContext(ctx, "Entity committed",
			"job_id", req.JobID,
			"entity", entity,
			"created", outcome.Created,
			"skipped", outcome.Skipped,
			"failed", outcome.Failed)
	}

	summary.DurationMs = time.Since(start).Milliseconds()
	return summary
}

func (e *CommitEngine) commitEntity(ctx context.Context, req CommitRequest, entity models.EntityType, rows []*models.StagedEntity, visited func()) (*models.EntityCommitOutcome, error) {
	outcome := &models.EntityCommitOutcome{Entity: entity, Attempted: len(rows)}
	schema := e.schema.Entity(entity)
	if schema == nil {
		return outcome, fmt.Errorf("no schema for entity type %s", entity)
	}

	err := e.store.WithinTransaction(ctx, func(tx repositories.EntityTx) error {
		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := e.commitRow(ctx, tx, req, schema, row, outcome)
			visited()
			if err != nil {
				return err
			}
		}
		return nil
	})
	return outcome, err
}

// commitRow returns an error only for failures that must abort the entity type.
func (e *CommitEngine) commitRow(ctx context.Context, tx repositories.EntityTx, req CommitRequest, schema *importer.EntitySchema, row *models.StagedEntity, outcome *models.EntityCommitOutcome) error {
	if row.Superseded {
		outcome.Skipped++
		return nil
	}
	if row.Invalid {
		outcome.Failed++
		e.addIssue(outcome, row, "", models.IssueInvalidFormat, "row has validation errors and was not imported")
		return nil
	}

	_, exists, err := tx.FindIDByNaturalKey(ctx, row.Entity, req.OrganizationID, row.NaturalKey)
	if err != nil {
		return err
	}
	if exists {
		outcome.Skipped++
		e.addIssue(outcome, row, "", models.IssueAlreadyExists,
			fmt.Sprintf("%s already exists and was left unchanged", row.Entity))
		return nil
	}

	refs := make(map[string]uint, len(row.Refs))
	for _, field := range schema.Fields {
		targetKey, ok := row.Refs[field.Name]
		if !ok || field.Ref == "" {
			continue
		}
		id, found, err := tx.FindIDByNaturalKey(ctx, field.Ref, req.OrganizationID, targetKey)
		if err != nil {
			return err
		}
		if found {
			refs[field.Name] = id
			continue
		}
		if field.Required {
			outcome.Failed++
			e.addIssue(outcome, row, field.Name, models.IssueReferenceNotLanded,
				fmt.Sprintf("%s %q was not imported", field.Ref, targetKey))
			return nil
		}
		e.addIssue(outcome, row, field.Name, models.IssueReferenceNotLanded,
			fmt.Sprintf("%s %q was not imported; the reference was left empty", field.Ref, targetKey))
	}

	jobID := req.JobID
	record, err := buildRecord(row, refs, models.Provenance{
		OrganizationID: req.OrganizationID,
		NaturalKey:     row.NaturalKey,
		ImportJobID:    &jobID,
		SourceRow:      row.Row,
	})
	if err != nil {
		outcome.Failed++
		e.addIssue(outcome, row, "", models.IssueInvalidFormat, err.Error())
		return nil
	}

	err = tx.Create(ctx, record)
	switch {
	case err == nil:
		outcome.Created++
		return nil
	case errors.Is(err, repositories.ErrDuplicateKey):
		outcome.Failed++
		e.addIssue(outcome, row, "", models.IssueConflict,
			fmt.Sprintf("%s was created by another import after validation", row.Entity))
		return nil
	}
	return err
}

func (e *CommitEngine) addIssue(outcome *models.EntityCommitOutcome, row *models.StagedEntity, field, code, message string) {
	if len(outcome.Issues) >= e.maxIssues {
		outcome.OmittedIssues++
		return
	}
	outcome.Issues = append(outcome.Issues, models.Issue{
		Row:     row.Row,
		Sheet:   row.Sheet,
		Field:   field,
		Code:    code,
		Message: message,
	})
}
