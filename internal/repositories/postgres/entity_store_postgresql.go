package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/property-import-service/internal/models"
	"github.com/SAP-F-2025/property-import-service/internal/repositories"
)

type EntityStorePostgreSQL struct {
	db *gorm.DB
}

func NewEntityStorePostgreSQL(db *gorm.DB) repositories.EntityStore {
	return &EntityStorePostgreSQL{db: db}
}

func (s *EntityStorePostgreSQL) WithinTransaction(ctx context.Context, fn func(tx repositories.EntityTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&entityTx{tx: tx})
	})
}

type entityTx struct {
	tx        *gorm.DB
	savepoint int
}

func (t *entityTx) FindIDByNaturalKey(ctx context.Context, entity models.EntityType, organizationID, naturalKey string) (uint, bool, error) {
	model, ok := models.NewRecord(entity)
	if !ok {
		return 0, false, fmt.Errorf("unknown entity type %q", entity)
	}

	var ids []uint
	err := t.tx.WithContext(ctx).
		Model(model).
		Where("organization_id = ? AND natural_key = ?", organizationID, naturalKey).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up %s %q: %w", entity, naturalKey, err)
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}

// Create runs inside a savepoint so a unique violation only undoes this row.
func (t *entityTx) Create(ctx context.Context, record models.Record) error {
	t.savepoint++
	name := fmt.Sprintf("import_row_%d", t.savepoint)
	db := t.tx.WithContext(ctx)

	if err := db.SavePoint(name).Error; err != nil {
		return fmt.Errorf("failed to open savepoint: %w", err)
	}
	err := db.Create(record).Error
	if err == nil {
		return nil
	}
	if rbErr := db.RollbackTo(name).Error; rbErr != nil {
		return fmt.Errorf("failed to roll back to savepoint after %v: %w", err, rbErr)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return repositories.ErrDuplicateKey
	}
	return fmt.Errorf("failed to create %s: %w", record.Entity(), err)
}
