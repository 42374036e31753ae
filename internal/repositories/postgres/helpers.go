package postgres

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/property-import-service/internal/repositories"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var jobSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"file_name":  "file_name",
	"status":     "status",
}

// applyPaginationAndSort whitelists the sort column and clamps the page size.
func applyPaginationAndSort(query *gorm.DB, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	column, ok := jobSortColumns[sortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if sortOrder == "asc" {
		direction = "ASC"
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return query.Order(fmt.Sprintf("%s %s, id %s", column, direction, direction)).Limit(limit).Offset(offset)
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repositories.ErrNotFound
	}
	return err
}
