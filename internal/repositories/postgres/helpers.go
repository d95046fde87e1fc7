package postgres

import (
	"strings"

	"gorm.io/gorm"
)

// SharedHelpers carries query fragments used by more than one repository.
type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

// ApplyPaginationAndSort appends ORDER BY, LIMIT and OFFSET to a query.
// sortBy must already be a column name resolved by the caller, never raw
// client input.
func (h *SharedHelpers) ApplyPaginationAndSort(query *gorm.DB, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	if sortBy != "" {
		direction := "ASC"
		if strings.EqualFold(sortOrder, "desc") {
			direction = "DESC"
		}
		query = query.Order(sortBy + " " + direction)
	}

	if limit > 0 {
		query = query.Limit(limit)
	}

	if offset > 0 {
		query = query.Offset(offset)
	}

	return query
}
