package postgres

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/enrollment-service/internal/models"
)

// SharedHelpers contains common database operations
type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

// ForUpdate adds SELECT ... FOR UPDATE; only meaningful inside a transaction
func (h *SharedHelpers) ForUpdate(query *gorm.DB) *gorm.DB {
	return query.Clauses(clause.Locking{Strength: "UPDATE"})
}

// ApplyEnrollmentFilters applies common filters to enrollment queries
func (h *SharedHelpers) ApplyEnrollmentFilters(query *gorm.DB, status *models.EnrollmentStatus, completed *bool) *gorm.DB {
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if completed != nil {
		query = query.Where("completed = ?", *completed)
	}
	return query
}

var (
	couponSortColumns = map[string]bool{
		"created_at":     true,
		"updated_at":     true,
		"id":             true,
		"code":           true,
		"expires_at":     true,
		"discount_value": true,
	}

	enrollmentSortColumns = map[string]bool{
		"enrolled_at":  true,
		"updated_at":   true,
		"id":           true,
		"course_title": true,
		"progress":     true,
		"status":       true,
	}
)

// ApplyPaginationAndSort applies pagination and sorting to coupon queries with SQL injection protection
func (h *SharedHelpers) ApplyPaginationAndSort(query *gorm.DB, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	return h.applyPaginationAndSort(query, couponSortColumns, "created_at", sortBy, sortOrder, limit, offset)
}

// ApplyEnrollmentPaginationAndSort is ApplyPaginationAndSort for enrollments,
// which carry enrolled_at instead of created_at
func (h *SharedHelpers) ApplyEnrollmentPaginationAndSort(query *gorm.DB, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	return h.applyPaginationAndSort(query, enrollmentSortColumns, "enrolled_at", sortBy, sortOrder, limit, offset)
}

// Columns outside allowed fall back to defaultSort
func (h *SharedHelpers) applyPaginationAndSort(query *gorm.DB, allowed map[string]bool, defaultSort, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	if sortBy == "" || !allowed[sortBy] {
		sortBy = defaultSort
	}

	// Validate and set sort order
	if sortOrder != "asc" && sortOrder != "ASC" {
		sortOrder = "DESC"
	} else {
		sortOrder = "ASC"
	}

	query = query.Order(sortBy + " " + sortOrder)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	return query
}
