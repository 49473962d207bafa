package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/example/formflow/internal/models"
)

// ActivityRepository stores activity log rows.
type ActivityRepository struct {
	db *gorm.DB
}

// NewActivityRepository constructs a repository using the provided gorm DB.
func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create persists the activity record.
func (r *ActivityRepository) Create(ctx context.Context, log *models.ActivityLog) error {
	return errors.WithStack(r.db.WithContext(ctx).Create(log).Error)
}

// ListByResource returns the newest records of one resource.
func (r *ActivityRepository) ListByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	var logs []models.ActivityLog
	err := r.db.WithContext(ctx).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("occurred_at desc").
		Limit(limit).
		Find(&logs).Error
	return logs, errors.WithStack(err)
}
