package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/formflow/internal/apperr"
	"github.com/example/formflow/internal/models"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// EntryRepository provides persistence access for FormEntry entities.
type EntryRepository struct {
	db *gorm.DB
}

// NewEntryRepository constructs a repository using the provided gorm DB.
func NewEntryRepository(db *gorm.DB) *EntryRepository {
	return &EntryRepository{db: db}
}

// Create persists the entry instance.
func (r *EntryRepository) Create(ctx context.Context, entry *models.FormEntry) error {
	return errors.WithStack(r.db.WithContext(ctx).Create(entry).Error)
}

// FindByID returns the entry by id.
func (r *EntryRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.FormEntry, error) {
	var entry models.FormEntry
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		return nil, translate(err, "form entry", id)
	}
	return &entry, nil
}

// FindByIDForUpdate returns the entry and locks its row until the surrounding transaction ends.
func (r *EntryRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.FormEntry, error) {
	var entry models.FormEntry
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&entry, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, "form entry", id)
	}
	return &entry, nil
}

// UpdateFields writes the given columns of one entry.
func (r *EntryRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.FormEntry{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return errors.WithStack(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("form entry %s", id)
	}
	return nil
}

// Delete removes the entry.
func (r *EntryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.FormEntry{}, "id = ?", id)
	if res.Error != nil {
		return errors.WithStack(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("form entry %s", id)
	}
	return nil
}

// List returns entries ordered by creation time descending.
func (r *EntryRepository) List(ctx context.Context, filter EntryFilter) ([]models.FormEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	q := r.db.WithContext(ctx).Model(&models.FormEntry{})
	if filter.TemplateID != 0 {
		q = q.Where("template_id = ?", filter.TemplateID)
	}
	if filter.Status != "" {
		q = q.Where("workflow_status = ?", filter.Status)
	}
	if p := filter.VisibleTo; p != nil {
		if p.Authenticated() {
			q = q.Where("department = ? OR created_by = ?", p.Department, p.ID)
		} else {
			q = q.Where("department = ?", p.Department)
		}
	}
	var entries []models.FormEntry
	err := q.Order("created_at desc").Limit(limit).Find(&entries).Error
	return entries, errors.WithStack(err)
}
