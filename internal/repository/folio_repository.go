package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/example/formflow/internal/apperr"
)

// upsertFolio creates the counter at 1 or increments it, and returns the new
// value, in one statement. Postgres serializes concurrent upserts of the same
// template_id on its row lock; other templates are not blocked.
const upsertFolio = `INSERT INTO folio_counters (template_id, last_folio_number, updated_at)
VALUES (?, 1, ?)
ON CONFLICT (template_id) DO UPDATE
SET last_folio_number = folio_counters.last_folio_number + 1, updated_at = EXCLUDED.updated_at
RETURNING last_folio_number`

// FolioRepository keeps folio counters in the folio_counters table.
type FolioRepository struct {
	db *gorm.DB
}

// NewFolioRepository constructs a repository using the provided gorm DB.
func NewFolioRepository(db *gorm.DB) *FolioRepository {
	return &FolioRepository{db: db}
}

// Increment atomically creates or advances the template's counter.
func (r *FolioRepository) Increment(ctx context.Context, templateID uint) (int64, error) {
	var next int64
	res := r.db.WithContext(ctx).Raw(upsertFolio, templateID, time.Now().UTC()).Scan(&next)
	if res.Error != nil {
		return 0, errors.WithStack(res.Error)
	}
	if res.RowsAffected != 1 {
		return 0, errors.Wrapf(apperr.ErrConflictingFolio, "folio upsert for template %d returned %d rows", templateID, res.RowsAffected)
	}
	return next, nil
}

func (r *FolioRepository) Backend() string { return "postgres" }
