package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/example/formflow/internal/apperr"
	"github.com/example/formflow/internal/folio"
	"github.com/example/formflow/internal/models"
)

// EntryFilter narrows entry listings. Zero values mean "any".
type EntryFilter struct {
	TemplateID uint
	Status     models.WorkflowStatus
	// VisibleTo restricts results to the department or the creator when set.
	VisibleTo *models.Principal
	Limit     int
}

// EntryStore persists form entries.
type EntryStore interface {
	Create(ctx context.Context, entry *models.FormEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.FormEntry, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.FormEntry, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter EntryFilter) ([]models.FormEntry, error)
}

// ActivityStore persists activity log records.
type ActivityStore interface {
	Create(ctx context.Context, log *models.ActivityLog) error
	ListByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]models.ActivityLog, error)
}

// Store groups the repositories that must share a transaction.
type Store interface {
	Entries() EntryStore
	Folios() folio.Store
	Activities() ActivityStore
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// GormStore is the gorm-backed Store.
type GormStore struct {
	db     *gorm.DB
	folios folio.Store
}

// Option configures a GormStore.
type Option func(*GormStore)

// WithFolioStore replaces the in-database folio counters with an external store.
func WithFolioStore(store folio.Store) Option {
	return func(s *GormStore) { s.folios = store }
}

// NewStore builds a Store over db.
func NewStore(db *gorm.DB, opts ...Option) *GormStore {
	s := &GormStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GormStore) Entries() EntryStore {
	return NewEntryRepository(s.db)
}

// Folios returns the folio counter store. Without an external store the
// counters live in the same database and take part in the current transaction.
func (s *GormStore) Folios() folio.Store {
	if s.folios != nil {
		return s.folios
	}
	return NewFolioRepository(s.db)
}

func (s *GormStore) Activities() ActivityStore {
	return NewActivityRepository(s.db)
}

// Transaction runs fn against a Store bound to one database transaction.
func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, folios: s.folios})
	})
}

// Retryable reports whether a failed write transaction may be attempted again.
// Folio collisions and transient storage failures qualify; caller errors,
// rejected payloads and cancelled contexts do not.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, apperr.ErrConflictingFolio), errors.Is(err, gorm.ErrDuplicatedKey):
		return true
	case errors.Is(err, apperr.ErrNotFound),
		errors.Is(err, apperr.ErrUnauthorized),
		errors.Is(err, apperr.ErrForbidden),
		errors.Is(err, apperr.ErrInvalidTransition):
		return false
	case errors.Is(err, gorm.ErrInvalidData),
		errors.Is(err, gorm.ErrInvalidField),
		errors.Is(err, gorm.ErrInvalidValue),
		errors.Is(err, gorm.ErrInvalidValueOfLength),
		errors.Is(err, gorm.ErrModelValueRequired),
		errors.Is(err, gorm.ErrPrimaryKeyRequired),
		errors.Is(err, gorm.ErrCheckConstraintViolated),
		errors.Is(err, gorm.ErrForeignKeyViolated):
		return false
	}
	return true
}

func translate(err error, what string, id any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("%s %v", what, id)
	}
	return errors.WithStack(err)
}
