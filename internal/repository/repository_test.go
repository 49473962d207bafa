package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/formflow/internal/apperr"
	"github.com/example/formflow/internal/folio"
	"github.com/example/formflow/internal/models"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestFolioIncrementIsASingleUpsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFolioRepository(db)

	mock.ExpectQuery(`INSERT INTO folio_counters .* ON CONFLICT \(template_id\) DO UPDATE`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"last_folio_number"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO folio_counters`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"last_folio_number"}).AddRow(2))

	first, err := repo.Increment(context.Background(), 7)
	require.NoError(t, err)
	second, err := repo.Increment(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
	assert.Equal(t, "postgres", repo.Backend())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFolioIncrementWithoutReturnedRowIsAConflict(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`INSERT INTO folio_counters`).
		WillReturnRows(sqlmock.NewRows([]string{"last_folio_number"}))

	_, err := NewFolioRepository(db).Increment(context.Background(), 7)
	assert.True(t, errors.Is(err, apperr.ErrConflictingFolio))
}

func TestFolioIncrementStorageFailure(t *testing.T) {
	db, mock := newMockDB(t)
	boom := errors.New("connection reset")

	mock.ExpectQuery(`INSERT INTO folio_counters`).WillReturnError(boom)

	_, err := NewFolioRepository(db).Increment(context.Background(), 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}

func TestFindByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT \* FROM "form_entries" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := NewEntryRepository(db).FindByID(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestFindByIDForUpdateLocksRow(t *testing.T) {
	db, mock := newMockDB(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "form_entries" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "template_id", "folio_number", "workflow_status"}).
			AddRow(id.String(), int64(7), int64(3), "IN_PROGRESS"))

	entry, err := NewEntryRepository(db).FindByIDForUpdate(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, entry.ID)
	assert.Equal(t, int64(3), entry.FolioNumber)
	assert.Equal(t, models.StatusInProgress, entry.WorkflowStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateFieldsMissingRow(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "form_entries" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := NewEntryRepository(db).UpdateFields(context.Background(), uuid.New(), map[string]any{
		"workflow_status": models.StatusCompleted,
	})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteEntry(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "form_entries" WHERE id = \$1`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewEntryRepository(db).Delete(context.Background(), uuid.New()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListScopesToDepartmentOrCreator(t *testing.T) {
	db, mock := newMockDB(t)
	p := models.Principal{ID: uuid.New(), Role: models.RoleProduction, Department: "molding"}

	mock.ExpectQuery(`SELECT \* FROM "form_entries" WHERE template_id = \$1 AND \(department = \$2 OR created_by = \$3\) ORDER BY created_at desc LIMIT \$4`).
		WithArgs(7, "molding", p.ID, maxListLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))

	entries, err := NewEntryRepository(db).List(context.Background(), EntryFilter{TemplateID: 7, VisibleTo: &p, Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListWithoutUserIDScopesToDepartmentOnly(t *testing.T) {
	db, mock := newMockDB(t)
	p := models.Principal{Role: models.RoleProduction, Department: "molding"}

	mock.ExpectQuery(`SELECT \* FROM "form_entries" WHERE department = \$1 ORDER BY created_at desc LIMIT \$2`).
		WithArgs("molding", defaultListLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := NewEntryRepository(db).List(context.Background(), EntryFilter{VisibleTo: &p})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityListIsCapped(t *testing.T) {
	db, mock := newMockDB(t)
	id := uuid.NewString()

	mock.ExpectQuery(`SELECT \* FROM "activity_logs" WHERE resource_type = \$1 AND resource_id = \$2 ORDER BY occurred_at desc LIMIT \$3`).
		WithArgs(models.ResourceFormEntry, id, maxListLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := NewActivityRepository(db).ListByResource(context.Background(), models.ResourceFormEntry, id, 100000000)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"folio collision", errors.Wrap(apperr.ErrConflictingFolio, "next folio"), true},
		{"duplicate key", errors.WithStack(gorm.ErrDuplicatedKey), true},
		{"storage failure", errors.New("connection reset by peer"), true},
		{"check constraint", errors.WithStack(gorm.ErrCheckConstraintViolated), false},
		{"foreign key", gorm.ErrForeignKeyViolated, false},
		{"invalid data", gorm.ErrInvalidData, false},
		{"forbidden", apperr.Forbidden("outside work hours", ""), false},
		{"cancelled", errors.Wrap(context.Canceled, "increment"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Retryable(tc.err))
		})
	}
}

func TestStoreUsesExternalFolioStore(t *testing.T) {
	db, _ := newMockDB(t)
	external := folio.NewMemoryStore()

	assert.Same(t, external, NewStore(db, WithFolioStore(external)).Folios())
	assert.IsType(t, &FolioRepository{}, NewStore(db).Folios())
}

func TestStoreTransactionRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	boom := errors.New("insert failed")

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO folio_counters`).
		WillReturnRows(sqlmock.NewRows([]string{"last_folio_number"}).AddRow(4))
	mock.ExpectRollback()

	err := NewStore(db).Transaction(context.Background(), func(tx Store) error {
		n, err := tx.Folios().Increment(context.Background(), 9)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
		return boom
	})
	assert.True(t, errors.Is(err, boom))
	assert.NoError(t, mock.ExpectationsWereMet())
}
