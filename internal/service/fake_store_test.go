package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/example/formflow/internal/apperr"
	"github.com/example/formflow/internal/folio"
	"github.com/example/formflow/internal/models"
	"github.com/example/formflow/internal/repository"
)

// memStore is an in-memory repository.Store. Transactions are serialized and
// roll back the entry table on error.
type memStore struct {
	txMu       sync.Mutex
	mu         sync.Mutex
	entries    map[uuid.UUID]models.FormEntry
	activities []models.ActivityLog
	folios     folio.Store
	// createErrs are returned by the next entry inserts, one per call.
	createErrs []error
}

func newMemStore() *memStore {
	return &memStore{entries: map[uuid.UUID]models.FormEntry{}, folios: folio.NewMemoryStore()}
}

func (s *memStore) Entries() repository.EntryStore { return memEntries{s} }
func (s *memStore) Folios() folio.Store { return s.folios }
func (s *memStore) Activities() repository.ActivityStore { return memActivities{s} }

func (s *memStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := make(map[uuid.UUID]models.FormEntry, len(s.entries))
	for k, v := range s.entries {
		snapshot[k] = v
	}
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.entries = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type memEntries struct{ s *memStore }

func (m memEntries) Create(_ context.Context, entry *models.FormEntry) error {
	if err := entry.BeforeCreate(nil); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if len(m.s.createErrs) > 0 {
		err := m.s.createErrs[0]
		m.s.createErrs = m.s.createErrs[1:]
		return err
	}
	for _, existing := range m.s.entries {
		if existing.TemplateID == entry.TemplateID && existing.FolioNumber == entry.FolioNumber {
			return apperr.ErrConflictingFolio
		}
	}
	m.s.entries[entry.ID] = *entry
	return nil
}

func (m memEntries) FindByID(_ context.Context, id uuid.UUID) (*models.FormEntry, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	entry, ok := m.s.entries[id]
	if !ok {
		return nil, apperr.NotFound("form entry %s", id)
	}
	return &entry, nil
}

func (m memEntries) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.FormEntry, error) {
	return m.FindByID(ctx, id)
}

func (m memEntries) UpdateFields(_ context.Context, id uuid.UUID, fields map[string]any) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	entry, ok := m.s.entries[id]
	if !ok {
		return apperr.NotFound("form entry %s", id)
	}
	applyColumns(&entry, fields)
	m.s.entries[id] = entry
	return nil
}

func (m memEntries) Delete(_ context.Context, id uuid.UUID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.entries[id]; !ok {
		return apperr.NotFound("form entry %s", id)
	}
	delete(m.s.entries, id)
	return nil
}

func (m memEntries) List(_ context.Context, filter repository.EntryFilter) ([]models.FormEntry, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []models.FormEntry
	for _, e := range m.s.entries {
		if filter.TemplateID != 0 && e.TemplateID != filter.TemplateID {
			continue
		}
		if filter.Status != "" && e.WorkflowStatus != filter.Status {
			continue
		}
		if p := filter.VisibleTo; p != nil && e.Department != p.Department && !p.Owns(&e) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FolioNumber < out[j].FolioNumber })
	return out, nil
}

type memActivities struct{ s *memStore }

func (m memActivities) Create(_ context.Context, log *models.ActivityLog) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.activities = append(m.s.activities, *log)
	return nil
}

func (m memActivities) ListByResource(_ context.Context, resourceType, resourceID string, limit int) ([]models.ActivityLog, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []models.ActivityLog
	for _, l := range m.s.activities {
		if l.ResourceType == resourceType && l.ResourceID == resourceID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memStore) activityCount(action string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.activities {
		if l.Action == action {
			n++
		}
	}
	return n
}

// applyColumns mirrors what gorm's Updates does with the column map.
func applyColumns(entry *models.FormEntry, fields map[string]any) {
	for column, value := range fields {
		switch column {
		case "workflow_status":
			entry.WorkflowStatus = value.(models.WorkflowStatus)
		case "stage_completed_at":
			entry.StageCompletedAt = value.(datatypes.JSONType[models.StageTimestamps])
		case "last_updated_by":
			entry.LastUpdatedBy = value.(uuid.UUID)
		case "signature":
			v := value.(string)
			entry.Signature = &v
		case "signed_by":
			v := value.(uuid.UUID)
			entry.SignedBy = &v
		case "signed_at":
			v := value.(time.Time)
			entry.SignedAt = &v
		case "approved_by":
			v := value.(uuid.UUID)
			entry.ApprovedBy = &v
		case "approved_at":
			v := value.(time.Time)
			entry.ApprovedAt = &v
		case "data":
			entry.Data = value.(datatypes.JSONMap)
		}
	}
}

// flakyFolios fails the first failures increments and then delegates.
type flakyFolios struct {
	mu       sync.Mutex
	failures int
	next     folio.Store
}

func (f *flakyFolios) Increment(ctx context.Context, templateID uint) (int64, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return 0, errFolioUnavailable
	}
	f.mu.Unlock()
	return f.next.Increment(ctx, templateID)
}

func (f *flakyFolios) Backend() string { return "flaky" }
