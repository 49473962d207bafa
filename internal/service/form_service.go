package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/example/formflow/internal/activity"
	"github.com/example/formflow/internal/apperr"
	"github.com/example/formflow/internal/folio"
	"github.com/example/formflow/internal/metrics"
	"github.com/example/formflow/internal/models"
	"github.com/example/formflow/internal/repository"
	"github.com/example/formflow/internal/workflow"
)

// createAttempts bounds entry creation: one try plus one retry of a retryable failure.
const createAttempts = 2

// CreateRequest is the input of CreateEntry.
type CreateRequest struct {
	TemplateID uint
	Department string
	Data       map[string]any
}

// TransitionRequest is the input of Transition.
type TransitionRequest struct {
	Status    models.WorkflowStatus
	Signature string
	// Data, when non-nil, replaces the entry's payload.
	Data map[string]any
}

// ListRequest is the input of ListEntries.
type ListRequest struct {
	TemplateID uint
	Status     models.WorkflowStatus
	Limit      int
}

// FormService contains business logic bridging persistence and the workflow engine.
type FormService struct {
	store       repository.Store
	transitions *workflow.TransitionService
	activity    *activity.Recorder
}

// NewFormService builds a service with dependencies. recorder may be nil.
func NewFormService(store repository.Store, transitions *workflow.TransitionService, recorder *activity.Recorder) *FormService {
	return &FormService{store: store, transitions: transitions, activity: recorder}
}

func (s *FormService) evaluator() *workflow.Evaluator {
	return s.transitions.Evaluator()
}

// CreateEntry issues a folio and stores a new INITIATED entry in one transaction.
func (s *FormService) CreateEntry(ctx context.Context, p models.Principal, req CreateRequest) (*models.FormEntry, error) {
	if !p.Authenticated() {
		return nil, errors.Wrap(apperr.ErrUnauthorized, "create entry")
	}
	if req.TemplateID == 0 {
		return nil, errors.New("templateId is required")
	}
	if d := s.evaluator().EvaluateCreate(p); !d.Allowed {
		return nil, apperr.Forbidden(d.Reason, d.AllowedHours)
	}
	department := req.Department
	if department == "" {
		department = p.Department
	}

	var (
		entry *models.FormEntry
		err   error
	)
	for attempt := 1; attempt <= createAttempts; attempt++ {
		entry = &models.FormEntry{
			TemplateID:     req.TemplateID,
			Department:     department,
			Data:           req.Data,
			WorkflowStatus: models.StatusInitiated,
			CreatedBy:      p.ID,
			LastUpdatedBy:  p.ID,
		}
		err = s.store.Transaction(ctx, func(tx repository.Store) error {
			n, err := folio.NewSequencer(tx.Folios()).Next(ctx, req.TemplateID)
			if err != nil {
				return err
			}
			entry.FolioNumber = n
			return tx.Entries().Create(ctx, entry)
		})
		if err == nil || ctx.Err() != nil || !repository.Retryable(err) {
			break
		}
		logrus.WithError(err).WithFields(logrus.Fields{
			"templateId": req.TemplateID,
			"attempt":    attempt,
		}).Warn("create entry failed")
	}
	if err != nil {
		return nil, errors.Wrap(err, "create entry")
	}

	s.record(p, models.ActionCreate, entry.ID, map[string]any{
		"templateId":  entry.TemplateID,
		"folioNumber": entry.FolioNumber,
	})
	return entry, nil
}

// GetEntry returns an entry visible to p.
func (s *FormService) GetEntry(ctx context.Context, p models.Principal, id uuid.UUID) (*models.FormEntry, error) {
	entry, err := s.store.Entries().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.visible(p, entry) {
		return nil, apperr.NotFound("form entry %s", id)
	}
	return entry, nil
}

// ListEntries returns entries visible to p.
func (s *FormService) ListEntries(ctx context.Context, p models.Principal, req ListRequest) ([]models.FormEntry, error) {
	if req.Status != "" && !req.Status.Valid() {
		return nil, apperr.InvalidTransition(string(req.Status))
	}
	filter := repository.EntryFilter{TemplateID: req.TemplateID, Status: req.Status, Limit: req.Limit}
	if !s.seesAllDepartments(p.Role) {
		scoped := p
		filter.VisibleTo = &scoped
	}
	return s.store.Entries().List(ctx, filter)
}

// Transition applies a status change (or an in-stage save when the status is
// unchanged) under a row lock and persists the resulting fields.
func (s *FormService) Transition(ctx context.Context, p models.Principal, id uuid.UUID, req TransitionRequest) (*models.FormEntry, error) {
	var (
		entry    *models.FormEntry
		previous models.WorkflowStatus
	)
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		entry, err = tx.Entries().FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !s.visible(p, entry) {
			return apperr.NotFound("form entry %s", id)
		}
		previous = entry.WorkflowStatus

		var payload *workflow.SignaturePayload
		if req.Signature != "" {
			payload = &workflow.SignaturePayload{Signature: req.Signature}
		}
		changes, err := s.transitions.Apply(p, entry, req.Status, payload)
		if err != nil {
			return err
		}
		fields := changes.Columns()
		if req.Data != nil {
			fields["data"] = datatypes.JSONMap(req.Data)
		}
		if err := tx.Entries().UpdateFields(ctx, id, fields); err != nil {
			return err
		}
		changes.ApplyTo(entry)
		if req.Data != nil {
			entry.Data = req.Data
		}
		return nil
	})
	if err != nil {
		s.observeTransition(p, previous, req.Status, err)
		return nil, err
	}
	s.observeTransition(p, previous, req.Status, nil)

	action := models.ActionUpdate
	if previous != entry.WorkflowStatus {
		action = models.ActionStatusChange
	}
	s.record(p, action, entry.ID, map[string]any{
		"from": previous,
		"to":   entry.WorkflowStatus,
	})
	return entry, nil
}

// DeleteEntry removes an entry when p holds the delete capability.
func (s *FormService) DeleteEntry(ctx context.Context, p models.Principal, id uuid.UUID) error {
	var folioNumber int64
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		entry, err := tx.Entries().FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !s.visible(p, entry) {
			return apperr.NotFound("form entry %s", id)
		}
		if d := s.evaluator().EvaluateDelete(p, entry); !d.Allowed {
			return apperr.Forbidden(d.Reason, d.AllowedHours)
		}
		folioNumber = entry.FolioNumber
		return tx.Entries().Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(p, models.ActionDelete, id, map[string]any{"folioNumber": folioNumber})
	return nil
}

// History returns the activity records of an entry visible to p.
func (s *FormService) History(ctx context.Context, p models.Principal, id uuid.UUID, limit int) ([]models.ActivityLog, error) {
	if _, err := s.GetEntry(ctx, p, id); err != nil {
		return nil, err
	}
	return s.store.Activities().ListByResource(ctx, models.ResourceFormEntry, id.String(), limit)
}

// CheckAccess reports whether p may act right now.
func (s *FormService) CheckAccess(p models.Principal) workflow.AccessDecision {
	return s.evaluator().CheckAccess(p)
}

// Policy returns the capability matrix and the schedule table.
func (s *FormService) Policy() ([]workflow.PolicyRow, []workflow.RoleSchedule) {
	return s.evaluator().Matrix().Policy(), s.evaluator().Gate().Schedules()
}

func (s *FormService) observeTransition(p models.Principal, from, to models.WorkflowStatus, err error) {
	outcome := "allowed"
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrForbidden):
		outcome = "denied"
		logrus.WithFields(logrus.Fields{
			"userId": p.ID,
			"role":   p.Role,
			"from":   from,
			"to":     to,
			"reason": err.Error(),
		}).Info("transition denied")
	case errors.Is(err, apperr.ErrInvalidTransition):
		outcome = "invalid"
	case errors.Is(err, apperr.ErrNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
		logrus.WithError(err).WithField("to", to).Error("transition failed")
	}
	metrics.TransitionsTotal.WithLabelValues(string(p.Role), string(to), outcome).Inc()
}

func (s *FormService) record(p models.Principal, action string, id uuid.UUID, details map[string]any) {
	s.activity.Record(models.ActivityLog{
		UserID:       p.ID,
		Action:       action,
		ResourceType: models.ResourceFormEntry,
		ResourceID:   id.String(),
		Details:      details,
	})
}

// seesAllDepartments reports whether role reads entries across departments.
func (s *FormService) seesAllDepartments(role models.Role) bool {
	return s.evaluator().Matrix().Rule(role).Unrestricted
}

func (s *FormService) visible(p models.Principal, entry *models.FormEntry) bool {
	return s.seesAllDepartments(p.Role) || entry.Department == p.Department || p.Owns(entry)
}
