package workflow

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/example/formflow/internal/apperr"
	"github.com/example/formflow/internal/models"
)

// Changes is the field set produced by a permitted transition. Nil pointers
// mean "leave the stored value alone".
type Changes struct {
	WorkflowStatus   models.WorkflowStatus
	StageCompletedAt models.StageTimestamps
	StageAdded       bool
	Signature        *string
	SignedBy         *uuid.UUID
	SignedAt         *time.Time
	ApprovedBy       *uuid.UUID
	ApprovedAt       *time.Time
	LastUpdatedBy    uuid.UUID
	Decision         Decision
}

// StatusChanged reports whether the transition moves the entry to a new status.
func (c *Changes) StatusChanged(previous models.WorkflowStatus) bool {
	return c.WorkflowStatus != previous
}

// ApplyTo copies the changes onto entry.
func (c *Changes) ApplyTo(entry *models.FormEntry) {
	entry.WorkflowStatus = c.WorkflowStatus
	entry.StageCompletedAt = datatypesStages(c.StageCompletedAt)
	entry.LastUpdatedBy = c.LastUpdatedBy
	if c.Signature != nil {
		entry.Signature = c.Signature
	}
	if c.SignedBy != nil {
		entry.SignedBy = c.SignedBy
	}
	if c.SignedAt != nil {
		entry.SignedAt = c.SignedAt
	}
	if c.ApprovedBy != nil {
		entry.ApprovedBy = c.ApprovedBy
	}
	if c.ApprovedAt != nil {
		entry.ApprovedAt = c.ApprovedAt
	}
}

// Columns renders the changes as a column map for the storage layer.
func (c *Changes) Columns() map[string]any {
	cols := map[string]any{
		"workflow_status":    c.WorkflowStatus,
		"stage_completed_at": datatypesStages(c.StageCompletedAt),
		"last_updated_by":    c.LastUpdatedBy,
	}
	if c.Signature != nil {
		cols["signature"] = *c.Signature
	}
	if c.SignedBy != nil {
		cols["signed_by"] = *c.SignedBy
	}
	if c.SignedAt != nil {
		cols["signed_at"] = *c.SignedAt
	}
	if c.ApprovedBy != nil {
		cols["approved_by"] = *c.ApprovedBy
	}
	if c.ApprovedAt != nil {
		cols["approved_at"] = *c.ApprovedAt
	}
	return cols
}

// SignaturePayload carries the signer's signature image or token.
type SignaturePayload struct {
	Signature string
}

// TransitionService turns a permitted transition request into the field set
// to persist. It never performs storage I/O.
type TransitionService struct {
	evaluator *Evaluator
	now       Clock
}

// NewTransitionService builds the service. A nil clock uses time.Now.
func NewTransitionService(evaluator *Evaluator, now Clock) *TransitionService {
	if now == nil {
		now = time.Now
	}
	return &TransitionService{evaluator: evaluator, now: now}
}

// Evaluator returns the permission evaluator used by the service.
func (s *TransitionService) Evaluator() *Evaluator { return s.evaluator }

// Apply checks that p may move entry to target and computes the resulting
// fields. The entry itself is not modified.
func (s *TransitionService) Apply(p models.Principal, entry *models.FormEntry, target models.WorkflowStatus, payload *SignaturePayload) (*Changes, error) {
	if !target.Valid() {
		return nil, apperr.InvalidTransition(string(target))
	}
	decision := s.evaluator.Evaluate(p, entry, target)
	if !decision.Allowed {
		return nil, apperr.Forbidden(decision.Reason, decision.AllowedHours)
	}

	now := s.now().UTC()
	changes := &Changes{
		WorkflowStatus:   target,
		StageCompletedAt: entry.Stages().Clone(),
		LastUpdatedBy:    p.ID,
		Decision:         decision,
	}
	if _, done := changes.StageCompletedAt[target]; !done {
		changes.StageCompletedAt[target] = now
		changes.StageAdded = true
	}

	switch target {
	case models.StatusSigned:
		if payload != nil && payload.Signature != "" && entry.SignedAt == nil {
			signature := payload.Signature
			signer := p.ID
			changes.Signature = &signature
			changes.SignedBy = &signer
			changes.SignedAt = &now
		}
	case models.StatusApproved:
		if entry.ApprovedAt == nil {
			approver := p.ID
			changes.ApprovedBy = &approver
			changes.ApprovedAt = &now
		}
	}
	return changes, nil
}

func datatypesStages(stages models.StageTimestamps) datatypes.JSONType[models.StageTimestamps] {
	return datatypes.NewJSONType(stages)
}
