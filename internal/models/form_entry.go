package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StageTimestamps maps a stage (status name) to the moment it was first completed.
type StageTimestamps map[WorkflowStatus]time.Time

// Clone returns an independent copy of the map.
func (s StageTimestamps) Clone() StageTimestamps {
	out := make(StageTimestamps, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// FormEntry is one submitted instance of a form template.
type FormEntry struct {
	ID               uuid.UUID                           `gorm:"type:uuid;primaryKey" json:"id"`
	TemplateID       uint                                `gorm:"not null;uniqueIndex:idx_form_entries_template_folio" json:"templateId"`
	FolioNumber      int64                               `gorm:"not null;uniqueIndex:idx_form_entries_template_folio" json:"folioNumber"`
	Department       string                              `gorm:"size:100;index" json:"department"`
	Data             datatypes.JSONMap                   `gorm:"type:jsonb" json:"data"`
	WorkflowStatus   WorkflowStatus                      `gorm:"size:32;not null;index" json:"workflowStatus"`
	StageCompletedAt datatypes.JSONType[StageTimestamps] `gorm:"type:jsonb" json:"stageCompletedAt"`
	CreatedBy        uuid.UUID                           `gorm:"type:uuid;index" json:"createdBy"`
	LastUpdatedBy    uuid.UUID                           `gorm:"type:uuid" json:"lastUpdatedBy"`
	Signature        *string                             `gorm:"type:text" json:"signature,omitempty"`
	SignedBy         *uuid.UUID                          `gorm:"type:uuid" json:"signedBy,omitempty"`
	SignedAt         *time.Time                          `json:"signedAt,omitempty"`
	ApprovedBy       *uuid.UUID                          `gorm:"type:uuid" json:"approvedBy,omitempty"`
	ApprovedAt       *time.Time                          `json:"approvedAt,omitempty"`
	CreatedAt        time.Time                           `json:"createdAt"`
	UpdatedAt        time.Time                           `json:"updatedAt"`
}

// Stages returns the stage completion timestamps, never nil.
func (e *FormEntry) Stages() StageTimestamps {
	stages := e.StageCompletedAt.Data()
	if stages == nil {
		return StageTimestamps{}
	}
	return stages
}

// BeforeCreate is a GORM hook that populates the primary key and initial status.
func (e *FormEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.WorkflowStatus == "" {
		e.WorkflowStatus = StatusInitiated
	}
	return nil
}

// FolioCounter holds the last folio number issued for a template.
type FolioCounter struct {
	TemplateID      uint      `gorm:"primaryKey;autoIncrement:false" json:"templateId"`
	LastFolioNumber int64     `gorm:"not null" json:"lastFolioNumber"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Principal is the acting user as supplied by the session layer.
type Principal struct {
	ID         uuid.UUID `json:"id"`
	Role       Role      `json:"role"`
	Department string    `json:"department"`
}

// Authenticated reports whether the principal carries a user id.
func (p Principal) Authenticated() bool {
	return p.ID != uuid.Nil
}

// Owns reports whether p created entry. The zero id owns nothing.
func (p Principal) Owns(entry *FormEntry) bool {
	return p.Authenticated() && entry.CreatedBy == p.ID
}
