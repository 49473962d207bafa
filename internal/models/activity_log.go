package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ResourceFormEntry is the resource type recorded for entry activity.
const ResourceFormEntry = "form_entry"

const (
	ActionCreate       = "create"
	ActionUpdate       = "update"
	ActionStatusChange = "status_change"
	ActionDelete       = "delete"
)

// ActivityLog records a successful mutation performed by a user.
type ActivityLog struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID         `gorm:"type:uuid;index" json:"userId"`
	Action       string            `gorm:"size:50;not null" json:"action"`
	ResourceType string            `gorm:"size:50;not null;index:idx_activity_resource" json:"resourceType"`
	ResourceID   string            `gorm:"size:64;not null;index:idx_activity_resource" json:"resourceId"`
	Details      datatypes.JSONMap `gorm:"type:jsonb" json:"details"`
	OccurredAt   time.Time         `json:"occurredAt"`
}

// BeforeCreate is a GORM hook that populates the primary key and timestamp.
func (a *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.OccurredAt.IsZero() {
		a.OccurredAt = time.Now().UTC()
	}
	return nil
}
