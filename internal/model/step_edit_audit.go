package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StepEditAudit journals administrator step edits accepted by the backend.
type StepEditAudit struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	PreparationID string         `gorm:"type:varchar(64);not null;index" json:"preparation_id"`
	AdminUserID   string         `gorm:"type:varchar(64);not null;index" json:"admin_user_id"`
	AdminNotes    string         `gorm:"type:text;not null" json:"admin_notes"`
	Changes       datatypes.JSON `gorm:"type:jsonb;not null" json:"changes"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (StepEditAudit) TableName() string {
	return "step_edit_audits"
}

func (a *StepEditAudit) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
