package model

import "time"

type PreparationStatus string

const (
	PreparationStatusPending    PreparationStatus = "pending"
	PreparationStatusInProgress PreparationStatus = "in_progress"
	PreparationStatusCompleted  PreparationStatus = "completed"
	PreparationStatusCancelled  PreparationStatus = "cancelled"
)

type StepKind string

type StepDefinition struct {
	Step        StepKind `json:"step" yaml:"step"`
	Label       string   `json:"label" yaml:"label"`
	Description string   `json:"description" yaml:"description"`
	Icon        string   `json:"icon" yaml:"icon"`
}

type Photo struct {
	URL         string     `json:"url"`
	Description string     `json:"description,omitempty"`
	UploadedAt  *time.Time `json:"uploadedAt,omitempty"`
}

type StepRecord struct {
	Step        StepKind   `json:"step"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Photos      []Photo    `json:"photos"`
}

func (r StepRecord) HasPhotos() bool {
	return len(r.Photos) > 0
}

type Preparation struct {
	ID              string            `json:"id"`
	Vehicle         VehicleRef        `json:"vehicle"`
	VehicleData     *VehicleData      `json:"vehicleData,omitempty"`
	UserID          string            `json:"user"`
	AgencyID        string            `json:"agency"`
	Status          PreparationStatus `json:"status"`
	Steps           []StepRecord      `json:"steps"`
	StartTime       time.Time         `json:"startTime"`
	EndTime         *time.Time        `json:"endTime,omitempty"`
	CurrentDuration *int              `json:"currentDuration,omitempty"`
	TotalTime       *int              `json:"totalTime,omitempty"`
	IsOnTime        *bool             `json:"isOnTime,omitempty"`
	Notes           string            `json:"notes,omitempty"`
}

func (p Preparation) StepRecord(kind StepKind) (StepRecord, bool) {
	for _, rec := range p.Steps {
		if rec.Step == kind {
			return rec, true
		}
	}
	return StepRecord{}, false
}

type StartPreparationInput struct {
	VehicleID string `json:"vehicleId"`
	AgencyID  string `json:"agencyId"`
	Notes     string `json:"notes,omitempty"`
}

// StepSubmission is the evidence for one step completion. Photo is owned by the caller.
type StepSubmission struct {
	Step          StepKind
	Notes         string
	PhotoName     string
	PhotoMimeType string
	Photo         []byte
}

type AdminStepUpdate struct {
	Step      StepKind `json:"step"`
	Completed bool     `json:"completed"`
	Notes     *string  `json:"notes,omitempty"`
}

type AdminEditRequest struct {
	Steps      []AdminStepUpdate `json:"steps"`
	AdminNotes string            `json:"adminNotes"`
}
