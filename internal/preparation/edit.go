package preparation

import (
	"errors"
	"fmt"
	"strings"

	"prep-service/internal/catalog"
	"prep-service/internal/model"
)

var (
	ErrAdminNotesRequired = errors.New("an administrator justification is required")
	ErrDuplicateStep      = errors.New("step listed more than once")
	ErrStepHasPhotos      = errors.New("a step with photos cannot be removed")
)

type ChangeKind string

const (
	ChangeAdded     ChangeKind = "added"
	ChangeRemoved   ChangeKind = "removed"
	ChangeCompleted ChangeKind = "completed"
	ChangeReverted  ChangeKind = "reverted"
	ChangeNotes     ChangeKind = "notes"
)

type Change struct {
	Step model.StepKind `json:"step"`
	Kind ChangeKind     `json:"kind"`
}

// PlanAdminEdit checks an administrator's desired step list against the current
// record. Steps left out of the list are removals, which are refused for any step
// holding a photo. The returned request is what gets sent to the backend.
func PlanAdminEdit(current model.Preparation, req model.AdminEditRequest, c *catalog.Catalog) (model.AdminEditRequest, []Change, error) {
	notes := strings.TrimSpace(req.AdminNotes)
	if notes == "" {
		return model.AdminEditRequest{}, nil, ErrAdminNotesRequired
	}

	desired := make(map[model.StepKind]model.AdminStepUpdate, len(req.Steps))
	planned := model.AdminEditRequest{AdminNotes: notes, Steps: make([]model.AdminStepUpdate, 0, len(req.Steps))}
	for _, upd := range req.Steps {
		upd.Step = model.StepKind(strings.TrimSpace(string(upd.Step)))
		if !c.Contains(upd.Step) {
			return model.AdminEditRequest{}, nil, fmt.Errorf("%w: %q", ErrUnknownStep, upd.Step)
		}
		if _, dup := desired[upd.Step]; dup {
			return model.AdminEditRequest{}, nil, fmt.Errorf("%w: %q", ErrDuplicateStep, upd.Step)
		}
		desired[upd.Step] = upd
		planned.Steps = append(planned.Steps, upd)
	}

	var changes []Change
	for _, rec := range current.Steps {
		if _, kept := desired[rec.Step]; kept {
			continue
		}
		if rec.HasPhotos() {
			return model.AdminEditRequest{}, nil, fmt.Errorf("%w: %q", ErrStepHasPhotos, rec.Step)
		}
		changes = append(changes, Change{Step: rec.Step, Kind: ChangeRemoved})
	}

	for _, upd := range planned.Steps {
		rec, exists := current.StepRecord(upd.Step)
		switch {
		case !exists:
			changes = append(changes, Change{Step: upd.Step, Kind: ChangeAdded})
		case upd.Completed && !rec.Completed:
			changes = append(changes, Change{Step: upd.Step, Kind: ChangeCompleted})
		case !upd.Completed && rec.Completed:
			changes = append(changes, Change{Step: upd.Step, Kind: ChangeReverted})
		}
		if exists && upd.Notes != nil && *upd.Notes != rec.Notes {
			changes = append(changes, Change{Step: upd.Step, Kind: ChangeNotes})
		}
	}

	return planned, changes, nil
}
