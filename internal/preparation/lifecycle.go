package preparation

import (
	"errors"
	"strings"

	"prep-service/internal/catalog"
	"prep-service/internal/model"
)

var (
	ErrInvalidTransition = errors.New("invalid preparation status transition")
	ErrNotInProgress     = errors.New("preparation is not in progress")
	ErrUnknownStep       = errors.New("unknown preparation step")
	ErrPhotoRequired     = errors.New("a photo is required to complete a step")
	ErrNothingCompleted  = errors.New("complete at least one step before finishing the preparation")
	ErrReasonRequired    = errors.New("a cancellation reason is required")
)

var transitions = map[model.PreparationStatus][]model.PreparationStatus{
	model.PreparationStatusPending:    {model.PreparationStatusInProgress, model.PreparationStatusCancelled},
	model.PreparationStatusInProgress: {model.PreparationStatusCompleted, model.PreparationStatusCancelled},
}

func CanTransition(from, to model.PreparationStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminal(status model.PreparationStatus) bool {
	return status == model.PreparationStatusCompleted || status == model.PreparationStatusCancelled
}

func ValidateStepCompletion(p model.Preparation, c *catalog.Catalog, step model.StepKind, hasPhoto bool) error {
	if p.Status != model.PreparationStatusInProgress {
		return ErrNotInProgress
	}
	if !c.Contains(step) {
		return ErrUnknownStep
	}
	if !hasPhoto {
		return ErrPhotoRequired
	}
	return nil
}

// ValidateCompletion allows finishing early: one completed step is enough.
func ValidateCompletion(p model.Preparation) error {
	if !CanTransition(p.Status, model.PreparationStatusCompleted) {
		return ErrInvalidTransition
	}
	if CompletedSteps(p) == 0 {
		return ErrNothingCompleted
	}
	return nil
}

func ValidateCancellation(p model.Preparation, reason string) error {
	if !CanTransition(p.Status, model.PreparationStatusCancelled) {
		return ErrInvalidTransition
	}
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}
	return nil
}
