// Package preparation holds the vehicle preparation checklist logic: progress
// statistics, the display rows of the checklist, the preparation lifecycle,
// administrator step edits and the one-capture-at-a-time photo rule.
package preparation

import (
	"time"

	"prep-service/internal/catalog"
	"prep-service/internal/model"
	"prep-service/internal/timefmt"
)

type Stats struct {
	CompletedSteps  int     `json:"completedSteps"`
	TotalSteps      int     `json:"totalSteps"`
	Progress        float64 `json:"progress"`
	CanComplete     bool    `json:"canComplete"`
	CurrentDuration int     `json:"currentDuration"`
	IsOnTime        *bool   `json:"isOnTime"`
}

// ComputeStats measures p against the whole catalog, not only the steps the
// backend already created records for. IsOnTime is the backend's flag, untouched.
func ComputeStats(p model.Preparation, c *catalog.Catalog, now time.Time) Stats {
	total := c.Len()
	completed := CompletedSteps(p)

	progress := 0.0
	if total > 0 {
		progress = float64(completed) / float64(total) * 100
	}
	if progress > 100 {
		progress = 100
	}

	return Stats{
		CompletedSteps:  completed,
		TotalSteps:      total,
		Progress:        progress,
		CanComplete:     completed > 0,
		CurrentDuration: CurrentDuration(p, now),
		IsOnTime:        p.IsOnTime,
	}
}

// CompletedSteps counts step kinds with a completed record; duplicate records of one kind count once.
func CompletedSteps(p model.Preparation) int {
	seen := make(map[model.StepKind]struct{}, len(p.Steps))
	for _, rec := range p.Steps {
		if rec.Completed {
			seen[rec.Step] = struct{}{}
		}
	}
	return len(seen)
}

func CurrentDuration(p model.Preparation, now time.Time) int {
	if p.CurrentDuration != nil && *p.CurrentDuration >= 0 {
		return *p.CurrentDuration
	}
	if p.StartTime.IsZero() {
		return 0
	}
	end := now
	if p.EndTime != nil {
		end = *p.EndTime
	}
	minutes := timefmt.MinutesBetween(p.StartTime, end)
	if minutes < 0 {
		return 0
	}
	return minutes
}

type DisplayStep struct {
	Step        model.StepKind `json:"step"`
	Index       int            `json:"index"`
	Label       string         `json:"label"`
	Description string         `json:"description"`
	Icon        string         `json:"icon"`
	Completed   bool           `json:"completed"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	Notes       string         `json:"notes"`
	Photos      []model.Photo  `json:"photos"`
	InCatalog   bool           `json:"inCatalog"`
}

// AdaptStep merges a possibly absent backend record with its definition so
// every definition renders a row.
func AdaptStep(record *model.StepRecord, def model.StepDefinition, index int) DisplayStep {
	step := DisplayStep{
		Step:        def.Step,
		Index:       index,
		Label:       def.Label,
		Description: def.Description,
		Icon:        def.Icon,
		Photos:      []model.Photo{},
		InCatalog:   true,
	}
	if record == nil {
		return step
	}
	step.Completed = record.Completed
	step.CompletedAt = record.CompletedAt
	step.Notes = record.Notes
	if record.Photos != nil {
		step.Photos = record.Photos
	}
	return step
}

// AdaptSteps lists the catalog in order, then any records whose kind the catalog does not know.
func AdaptSteps(records []model.StepRecord, c *catalog.Catalog) []DisplayStep {
	byKind := make(map[model.StepKind]*model.StepRecord, len(records))
	for i := range records {
		if _, ok := byKind[records[i].Step]; !ok {
			byKind[records[i].Step] = &records[i]
		}
	}

	defs := c.Steps()
	out := make([]DisplayStep, 0, len(defs)+len(records))
	for i, def := range defs {
		out = append(out, AdaptStep(byKind[def.Step], def, i))
		delete(byKind, def.Step)
	}

	for i := range records {
		rec := &records[i]
		if byKind[rec.Step] != rec {
			continue
		}
		step := AdaptStep(rec, model.StepDefinition{Step: rec.Step, Label: string(rec.Step)}, len(out))
		step.InCatalog = false
		out = append(out, step)
	}
	return out
}
