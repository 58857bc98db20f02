package preparation

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prep-service/internal/catalog"
	"prep-service/internal/model"
)

var start = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func fourSteps(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]model.StepDefinition{
		{Step: "exterior", Label: "Exterior", Icon: "car"},
		{Step: "interior", Label: "Interior", Icon: "armchair"},
		{Step: "fuel", Label: "Fuel", Icon: "fuel"},
		{Step: "special_wash", Label: "Special wash", Icon: "sparkles"},
	})
	require.NoError(t, err)
	return c
}

func photo() []model.Photo {
	return []model.Photo{{URL: "https://cdn.example.com/p/1.jpg"}}
}

func inProgress(steps ...model.StepRecord) model.Preparation {
	return model.Preparation{
		ID:        "prep-1",
		Status:    model.PreparationStatusInProgress,
		StartTime: start,
		Steps:     steps,
	}
}

func TestComputeStatsProgressIsProportional(t *testing.T) {
	c := fourSteps(t)
	kinds := []model.StepKind{"exterior", "interior", "fuel", "special_wash"}

	previous := -1.0
	for n := 0; n <= len(kinds); n++ {
		var steps []model.StepRecord
		for _, k := range kinds[:n] {
			steps = append(steps, model.StepRecord{Step: k, Completed: true, Photos: photo()})
		}
		stats := ComputeStats(inProgress(steps...), c, start)

		assert.Equal(t, n, stats.CompletedSteps)
		assert.Equal(t, 4, stats.TotalSteps)
		assert.InDelta(t, 100*float64(n)/4, stats.Progress, 1e-9)
		assert.GreaterOrEqual(t, stats.Progress, previous)
		assert.True(t, stats.Progress >= 0 && stats.Progress <= 100)
		assert.Equal(t, n > 0, stats.CanComplete)
		previous = stats.Progress
	}
}

func TestComputeStatsCountsOnlyCompletedRecords(t *testing.T) {
	p := inProgress(
		model.StepRecord{Step: "exterior", Completed: false},
		model.StepRecord{Step: "interior", Completed: false},
	)
	stats := ComputeStats(p, fourSteps(t), start)

	assert.Equal(t, 0, stats.CompletedSteps)
	assert.Equal(t, 0.0, stats.Progress)
	assert.False(t, stats.CanComplete)
}

func TestComputeStatsClampsAndDedupes(t *testing.T) {
	c, err := catalog.New([]model.StepDefinition{{Step: "exterior"}})
	require.NoError(t, err)

	p := inProgress(
		model.StepRecord{Step: "exterior", Completed: true},
		model.StepRecord{Step: "exterior", Completed: true},
		model.StepRecord{Step: "legacy_check", Completed: true},
	)
	stats := ComputeStats(p, c, start)

	assert.Equal(t, 2, stats.CompletedSteps)
	assert.Equal(t, 100.0, stats.Progress)

	empty := ComputeStats(p, nil, start)
	assert.Equal(t, 0, empty.TotalSteps)
	assert.Equal(t, 0.0, empty.Progress)
}

func TestComputeStatsDuration(t *testing.T) {
	c := fourSteps(t)
	now := start.Add(42 * time.Minute)

	stats := ComputeStats(inProgress(), c, now)
	assert.Equal(t, 42, stats.CurrentDuration)

	fromBackend := 17
	p := inProgress()
	p.CurrentDuration = &fromBackend
	assert.Equal(t, 17, ComputeStats(p, c, now).CurrentDuration)

	end := start.Add(25 * time.Minute)
	p = inProgress()
	p.EndTime = &end
	assert.Equal(t, 25, ComputeStats(p, c, now).CurrentDuration)

	p = inProgress()
	assert.Equal(t, 0, ComputeStats(p, c, start.Add(-time.Hour)).CurrentDuration)

	assert.Equal(t, 0, ComputeStats(model.Preparation{}, c, now).CurrentDuration)
}

func TestComputeStatsPassesOnTimeFlagThrough(t *testing.T) {
	onTime := false
	p := inProgress()
	p.IsOnTime = &onTime

	stats := ComputeStats(p, fourSteps(t), start)
	require.NotNil(t, stats.IsOnTime)
	assert.False(t, *stats.IsOnTime)

	assert.Nil(t, ComputeStats(inProgress(), fourSteps(t), start).IsOnTime)
}

func TestComputeStatsIsIdempotent(t *testing.T) {
	p := inProgress(model.StepRecord{Step: "fuel", Completed: true, Photos: photo()})
	c := fourSteps(t)
	now := start.Add(time.Hour)

	assert.Equal(t, ComputeStats(p, c, now), ComputeStats(p, c, now))
}

func TestAdaptStepAbsentRecord(t *testing.T) {
	def := model.StepDefinition{Step: "fuel", Label: "Fuel", Description: "Fill up", Icon: "fuel"}

	got := AdaptStep(nil, def, 2)

	want := DisplayStep{
		Step: "fuel", Index: 2, Label: "Fuel", Description: "Fill up", Icon: "fuel",
		Photos: []model.Photo{}, InCatalog: true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("AdaptStep mismatch (-want +got):\n%s", diff)
	}
}

func TestAdaptStepPresentRecord(t *testing.T) {
	done := start.Add(10 * time.Minute)
	rec := model.StepRecord{Step: "fuel", Completed: true, CompletedAt: &done, Notes: "full tank", Photos: photo()}

	got := AdaptStep(&rec, model.StepDefinition{Step: "fuel", Label: "Fuel"}, 0)

	assert.True(t, got.Completed)
	assert.Equal(t, &done, got.CompletedAt)
	assert.Equal(t, "full tank", got.Notes)
	assert.Equal(t, rec.Photos, got.Photos)
}

func TestAdaptStepsEnumeratesWholeCatalog(t *testing.T) {
	p := inProgress(
		model.StepRecord{Step: "special_wash", Completed: true, Photos: photo()},
		model.StepRecord{Step: "legacy_check", Completed: false},
		model.StepRecord{Step: "interior", Completed: true, Photos: photo()},
	)

	rows := AdaptSteps(p.Steps, fourSteps(t))

	require.Len(t, rows, 5)
	var kinds []model.StepKind
	for _, r := range rows {
		kinds = append(kinds, r.Step)
	}
	assert.Equal(t, []model.StepKind{"exterior", "interior", "fuel", "special_wash", "legacy_check"}, kinds)
	assert.False(t, rows[0].Completed)
	assert.True(t, rows[1].Completed)
	assert.True(t, rows[3].Completed)
	assert.False(t, rows[4].InCatalog)
	assert.Equal(t, "legacy_check", rows[4].Label)
	assert.Equal(t, 4, rows[4].Index)
}

func TestOutOfOrderCompletionCanFinish(t *testing.T) {
	c := fourSteps(t)
	p := inProgress()

	for _, step := range []model.StepKind{"interior", "special_wash"} {
		require.NoError(t, ValidateStepCompletion(p, c, step, true))
		p.Steps = append(p.Steps, model.StepRecord{Step: step, Completed: true, Photos: photo()})
	}

	stats := ComputeStats(p, c, start)
	assert.True(t, stats.CanComplete)
	assert.Equal(t, 50.0, stats.Progress)
	assert.NoError(t, ValidateCompletion(p))
}
