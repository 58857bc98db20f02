package service

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"prep-service/internal/catalog"
	"prep-service/internal/client"
	"prep-service/internal/model"
	"prep-service/internal/repository"
	"prep-service/internal/utils"
)

var (
	testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	pngData = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
)

type fakeBackend struct {
	mu sync.Mutex

	preparations map[string]*model.Preparation
	vehicles     map[string]*model.Vehicle
	events       *model.ClockEvents
	schedule     *model.ScheduleEntry

	active        *model.Preparation
	failWith      error
	scheduleErr   error
	eventsErr     error
	stepResult    func(id string, sub model.StepSubmission) *model.Preparation
	blockMutation chan struct{}

	calls       map[string]int
	submissions []model.StepSubmission
	edits       []model.AdminEditRequest
	clockInputs []model.ClockEventInput
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		preparations: make(map[string]*model.Preparation),
		vehicles:     make(map[string]*model.Vehicle),
		calls:        make(map[string]int),
	}
}

func (f *fakeBackend) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) mutationCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, name := range []string{"start", "step", "complete", "cancel", "update", "clock"} {
		total += f.calls[name]
	}
	return total
}

func (f *fakeBackend) wait() {
	if f.blockMutation != nil {
		<-f.blockMutation
	}
}

func (f *fakeBackend) lookup(id string) (*model.Preparation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.preparations[id]
	if !ok {
		return nil, &client.Error{Kind: client.KindNotFound, Status: 404, Message: "Préparation introuvable"}
	}
	cp := *p
	return &cp, nil
}

func (f *fakeBackend) ActivePreparation(ctx context.Context, token string) (*model.Preparation, error) {
	f.record("active")
	return f.active, nil
}

func (f *fakeBackend) GetPreparation(ctx context.Context, token, id string) (*model.Preparation, error) {
	f.record("get")
	return f.lookup(id)
}

func (f *fakeBackend) StartPreparation(ctx context.Context, token string, input model.StartPreparationInput) (*model.Preparation, error) {
	f.record("start")
	if f.failWith != nil {
		return nil, f.failWith
	}
	return &model.Preparation{
		ID:        "new-prep",
		Vehicle:   model.VehicleRef{ID: input.VehicleID},
		AgencyID:  input.AgencyID,
		Status:    model.PreparationStatusInProgress,
		StartTime: testNow,
	}, nil
}

func (f *fakeBackend) CompleteStep(ctx context.Context, token, id string, sub model.StepSubmission) (*model.Preparation, error) {
	f.record("step")
	f.wait()
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.mu.Lock()
	f.submissions = append(f.submissions, sub)
	f.mu.Unlock()
	if f.stepResult != nil {
		return f.stepResult(id, sub), nil
	}
	p, err := f.lookup(id)
	if err != nil {
		return nil, err
	}
	completedAt := testNow
	p.Steps = append(p.Steps, model.StepRecord{
		Step:        sub.Step,
		Completed:   true,
		CompletedAt: &completedAt,
		Notes:       sub.Notes,
		Photos:      []model.Photo{{URL: "/uploads/" + sub.PhotoName}},
	})
	f.mu.Lock()
	f.preparations[id] = p
	f.mu.Unlock()
	return p, nil
}

func (f *fakeBackend) CompletePreparation(ctx context.Context, token, id, notes string) (*model.Preparation, error) {
	f.record("complete")
	f.wait()
	if f.failWith != nil {
		return nil, f.failWith
	}
	p, err := f.lookup(id)
	if err != nil {
		return nil, err
	}
	end := testNow
	p.Status = model.PreparationStatusCompleted
	p.EndTime = &end
	p.Notes = notes
	return p, nil
}

func (f *fakeBackend) CancelPreparation(ctx context.Context, token, id, reason string) (*model.Preparation, error) {
	f.record("cancel")
	if f.failWith != nil {
		return nil, f.failWith
	}
	p, err := f.lookup(id)
	if err != nil {
		return nil, err
	}
	p.Status = model.PreparationStatusCancelled
	return p, nil
}

func (f *fakeBackend) UpdateSteps(ctx context.Context, token, id string, edit model.AdminEditRequest) (*model.Preparation, error) {
	f.record("update")
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.mu.Lock()
	f.edits = append(f.edits, edit)
	f.mu.Unlock()
	return f.lookup(id)
}

func (f *fakeBackend) GetVehicle(ctx context.Context, token, id string) (*model.Vehicle, error) {
	f.record("vehicle")
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vehicles[id]
	if !ok {
		return nil, &client.Error{Kind: client.KindNotFound, Status: 404, Message: "Véhicule introuvable"}
	}
	cp := *v
	return &cp, nil
}

func (f *fakeBackend) TodayClockEvents(ctx context.Context, token, agencyID string) (*model.ClockEvents, error) {
	f.record("events")
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	if f.events == nil {
		return &model.ClockEvents{}, nil
	}
	cp := *f.events
	return &cp, nil
}

func (f *fakeBackend) SubmitClockEvent(ctx context.Context, token string, input model.ClockEventInput) (*model.ClockEvents, error) {
	f.record("clock")
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clockInputs = append(f.clockInputs, input)
	ev := model.ClockEvents{}
	if f.events != nil {
		ev = *f.events
	}
	ts := input.Timestamp
	switch input.EventType {
	case model.ClockEventClockIn:
		ev.ClockIn = &ts
	case model.ClockEventBreakStart:
		ev.BreakStart = &ts
	case model.ClockEventBreakEnd:
		ev.BreakEnd = &ts
	case model.ClockEventClockOut:
		ev.ClockOut = &ts
	}
	f.events = &ev
	return &ev, nil
}

func (f *fakeBackend) TodaySchedule(ctx context.Context, token, agencyID string) (*model.ScheduleEntry, error) {
	f.record("schedule")
	if f.scheduleErr != nil {
		return nil, f.scheduleErr
	}
	return f.schedule, nil
}

type memorySnapshots struct {
	mu   sync.Mutex
	byID map[string]model.VehicleSnapshot
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{byID: make(map[string]model.VehicleSnapshot)}
}

func (m *memorySnapshots) Upsert(ctx context.Context, s *model.VehicleSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[s.VehicleID] = *s
	return nil
}

func (m *memorySnapshots) GetByVehicleID(ctx context.Context, id string) (*model.VehicleSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memorySnapshots) FindByPlate(ctx context.Context, plate string) ([]model.VehicleSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := utils.NormalizePlate(plate)
	var out []model.VehicleSnapshot
	for _, s := range m.byID {
		if key != "" && s.PlateKey == key {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeenAt.After(out[j].SeenAt) })
	return out, nil
}

type memoryAudits struct {
	mu     sync.Mutex
	audits []model.StepEditAudit
}

func (m *memoryAudits) Create(ctx context.Context, a *model.StepEditAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, *a)
	return nil
}

func (m *memoryAudits) List(ctx context.Context, filter repository.StepEditAuditFilter) ([]model.StepEditAudit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.StepEditAudit
	for i := len(m.audits) - 1; i >= 0; i-- {
		a := m.audits[i]
		if filter.PreparationID != nil && a.PreparationID != *filter.PreparationID {
			continue
		}
		out = append(out, a)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *memoryAudits) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.audits)
}

type closeCounter struct {
	io.Reader
	mu     sync.Mutex
	closes int
}

func photoReader(data []byte) *closeCounter {
	return &closeCounter{Reader: strings.NewReader(string(data))}
}

func (c *closeCounter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *closeCounter) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func preparer() model.Session {
	return model.Session{
		Principal: model.Principal{UserID: "u1", Role: model.RolePreparer, AgencyIDs: []string{"a1"}},
		Token:     "tok",
		AgencyID:  "a1",
	}
}

func admin() model.Session {
	return model.Session{
		Principal: model.Principal{UserID: "admin-1", Role: model.RoleAdmin},
		Token:     "admin-tok",
	}
}

type fixture struct {
	backend   *fakeBackend
	snapshots *memorySnapshots
	audits    *memoryAudits
	service   *PreparationService
}

func newFixture() *fixture {
	backend := newFakeBackend()
	snapshots := newMemorySnapshots()
	audits := &memoryAudits{}
	log := zerolog.Nop()

	vehicles := NewVehicleService(backend, snapshots, log)
	vehicles.now = func() time.Time { return testNow }

	svc := NewPreparationService(backend, vehicles, audits, catalog.Default(), 1<<20, log)
	svc.now = func() time.Time { return testNow }

	return &fixture{backend: backend, snapshots: snapshots, audits: audits, service: svc}
}

func (f *fixture) seed(p model.Preparation) {
	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	cp := p
	f.backend.preparations[p.ID] = &cp
}

func inProgressPrep(id string, steps ...model.StepRecord) model.Preparation {
	return model.Preparation{
		ID:        id,
		Vehicle:   model.VehicleRef{ID: "veh-1"},
		UserID:    "u1",
		AgencyID:  "a1",
		Status:    model.PreparationStatusInProgress,
		Steps:     steps,
		StartTime: testNow.Add(-30 * time.Minute),
	}
}
