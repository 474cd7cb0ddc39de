package surveys

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/domain/tasks"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/audit"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/queue"
)

type mockRepo struct {
	mu   sync.Mutex
	rows []*Survey
}

func (m *mockRepo) Insert(ctx context.Context, s *Survey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	cp := *s
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.rows {
		if s.ID == id {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) List(ctx context.Context, f Filter, limit int) ([]*Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Survey
	for i := len(m.rows) - 1; i >= 0 && len(out) < limit; i-- {
		s := m.rows[i]
		if f.Instrument != "" && s.Instrument != f.Instrument {
			continue
		}
		if f.PatientID != nil && s.PatientID != *f.PatientID {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockRepo) HasRecent(ctx context.Context, patientID uuid.UUID, instrument string, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.rows {
		if s.PatientID == patientID && s.Instrument == instrument && !s.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) ListSince(ctx context.Context, since time.Time) ([]*Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Survey
	for _, s := range m.rows {
		if !s.CreatedAt.Before(since) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

// fakeTasks mirrors the storage-level uniqueness of escalation and reminder
// tasks: one escalation per survey, one open reminder per patient/instrument.
type fakeTasks struct {
	escalations map[uuid.UUID]bool
	reminders   map[string]bool
	escCalls    int
	remCalls    int
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{escalations: make(map[uuid.UUID]bool), reminders: make(map[string]bool)}
}

func (f *fakeTasks) CreateCareEscalation(ctx context.Context, surveyID, patientID uuid.UUID, instrument string, score int) (*tasks.Task, bool, error) {
	f.escCalls++
	if f.escalations[surveyID] {
		return &tasks.Task{}, false, nil
	}
	f.escalations[surveyID] = true
	return &tasks.Task{ID: uuid.New()}, true, nil
}

func (f *fakeTasks) CreateProReminder(ctx context.Context, patientID uuid.UUID, instrument string, dueAt time.Time) (*tasks.Task, bool, error) {
	f.remCalls++
	key := patientID.String() + "/" + instrument
	if f.reminders[key] {
		return &tasks.Task{}, false, nil
	}
	f.reminders[key] = true
	return &tasks.Task{ID: uuid.New()}, true, nil
}

type fakeAppointments struct {
	rows  []AppointmentPatient
	since time.Time
}

func (f *fakeAppointments) RecentWithPatients(ctx context.Context, since time.Time) ([]AppointmentPatient, error) {
	f.since = since
	return f.rows, nil
}

func newTestService() (*Service, *mockRepo, *fakeTasks, *audit.MemoryRecorder) {
	repo := &mockRepo{}
	ft := newFakeTasks()
	rec := audit.NewMemoryRecorder()
	return NewService(repo, ft, rec), repo, ft, rec
}

func answers(vals ...int) []int { return vals }

func TestScoring(t *testing.T) {
	// PHQ-9 counts only the first nine items.
	assert.Equal(t, 18, Score("phq9", answers(2, 2, 2, 2, 2, 2, 2, 2, 2, 3)))
	assert.Equal(t, 18, Score("PHQ-9", answers(2, 2, 2, 2, 2, 2, 2, 2, 2)))
	// GAD-7 counts only the first seven.
	assert.Equal(t, 14, Score("gad7", answers(2, 2, 2, 2, 2, 2, 2, 3, 3)))
	// Unknown instruments sum everything.
	assert.Equal(t, 10, Score("whodas", answers(1, 2, 3, 4)))
}

func TestShouldEscalateBoundaryInclusive(t *testing.T) {
	assert.True(t, ShouldEscalate("phq9", 15))
	assert.False(t, ShouldEscalate("phq9", 14))
	assert.True(t, ShouldEscalate("gad7", 15))
	assert.False(t, ShouldEscalate("whodas", 100))
}

func TestSubmitValidation(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Submit(context.Background(), "phq9", &SubmitRequest{Answers: answers(1)})
	require.Error(t, err)

	_, err = svc.Submit(context.Background(), "phq9", &SubmitRequest{PatientID: uuid.New()})
	require.Error(t, err)
}

func TestSubmitStoresAndAudits(t *testing.T) {
	svc, repo, ft, rec := newTestService()
	pid := uuid.New()

	result, err := svc.Submit(context.Background(), "PHQ-9", &SubmitRequest{
		PatientID: pid,
		Answers:   answers(1, 1, 1, 1, 1, 1, 1, 1, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, "phq9", result.Survey.Instrument)
	assert.Equal(t, 9, result.Survey.Score)
	assert.Equal(t, "en", result.Survey.Language)
	assert.False(t, result.Escalated)
	assert.Equal(t, 0, ft.escCalls)
	assert.Len(t, repo.rows, 1)
	assert.Len(t, rec.ByAction("survey.submit"), 1)
}

func TestSubmitEscalatesAtThreshold(t *testing.T) {
	// Score of exactly 15 escalates.
	svc, _, ft, _ := newTestService()

	result, err := svc.Submit(context.Background(), "phq9", &SubmitRequest{
		PatientID: uuid.New(),
		Answers:   answers(2, 2, 2, 2, 2, 2, 1, 1, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, 15, result.Survey.Score)
	assert.True(t, result.Escalated)
	require.NotNil(t, result.EscalationTaskID)
	assert.True(t, ft.escalations[result.Survey.ID])
}

func TestSubmitBelowThresholdNoEscalation(t *testing.T) {
	svc, _, ft, _ := newTestService()

	result, err := svc.Submit(context.Background(), "phq9", &SubmitRequest{
		PatientID: uuid.New(),
		Answers:   answers(2, 2, 2, 2, 2, 2, 1, 1, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, 14, result.Survey.Score)
	assert.False(t, result.Escalated)
	assert.Equal(t, 0, ft.escCalls)
}

func TestReminderSweep(t *testing.T) {
	svc, repo, ft, _ := newTestService()
	_ = svc

	surveyed := uuid.New()
	unsurveyed := uuid.New()
	require.NoError(t, repo.Insert(context.Background(), &Survey{
		PatientID: surveyed, Instrument: "phq9", Score: 4, Answers: answers(1, 1, 1, 1),
	}))

	appts := &fakeAppointments{rows: []AppointmentPatient{
		{AppointmentID: uuid.New(), PatientID: surveyed},
		{AppointmentID: uuid.New(), PatientID: unsurveyed},
		{AppointmentID: uuid.New(), PatientID: unsurveyed},
	}}
	w := NewWorker(repo, appts, ft, SweepWindows{}, zerolog.Nop())

	job := queue.NewJob(queue.TypeReminderSweep, map[string]any{}, 3)
	require.NoError(t, w.HandleReminderSweep(context.Background(), job))

	// Only the patient without a fresh submission gets a reminder, once.
	assert.Equal(t, 1, ft.remCalls)
	assert.True(t, ft.reminders[unsurveyed.String()+"/phq9"])
	assert.False(t, ft.reminders[surveyed.String()+"/phq9"])
}

func TestReminderSweepRerunIdempotent(t *testing.T) {
	_, repo, ft, _ := newTestService()
	pid := uuid.New()
	appts := &fakeAppointments{rows: []AppointmentPatient{{AppointmentID: uuid.New(), PatientID: pid}}}
	w := NewWorker(repo, appts, ft, SweepWindows{}, zerolog.Nop())

	job := queue.NewJob(queue.TypeReminderSweep, map[string]any{}, 3)
	require.NoError(t, w.HandleReminderSweep(context.Background(), job))
	require.NoError(t, w.HandleReminderSweep(context.Background(), job))

	assert.Len(t, ft.reminders, 1)
}

func TestReminderSweepDaysBackWidensWindow(t *testing.T) {
	_, repo, ft, _ := newTestService()
	appts := &fakeAppointments{rows: []AppointmentPatient{{AppointmentID: uuid.New(), PatientID: uuid.New()}}}
	w := NewWorker(repo, appts, ft, SweepWindows{}, zerolog.Nop())

	job := queue.NewJob(queue.TypeReminderSweep, map[string]any{"days_back": float64(10)}, 3)
	require.NoError(t, w.HandleReminderSweep(context.Background(), job))

	// The listing window is pushed back ten days instead of the default.
	cutoff := time.Now().UTC().Add(-9 * 24 * time.Hour)
	assert.True(t, appts.since.Before(cutoff), "expected since before %s, got %s", cutoff, appts.since)
	assert.Equal(t, 1, ft.remCalls)
}

func TestReminderSweepConfiguredWindows(t *testing.T) {
	_, repo, ft, _ := newTestService()
	pid := uuid.New()

	// A submission from three days ago counts as fresh under the default
	// seven-day window but not under a one-day window.
	require.NoError(t, repo.Insert(context.Background(), &Survey{
		PatientID: pid, Instrument: "phq9", Score: 4,
		Answers: answers(1, 1, 1, 1), CreatedAt: time.Now().UTC().Add(-3 * 24 * time.Hour),
	}))
	appts := &fakeAppointments{rows: []AppointmentPatient{{AppointmentID: uuid.New(), PatientID: pid}}}

	w := NewWorker(repo, appts, ft, SweepWindows{SurveyFreshness: 24 * time.Hour}, zerolog.Nop())
	job := queue.NewJob(queue.TypeReminderSweep, map[string]any{}, 3)
	require.NoError(t, w.HandleReminderSweep(context.Background(), job))
	assert.Equal(t, 1, ft.remCalls)

	ftDefault := newFakeTasks()
	wDefault := NewWorker(repo, appts, ftDefault, SweepWindows{}, zerolog.Nop())
	require.NoError(t, wDefault.HandleReminderSweep(context.Background(), job))
	assert.Equal(t, 0, ftDefault.remCalls)
}

func TestEscalationSweepBackfills(t *testing.T) {
	svc, repo, ft, _ := newTestService()
	_ = svc

	high := &Survey{PatientID: uuid.New(), Instrument: "phq9", Score: 20, Answers: answers(3, 3, 3, 3, 3, 3, 2)}
	low := &Survey{PatientID: uuid.New(), Instrument: "phq9", Score: 5, Answers: answers(1, 1, 1, 1, 1)}
	require.NoError(t, repo.Insert(context.Background(), high))
	require.NoError(t, repo.Insert(context.Background(), low))

	w := NewWorker(repo, &fakeAppointments{}, ft, SweepWindows{}, zerolog.Nop())
	job := queue.NewJob(queue.TypeEscalationSweep, map[string]any{}, 3)
	require.NoError(t, w.HandleEscalationSweep(context.Background(), job))

	assert.True(t, ft.escalations[high.ID])
	assert.False(t, ft.escalations[low.ID])

	// Re-running is a no-op per survey.
	require.NoError(t, w.HandleEscalationSweep(context.Background(), job))
	assert.Len(t, ft.escalations, 1)
}

func TestSweepSkipsAlreadyEscalated(t *testing.T) {
	// A survey escalated inline at submit time is not escalated again by the
	// sweep.
	svc, repo, ft, _ := newTestService()

	result, err := svc.Submit(context.Background(), "phq9", &SubmitRequest{
		PatientID: uuid.New(),
		Answers:   answers(3, 3, 3, 3, 3, 3, 3, 3, 3),
	})
	require.NoError(t, err)
	require.True(t, result.Escalated)

	w := NewWorker(repo, &fakeAppointments{}, ft, SweepWindows{}, zerolog.Nop())
	job := queue.NewJob(queue.TypeEscalationSweep, map[string]any{}, 3)
	require.NoError(t, w.HandleEscalationSweep(context.Background(), job))

	assert.Len(t, ft.escalations, 1)
}
