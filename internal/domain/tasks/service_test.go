package tasks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/audit"
)

// mockRepo mirrors the partial unique indexes with in-memory natural keys.
type mockRepo struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*Task
	keys  map[string]bool
}

func newMockRepo() *mockRepo {
	return &mockRepo{tasks: make(map[uuid.UUID]*Task), keys: make(map[string]bool)}
}

func naturalKey(t *Task) string {
	switch t.Type {
	case TypeClaimCorrection:
		return "claim:" + t.ClaimID.String()
	case TypeCareEscalation:
		return "survey:" + t.SurveyID.String()
	case TypeProReminder:
		return "reminder:" + t.PatientID.String() + ":" + t.Instrument
	case TypeEligibilityFollowup:
		return "elig:" + t.AppointmentID.String() + ":" + t.Issue
	}
	return ""
}

func (m *mockRepo) Create(_ context.Context, t *Task) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := naturalKey(t)
	if key != "" && m.keys[key] {
		return false, nil
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = StatusOpen
	}
	t.CreatedAt = time.Now()
	m.tasks[t.ID] = t
	if key != "" {
		m.keys[key] = true
	}
	return true, nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Task, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*Task
	for _, t := range m.tasks {
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		items = append(items, t)
	}
	return items, len(items), nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, id uuid.UUID, from []string, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if t.Status == f {
			// reminder dedup only covers open tasks
			if t.Type == TypeProReminder && t.Status == StatusOpen {
				delete(m.keys, naturalKey(t))
			}
			t.Status = to
			return true, nil
		}
	}
	return false, nil
}

func newTestService() (*Service, *mockRepo, *audit.MemoryRecorder) {
	repo := newMockRepo()
	rec := audit.NewMemoryRecorder()
	return NewService(repo, rec), repo, rec
}

func TestCreateClaimCorrectionDedup(t *testing.T) {
	svc, _, rec := newTestService()
	ctx := context.Background()
	claimID := uuid.New()

	_, created, err := svc.CreateClaimCorrection(ctx, claimID, "denied: CO-97")
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = svc.CreateClaimCorrection(ctx, claimID, "denied again")
	require.NoError(t, err)
	assert.False(t, created)

	assert.Len(t, rec.ByAction("task.create"), 1)
}

func TestCreateCareEscalationOncePerSurvey(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	surveyID, patientID := uuid.New(), uuid.New()

	first, created, err := svc.CreateCareEscalation(ctx, surveyID, patientID, "phq9", 21)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "nurse_queue", first.AssignedTo)

	_, created, err = svc.CreateCareEscalation(ctx, surveyID, patientID, "phq9", 21)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestProReminderReopensAfterDone(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	patientID := uuid.New()
	due := time.Now().Add(24 * time.Hour)

	first, created, err := svc.CreateProReminder(ctx, patientID, "phq9", due)
	require.NoError(t, err)
	require.True(t, created)

	// Second sweep while the first reminder is still open: suppressed.
	_, created, err = svc.CreateProReminder(ctx, patientID, "phq9", due)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = svc.Transition(ctx, "nurse-1", first.ID, StatusDone)
	require.NoError(t, err)

	// Once worked, the next sweep may open a fresh reminder.
	_, created, err = svc.CreateProReminder(ctx, patientID, "phq9", due)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestTransitionLifecycle(t *testing.T) {
	svc, _, rec := newTestService()
	ctx := context.Background()

	task, _, err := svc.CreateEligibilityFollowup(ctx, uuid.New(), "plan_mismatch", nil)
	require.NoError(t, err)

	got, err := svc.Transition(ctx, "biller-1", task.ID, StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, got.Status)

	got, err = svc.Transition(ctx, "biller-1", task.ID, StatusDone)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)

	// done is terminal
	_, err = svc.Transition(ctx, "biller-1", task.ID, StatusCanceled)
	assert.Error(t, err)

	assert.Len(t, rec.ByAction("task.status"), 2)
}

func TestTransitionRejectsInvalidStatus(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Transition(context.Background(), "x", uuid.New(), "OPEN")
	assert.Error(t, err)
}

func TestTransitionToOpenNotReachable(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	task, _, err := svc.CreateClaimCorrection(ctx, uuid.New(), "r")
	require.NoError(t, err)

	_, err = svc.Transition(ctx, "x", task.ID, StatusOpen)
	assert.Error(t, err)
}
