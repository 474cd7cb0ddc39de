package analytics

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/audit"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/queue"
)

type mockRepo struct {
	mu   sync.Mutex
	rows map[string]*Assignment
}

func newMockRepo() *mockRepo {
	return &mockRepo{rows: make(map[string]*Assignment)}
}

func key(patientID uuid.UUID, experiment string) string {
	return patientID.String() + "/" + experiment
}

func (m *mockRepo) Insert(ctx context.Context, a *Assignment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(a.PatientID, a.Experiment)
	if _, ok := m.rows[k]; ok {
		return false, nil
	}
	cp := *a
	m.rows[k] = &cp
	return true, nil
}

func (m *mockRepo) Get(ctx context.Context, patientID uuid.UUID, experiment string) (*Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[key(patientID, experiment)]
	if !ok {
		return nil, ErrNoAssignment
	}
	cp := *a
	return &cp, nil
}

func TestPickVariantDeterministic(t *testing.T) {
	pid := uuid.New()
	first := PickVariant(pid, "reminder_cadence")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, PickVariant(pid, "reminder_cadence"))
	}
	assert.Contains(t, []string{"daily", "every_3_days", "weekly"}, first)
	assert.Contains(t, []string{"A", "B"}, PickVariant(pid, "unknown_experiment"))
}

func TestHandleAssignVariant(t *testing.T) {
	repo := newMockRepo()
	rec := audit.NewMemoryRecorder()
	w := NewWorker(repo, rec, zerolog.Nop())
	pid := uuid.New()

	job := queue.NewJob(queue.TypeAssignVariant, map[string]any{
		"patient_id": pid.String(),
		"experiment": "reminder_cadence",
	}, 3)
	require.NoError(t, w.HandleAssignVariant(context.Background(), job))

	got, err := repo.Get(context.Background(), pid, "reminder_cadence")
	require.NoError(t, err)
	assert.Equal(t, PickVariant(pid, "reminder_cadence"), got.Variant)
	assert.Len(t, rec.ByAction("analytics.assign_variant"), 1)
}

func TestHandleAssignVariantRedelivery(t *testing.T) {
	repo := newMockRepo()
	rec := audit.NewMemoryRecorder()
	w := NewWorker(repo, rec, zerolog.Nop())
	pid := uuid.New()

	job := queue.NewJob(queue.TypeAssignVariant, map[string]any{
		"patient_id": pid.String(),
		"experiment": "reminder_cadence",
	}, 3)
	require.NoError(t, w.HandleAssignVariant(context.Background(), job))
	require.NoError(t, w.HandleAssignVariant(context.Background(), job))

	assert.Len(t, repo.rows, 1)
	// Only the attempt that created the row audits.
	assert.Len(t, rec.ByAction("analytics.assign_variant"), 1)
}

func TestHandleAssignVariantBadArgs(t *testing.T) {
	w := NewWorker(newMockRepo(), audit.NewMemoryRecorder(), zerolog.Nop())

	job := queue.NewJob(queue.TypeAssignVariant, map[string]any{"patient_id": "nope"}, 3)
	err := w.HandleAssignVariant(context.Background(), job)
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))

	job = queue.NewJob(queue.TypeAssignVariant, map[string]any{"patient_id": uuid.New().String()}, 3)
	err = w.HandleAssignVariant(context.Background(), job)
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
}
