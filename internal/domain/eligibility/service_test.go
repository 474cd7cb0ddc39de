package eligibility

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/domain/tasks"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/adapters"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/audit"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/queue"
)

type mockRepo struct {
	mu   sync.Mutex
	rows []*Response
}

func (m *mockRepo) Insert(ctx context.Context, r *Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	m.rows = append(m.rows, &cp)
	r.ID = cp.ID
	return nil
}

func (m *mockRepo) Latest(ctx context.Context, appointmentID uuid.UUID) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].AppointmentID == appointmentID {
			cp := *m.rows[i]
			return &cp, nil
		}
	}
	return nil, ErrNoResponse
}

func (m *mockRepo) ListByAppointment(ctx context.Context, appointmentID uuid.UUID, limit int) ([]*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Response
	for i := len(m.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if m.rows[i].AppointmentID == appointmentID {
			cp := *m.rows[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakePayer struct {
	result *adapters.EligibilityResult
	err    error
	calls  int
}

func (f *fakePayer) Check(ctx context.Context, req *adapters.EligibilityRequest) (*adapters.EligibilityResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeTasks mirrors the unique index on (appointment_id, issue) for open
// eligibility followups.
type fakeTasks struct {
	seen  map[string]bool
	calls int
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{seen: make(map[string]bool)}
}

func (f *fakeTasks) CreateEligibilityFollowup(ctx context.Context, appointmentID uuid.UUID, issue string, details map[string]any) (*tasks.Task, bool, error) {
	f.calls++
	key := appointmentID.String() + "/" + issue
	if f.seen[key] {
		return &tasks.Task{}, false, nil
	}
	f.seen[key] = true
	return &tasks.Task{ID: uuid.New()}, true, nil
}

type captureEnqueuer struct {
	jobs []map[string]any
	typ  []string
	err  error
}

func (c *captureEnqueuer) Enqueue(ctx context.Context, jobType string, args map[string]any) (*queue.EnqueueResult, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.typ = append(c.typ, jobType)
	c.jobs = append(c.jobs, args)
	return &queue.EnqueueResult{JobID: fmt.Sprintf("job-%d", len(c.jobs)), Stream: "test"}, nil
}

func newTestService(payer Payer, ft FollowupTasks) (*Service, *mockRepo, *captureEnqueuer, *audit.MemoryRecorder) {
	repo := &mockRepo{}
	enq := &captureEnqueuer{}
	rec := audit.NewMemoryRecorder()
	svc := NewService(repo, payer, ft, enq, rec)
	return svc, repo, enq, rec
}

func eligibleResult() *adapters.EligibilityResult {
	return &adapters.EligibilityResult{Eligible: true, Plan: "PPO-BASIC", CopayCents: 2500}
}

func TestEnqueueCheck(t *testing.T) {
	svc, _, enq, _ := newTestService(&fakePayer{result: eligibleResult()}, newFakeTasks())
	id := uuid.New()

	res, err := svc.EnqueueCheck(context.Background(), &CheckRequest{AppointmentID: id, InsuranceNumber: "INS-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.JobID)
	require.Len(t, enq.jobs, 1)
	assert.Equal(t, queue.TypeEligibilityCheck, enq.typ[0])
	assert.Equal(t, id.String(), enq.jobs[0]["appointment_id"])
}

func TestEnqueueCheckRequiresAppointment(t *testing.T) {
	svc, _, _, _ := newTestService(&fakePayer{result: eligibleResult()}, newFakeTasks())

	_, err := svc.EnqueueCheck(context.Background(), &CheckRequest{})
	require.Error(t, err)
}

func TestCheckEligibleNoFollowup(t *testing.T) {
	ft := newFakeTasks()
	svc, repo, _, rec := newTestService(&fakePayer{result: eligibleResult()}, ft)
	id := uuid.New()

	resp, followup, err := svc.Check(context.Background(), &CheckRequest{
		AppointmentID:   id,
		InsuranceNumber: "INS-1",
	})
	require.NoError(t, err)
	assert.True(t, resp.Eligible)
	assert.Equal(t, "PPO-BASIC", resp.Plan)
	assert.False(t, followup)
	assert.Equal(t, 0, ft.calls)
	assert.Len(t, repo.rows, 1)
	assert.Len(t, rec.ByAction("eligibility.response"), 1)
}

func TestCheckIneligibleOpensFollowup(t *testing.T) {
	ft := newFakeTasks()
	svc, _, _, _ := newTestService(&fakePayer{result: &adapters.EligibilityResult{Eligible: false, Plan: "PPO-BASIC"}}, ft)
	id := uuid.New()

	_, followup, err := svc.Check(context.Background(), &CheckRequest{
		AppointmentID:   id,
		InsuranceNumber: "INS-1",
	})
	require.NoError(t, err)
	assert.True(t, followup)
	assert.True(t, ft.seen[id.String()+"/"+IssueIneligible])
}

func TestCheckMissingInsuranceIssue(t *testing.T) {
	// No insurance number reports missing_insurance even when the payer says
	// eligible.
	ft := newFakeTasks()
	svc, _, _, _ := newTestService(&fakePayer{result: eligibleResult()}, ft)
	id := uuid.New()

	_, followup, err := svc.Check(context.Background(), &CheckRequest{AppointmentID: id})
	require.NoError(t, err)
	assert.True(t, followup)
	assert.True(t, ft.seen[id.String()+"/"+IssueMissingInsurance])
}

func TestCheckFollowupOncePerAppointment(t *testing.T) {
	ft := newFakeTasks()
	svc, repo, _, _ := newTestService(&fakePayer{result: &adapters.EligibilityResult{Eligible: false}}, ft)
	id := uuid.New()
	req := &CheckRequest{AppointmentID: id, InsuranceNumber: "INS-1"}

	_, first, err := svc.Check(context.Background(), req)
	require.NoError(t, err)
	_, second, err := svc.Check(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	// Each attempt still appends its own response row.
	assert.Len(t, repo.rows, 2)
}

func TestWorkerTransientErrorRetries(t *testing.T) {
	payer := &fakePayer{err: &adapters.Error{Op: "eligibility check", StatusCode: 503, Transient: true}}
	ft := newFakeTasks()
	svc, repo, _, _ := newTestService(payer, ft)
	w := NewWorker(svc, zerolog.Nop())

	job := queue.NewJob(queue.TypeEligibilityCheck, map[string]any{
		"appointment_id":   uuid.New().String(),
		"insurance_number": "INS-1",
	}, 5)
	err := w.HandleCheck(context.Background(), job)

	require.Error(t, err)
	assert.False(t, queue.IsPermanent(err))
	// Nothing recorded and no followup on a failed adapter call.
	assert.Empty(t, repo.rows)
	assert.Equal(t, 0, ft.calls)
}

func TestWorkerBusinessErrorPermanent(t *testing.T) {
	payer := &fakePayer{err: &adapters.Error{Op: "eligibility check", StatusCode: 422}}
	svc, _, _, _ := newTestService(payer, newFakeTasks())
	w := NewWorker(svc, zerolog.Nop())

	job := queue.NewJob(queue.TypeEligibilityCheck, map[string]any{
		"appointment_id": uuid.New().String(),
	}, 5)
	err := w.HandleCheck(context.Background(), job)

	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
}

func TestWorkerBadAppointmentIDPermanent(t *testing.T) {
	svc, _, _, _ := newTestService(&fakePayer{result: eligibleResult()}, newFakeTasks())
	w := NewWorker(svc, zerolog.Nop())

	job := queue.NewJob(queue.TypeEligibilityCheck, map[string]any{"appointment_id": "not-a-uuid"}, 5)
	err := w.HandleCheck(context.Background(), job)

	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
}

func TestWorkerFollowupOnceAcrossRetries(t *testing.T) {
	// First two attempts hit a transient payer outage, the third lands an
	// ineligible answer. Exactly one followup comes out of the check.
	payer := &fakePayer{err: &adapters.Error{Op: "eligibility check", StatusCode: 503, Transient: true}}
	ft := newFakeTasks()
	svc, repo, _, _ := newTestService(payer, ft)
	w := NewWorker(svc, zerolog.Nop())

	id := uuid.New()
	args := map[string]any{"appointment_id": id.String(), "insurance_number": "INS-1"}

	for attempt := 0; attempt < 2; attempt++ {
		job := queue.NewJob(queue.TypeEligibilityCheck, args, 5)
		job.Attempt = attempt
		err := w.HandleCheck(context.Background(), job)
		require.Error(t, err)
		assert.False(t, queue.IsPermanent(err))
	}

	payer.err = nil
	payer.result = &adapters.EligibilityResult{Eligible: false}
	job := queue.NewJob(queue.TypeEligibilityCheck, args, 5)
	job.Attempt = 2
	require.NoError(t, w.HandleCheck(context.Background(), job))

	assert.Equal(t, 1, ft.calls)
	assert.Len(t, repo.rows, 1)
}

func TestLatestAndHistory(t *testing.T) {
	svc, repo, _, _ := newTestService(&fakePayer{result: eligibleResult()}, newFakeTasks())
	id := uuid.New()

	require.NoError(t, repo.Insert(context.Background(), &Response{AppointmentID: id, Eligible: false}))
	require.NoError(t, repo.Insert(context.Background(), &Response{AppointmentID: id, Eligible: true, Plan: "PPO-BASIC"}))

	latest, err := svc.Latest(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, latest.Eligible)

	history, err := svc.History(context.Background(), id, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	_, err = svc.Latest(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNoResponse)
}
