package claims

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/domain/tasks"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/adapters"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/queue"
)

type fakeBilling struct {
	ack   *adapters.ClaimAck
	err   error
	calls int
}

func (f *fakeBilling) Submit(_ context.Context, _ *adapters.ClaimSubmission) (*adapters.ClaimAck, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.ack, nil
}

type fakeTasks struct {
	corrections []uuid.UUID
	seen        map[uuid.UUID]bool
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{seen: make(map[uuid.UUID]bool)}
}

func (f *fakeTasks) CreateClaimCorrection(_ context.Context, claimID uuid.UUID, _ string) (*tasks.Task, bool, error) {
	if f.seen[claimID] {
		return nil, false, nil
	}
	f.seen[claimID] = true
	f.corrections = append(f.corrections, claimID)
	return &tasks.Task{ID: uuid.New()}, true, nil
}

func submitJob(claimID uuid.UUID) *queue.Job {
	return queue.NewJob(queue.TypeClaimSubmit, map[string]any{"claim_id": claimID.String()}, 5)
}

func TestHandleSubmitAccepted(t *testing.T) {
	repo := newMockRepo()
	c := seedClaim(t, repo, StatusNew)
	billing := &fakeBilling{ack: &adapters.ClaimAck{Accepted: true, PayerRef: "CH-1"}}
	w := newTestWorker(repo, billing, newFakeTasks())

	require.NoError(t, w.HandleSubmit(context.Background(), submitJob(c.ID)))
	assert.Equal(t, StatusSubmitted, repo.status(t, c.ID))

	got, err := repo.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "CH-1", got.PayerRef)
}

func TestHandleSubmitRedeliveryIsNoop(t *testing.T) {
	repo := newMockRepo()
	c := seedClaim(t, repo, StatusSubmitted)
	billing := &fakeBilling{ack: &adapters.ClaimAck{Accepted: true}}
	w := newTestWorker(repo, billing, newFakeTasks())

	require.NoError(t, w.HandleSubmit(context.Background(), submitJob(c.ID)))
	assert.Zero(t, billing.calls)
	assert.Equal(t, StatusSubmitted, repo.status(t, c.ID))
}

func TestHandleSubmitTransientRetries(t *testing.T) {
	repo := newMockRepo()
	c := seedClaim(t, repo, StatusNew)
	billing := &fakeBilling{err: &adapters.Error{Op: "claim submit", Transient: true}}
	w := newTestWorker(repo, billing, newFakeTasks())

	err := w.HandleSubmit(context.Background(), submitJob(c.ID))
	require.Error(t, err)
	assert.False(t, queue.IsPermanent(err))
	// Claim stays submittable while the transport retries.
	assert.Equal(t, StatusNew, repo.status(t, c.ID))
}

func TestHandleSubmitTransientFinalAttemptParks(t *testing.T) {
	repo := newMockRepo()
	c := seedClaim(t, repo, StatusNew)
	billing := &fakeBilling{err: &adapters.Error{Op: "claim submit", Transient: true}}
	w := newTestWorker(repo, billing, newFakeTasks())

	job := submitJob(c.ID)
	job.Attempt = job.MaxRetries

	err := w.HandleSubmit(context.Background(), job)
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
	assert.Equal(t, StatusRejected, repo.status(t, c.ID))

	got, _ := repo.GetByID(context.Background(), c.ID)
	assert.Equal(t, "adapter_unavailable", got.DenialReason)
}

func TestHandleSubmitBusinessRejection(t *testing.T) {
	repo := newMockRepo()
	c := seedClaim(t, repo, StatusNew)
	billing := &fakeBilling{err: &adapters.Error{Op: "claim submit", StatusCode: 422}}
	w := newTestWorker(repo, billing, newFakeTasks())

	err := w.HandleSubmit(context.Background(), submitJob(c.ID))
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
	assert.Equal(t, StatusRejected, repo.status(t, c.ID))
}

func TestHandleSubmitUnknownClaimIsPermanent(t *testing.T) {
	w := newTestWorker(newMockRepo(), &fakeBilling{}, newFakeTasks())
	err := w.HandleSubmit(context.Background(), submitJob(uuid.New()))
	assert.True(t, queue.IsPermanent(err))
}

func remitJob(payments []map[string]any) *queue.Job {
	return queue.NewJob(queue.TypeRemitIngest, map[string]any{
		"remit_id": "r-1",
		"payments": payments,
	}, 5)
}

func TestHandleRemitPaid(t *testing.T) {
	repo := newMockRepo()
	c := seedClaim(t, repo, StatusSubmitted)
	w := newTestWorker(repo, &fakeBilling{}, newFakeTasks())

	err := w.HandleRemit(context.Background(), remitJob([]map[string]any{
		{"claim_id": c.ID.String(), "paid_cents": float64(12500)},
	}))
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, repo.status(t, c.ID))
}

func TestHandleRemitDeniedOpensCorrection(t *testing.T) {
	repo := newMockRepo()
	c := seedClaim(t, repo, StatusSubmitted)
	ft := newFakeTasks()
	w := newTestWorker(repo, &fakeBilling{}, ft)

	err := w.HandleRemit(context.Background(), remitJob([]map[string]any{
		{"claim_id": c.ID.String(), "paid_cents": float64(0), "denial_reason": "CO-45"},
	}))
	require.NoError(t, err)
	assert.Equal(t, StatusDenied, repo.status(t, c.ID))
	require.Len(t, ft.corrections, 1)
	assert.Equal(t, c.ID, ft.corrections[0])

	got, _ := repo.GetByID(context.Background(), c.ID)
	assert.Equal(t, "CO-45", got.DenialReason)
}

func TestHandleRemitRedeliveryDoesNotDoubleApply(t *testing.T) {
	repo := newMockRepo()
	c := seedClaim(t, repo, StatusSubmitted)
	ft := newFakeTasks()
	w := newTestWorker(repo, &fakeBilling{}, ft)

	job := remitJob([]map[string]any{
		{"claim_id": c.ID.String(), "paid_cents": float64(0)},
	})
	require.NoError(t, w.HandleRemit(context.Background(), job))
	require.NoError(t, w.HandleRemit(context.Background(), job))

	assert.Equal(t, StatusDenied, repo.status(t, c.ID))
	assert.Len(t, ft.corrections, 1)
}

func TestHandleRemitDeniedClaimStillOwesCorrection(t *testing.T) {
	// A crash between the DENIED write and the task insert leaves the claim
	// denied with no correction task; the redelivery must still open it.
	repo := newMockRepo()
	c := seedClaim(t, repo, StatusDenied)
	ft := newFakeTasks()
	w := newTestWorker(repo, &fakeBilling{}, ft)

	err := w.HandleRemit(context.Background(), remitJob([]map[string]any{
		{"claim_id": c.ID.String(), "paid_cents": float64(0), "denial_reason": "CO-45"},
	}))
	require.NoError(t, err)
	assert.Equal(t, StatusDenied, repo.status(t, c.ID))
	require.Len(t, ft.corrections, 1)
	assert.Equal(t, c.ID, ft.corrections[0])
}

func TestHandleRemitDenialForPaidClaimSkips(t *testing.T) {
	// A stale denial line for a claim that already resolved PAID must not
	// reopen it or file a correction.
	repo := newMockRepo()
	c := seedClaim(t, repo, StatusPaid)
	ft := newFakeTasks()
	w := newTestWorker(repo, &fakeBilling{}, ft)

	err := w.HandleRemit(context.Background(), remitJob([]map[string]any{
		{"claim_id": c.ID.String(), "paid_cents": float64(0)},
	}))
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, repo.status(t, c.ID))
	assert.Empty(t, ft.corrections)
}

func TestHandleRemitUnknownClaimSkips(t *testing.T) {
	repo := newMockRepo()
	known := seedClaim(t, repo, StatusSubmitted)
	w := newTestWorker(repo, &fakeBilling{}, newFakeTasks())

	err := w.HandleRemit(context.Background(), remitJob([]map[string]any{
		{"claim_id": uuid.NewString(), "paid_cents": float64(500)},
		{"claim_id": known.ID.String(), "paid_cents": float64(500)},
	}))
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, repo.status(t, known.ID))
}

func TestHandleRemitDefaultDenialCode(t *testing.T) {
	repo := newMockRepo()
	c := seedClaim(t, repo, StatusSubmitted)
	w := newTestWorker(repo, &fakeBilling{}, newFakeTasks())

	require.NoError(t, w.HandleRemit(context.Background(), remitJob([]map[string]any{
		{"claim_id": c.ID.String(), "paid_cents": float64(0)},
	})))
	got, _ := repo.GetByID(context.Background(), c.ID)
	assert.Equal(t, "CO-97", got.DenialReason)
}
