package approval_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quorum/internal/approval"
	"quorum/internal/config"
	"quorum/internal/ident"
	"quorum/internal/store"
	"quorum/internal/testsupport"
)

type recordingNotifier struct {
	mu      sync.Mutex
	created []*store.Task
	settled []*store.Task
	fail    error
}

func (r *recordingNotifier) TaskCreated(_ context.Context, task *store.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.created = append(r.created, task)
	return nil
}

func (r *recordingNotifier) TaskSettled(_ context.Context, task *store.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.settled = append(r.settled, task)
	return nil
}

func (r *recordingNotifier) settledCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.settled)
}

func newEngine(t *testing.T) (*approval.Engine, *recordingNotifier, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}
	return approval.New(st, cfg, notifier, nil), notifier, cfg
}

func createTask(t *testing.T, eng *approval.Engine, owner ident.ID, threshold int, assignees ...ident.ID) *store.Task {
	t.Helper()
	task, err := eng.Create(context.Background(), approval.CreateRequest{
		UID:       owner,
		Kind:      "expense",
		Threshold: threshold,
		Assignees: assignees,
		Message:   "please review",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return task
}

func TestCreateValidation(t *testing.T) {
	eng, _, cfg := newEngine(t)
	ctx := context.Background()
	owner := ident.New()
	assignee := ident.New()

	cases := []struct {
		name string
		req  approval.CreateRequest
	}{
		{"missing owner", approval.CreateRequest{Threshold: 1, Assignees: []ident.ID{assignee}}},
		{"no assignees", approval.CreateRequest{UID: owner, Threshold: 1}},
		{"zero threshold", approval.CreateRequest{UID: owner, Threshold: 0, Assignees: []ident.ID{assignee}}},
		{"threshold above assignees", approval.CreateRequest{UID: owner, Threshold: 2, Assignees: []ident.ID{assignee}}},
		{"oversized message", approval.CreateRequest{
			UID:       owner,
			Threshold: 1,
			Assignees: []ident.ID{assignee},
			Message:   string(make([]byte, cfg.Approval.MaxMessageBytes+1)),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := eng.Create(ctx, tc.req); !errors.Is(err, approval.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}

	_, err := eng.Create(ctx, approval.CreateRequest{
		UID:       owner,
		Threshold: 1,
		Assignees: []ident.ID{assignee},
		Payload:   []byte{0xff, 0xff},
	})
	if !errors.Is(err, approval.ErrCodec) {
		t.Fatalf("expected ErrCodec for malformed payload, got %v", err)
	}
}

func TestCreateAnnouncesTask(t *testing.T) {
	eng, notifier, _ := newEngine(t)
	owner := ident.New()
	task := createTask(t, eng, owner, 1, ident.New(), ident.New())

	if task.Status != store.StatusProcessing {
		t.Fatalf("status = %v, want processing", task.Status)
	}
	if len(notifier.created) != 1 || notifier.created[0].ID != task.ID {
		t.Fatalf("created events = %d", len(notifier.created))
	}
}

func TestCreateReplaysClientSuppliedID(t *testing.T) {
	eng, notifier, _ := newEngine(t)
	ctx := context.Background()
	req := approval.CreateRequest{
		UID:       ident.New(),
		ID:        ident.New(),
		Threshold: 1,
		Assignees: []ident.ID{ident.New()},
		Message:   "please review",
	}

	first, err := eng.Create(ctx, req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := eng.Create(ctx, req)
	if err != nil {
		t.Fatalf("retried Create: %v", err)
	}
	if second.ID != first.ID || second.CreatedAt != first.CreatedAt {
		t.Fatalf("retry returned a different task: %v vs %v", second.ID, first.ID)
	}
	if len(notifier.created) != 1 {
		t.Fatalf("created events = %d, want 1", len(notifier.created))
	}
}

func TestCreateDeduplicatesAssignees(t *testing.T) {
	eng, _, _ := newEngine(t)
	owner := ident.New()
	a := ident.New()
	task, err := eng.Create(context.Background(), approval.CreateRequest{
		UID:       owner,
		Threshold: 1,
		Assignees: []ident.ID{a, a, a},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(task.Assignees) != 1 {
		t.Fatalf("assignees = %d, want 1", len(task.Assignees))
	}
}

func TestVoteResolvesAtThreshold(t *testing.T) {
	eng, notifier, _ := newEngine(t)
	ctx := context.Background()
	owner := ident.New()
	voters := []ident.ID{ident.New(), ident.New(), ident.New()}
	task := createTask(t, eng, owner, 2, voters...)

	got, err := eng.Vote(ctx, owner, task.ID, voters[0], store.DecisionApprove)
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if got.Status != store.StatusProcessing {
		t.Fatalf("status after one approval = %v, want processing", got.Status)
	}
	if notifier.settledCount() != 0 {
		t.Fatal("no settlement expected below threshold")
	}

	got, err = eng.Vote(ctx, owner, task.ID, voters[1], store.DecisionApprove)
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if got.Status != store.StatusResolved {
		t.Fatalf("status = %v, want resolved", got.Status)
	}
	if notifier.settledCount() != 1 {
		t.Fatalf("settled events = %d, want 1", notifier.settledCount())
	}
}

func TestSingleRejectionRejects(t *testing.T) {
	eng, notifier, _ := newEngine(t)
	ctx := context.Background()
	owner := ident.New()
	voters := []ident.ID{ident.New(), ident.New(), ident.New()}
	task := createTask(t, eng, owner, 3, voters...)

	if _, err := eng.Vote(ctx, owner, task.ID, voters[0], store.DecisionApprove); err != nil {
		t.Fatalf("Vote: %v", err)
	}
	got, err := eng.Vote(ctx, owner, task.ID, voters[1], store.DecisionReject)
	if err != nil {
		t.Fatalf("Vote reject: %v", err)
	}
	if got.Status != store.StatusRejected {
		t.Fatalf("status = %v, want rejected", got.Status)
	}
	if notifier.settledCount() != 1 {
		t.Fatalf("settled events = %d, want 1", notifier.settledCount())
	}
}

func TestVoteReplayIsIdempotent(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()
	owner := ident.New()
	voter := ident.New()
	task := createTask(t, eng, owner, 2, voter, ident.New())

	if _, err := eng.Vote(ctx, owner, task.ID, voter, store.DecisionApprove); err != nil {
		t.Fatalf("Vote: %v", err)
	}
	got, err := eng.Vote(ctx, owner, task.ID, voter, store.DecisionApprove)
	if err != nil {
		t.Fatalf("replayed vote must succeed: %v", err)
	}
	if len(got.Resolved) != 1 {
		t.Fatalf("resolved set = %d, want 1", len(got.Resolved))
	}
}

func TestReplayAfterInterruptedVoteSettles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}
	eng := approval.New(st, cfg, notifier, nil)
	ctx := context.Background()
	owner := ident.New()
	voter := ident.New()
	task := createTask(t, eng, owner, 1, voter)

	// The vote row committed but the caller died before the status update.
	outcome, err := st.AddVote(ctx, owner, task.ID, voter, store.DecisionApprove, time.Now().UnixMilli())
	if err != nil || !outcome.Recorded {
		t.Fatalf("AddVote: recorded=%v err=%v", outcome.Recorded, err)
	}

	// Retrying the identical vote must still settle the task.
	got, err := eng.Vote(ctx, owner, task.ID, voter, store.DecisionApprove)
	if err != nil {
		t.Fatalf("retried vote: %v", err)
	}
	if got.Status != store.StatusResolved {
		t.Fatalf("status = %v, want resolved", got.Status)
	}
	if notifier.settledCount() != 1 {
		t.Fatalf("settled events = %d, want 1", notifier.settledCount())
	}
}

func TestReplayAfterInterruptedRejectionSettles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	eng := approval.New(st, cfg, nil, nil)
	ctx := context.Background()
	owner := ident.New()
	voter := ident.New()
	task := createTask(t, eng, owner, 2, voter, ident.New())

	outcome, err := st.AddVote(ctx, owner, task.ID, voter, store.DecisionReject, time.Now().UnixMilli())
	if err != nil || !outcome.Recorded {
		t.Fatalf("AddVote: recorded=%v err=%v", outcome.Recorded, err)
	}

	got, err := eng.Vote(ctx, owner, task.ID, voter, store.DecisionReject)
	if err != nil {
		t.Fatalf("retried vote: %v", err)
	}
	if got.Status != store.StatusRejected {
		t.Fatalf("status = %v, want rejected", got.Status)
	}
}

func TestVoteConflictReported(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()
	owner := ident.New()
	voter := ident.New()
	task := createTask(t, eng, owner, 2, voter, ident.New())

	if _, err := eng.Vote(ctx, owner, task.ID, voter, store.DecisionApprove); err != nil {
		t.Fatalf("Vote: %v", err)
	}
	_, err := eng.Vote(ctx, owner, task.ID, voter, store.DecisionReject)
	if !errors.Is(err, approval.ErrDuplicateVote) {
		t.Fatalf("expected ErrDuplicateVote, got %v", err)
	}
}

func TestVoteOnSettledTask(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()
	owner := ident.New()
	first := ident.New()
	late := ident.New()
	task := createTask(t, eng, owner, 1, first, late)

	if _, err := eng.Vote(ctx, owner, task.ID, first, store.DecisionApprove); err != nil {
		t.Fatalf("Vote: %v", err)
	}

	// A new vote after settlement is refused.
	_, err := eng.Vote(ctx, owner, task.ID, late, store.DecisionApprove)
	if !errors.Is(err, approval.ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}

	// Replaying the vote that settled the task still succeeds.
	got, err := eng.Vote(ctx, owner, task.ID, first, store.DecisionApprove)
	if err != nil {
		t.Fatalf("replay after settlement: %v", err)
	}
	if got.Status != store.StatusResolved {
		t.Fatalf("status = %v, want resolved", got.Status)
	}
}

func TestVoteAuthorization(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()
	owner := ident.New()
	task := createTask(t, eng, owner, 1, ident.New())

	_, err := eng.Vote(ctx, owner, task.ID, ident.New(), store.DecisionApprove)
	if !errors.Is(err, approval.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	_, err = eng.Vote(ctx, owner, ident.New(), ident.New(), store.DecisionApprove)
	if !errors.Is(err, approval.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApproverCanVote(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()
	owner := ident.New()
	approver := ident.New()
	task, err := eng.Create(ctx, approval.CreateRequest{
		UID:       owner,
		Threshold: 1,
		Assignees: []ident.ID{ident.New()},
		Approvers: []ident.ID{approver},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := eng.Vote(ctx, owner, task.ID, approver, store.DecisionApprove)
	if err != nil {
		t.Fatalf("approver vote: %v", err)
	}
	if got.Status != store.StatusResolved {
		t.Fatalf("status = %v, want resolved", got.Status)
	}
}

func TestConcurrentVotesSettleOnce(t *testing.T) {
	eng, notifier, _ := newEngine(t)
	ctx := context.Background()
	owner := ident.New()

	const n = 8
	voters := make([]ident.ID, n)
	for i := range voters {
		voters[i] = ident.New()
	}
	task := createTask(t, eng, owner, 3, voters...)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, voter := range voters {
		wg.Add(1)
		go func(v ident.ID) {
			defer wg.Done()
			if _, err := eng.Vote(ctx, owner, task.ID, v, store.DecisionApprove); err != nil {
				errs <- err
			}
		}(voter)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent vote: %v", err)
	}

	got, err := eng.Get(ctx, owner, task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != store.StatusResolved {
		t.Fatalf("status = %v, want resolved", got.Status)
	}
	if len(got.Resolved) != n {
		t.Fatalf("resolved set = %d, want %d", len(got.Resolved), n)
	}
	if notifier.settledCount() != 1 {
		t.Fatalf("settled events = %d, want exactly 1", notifier.settledCount())
	}
}

func TestNotifierFailureDoesNotFailVote(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{fail: errors.New("push endpoint down")}
	eng := approval.New(st, cfg, notifier, nil)
	ctx := context.Background()

	owner := ident.New()
	voter := ident.New()
	task, err := eng.Create(ctx, approval.CreateRequest{
		UID:       owner,
		Threshold: 1,
		Assignees: []ident.ID{voter},
	})
	if err != nil {
		t.Fatalf("Create must succeed despite delivery lag: %v", err)
	}

	got, err := eng.Vote(ctx, owner, task.ID, voter, store.DecisionApprove)
	if err != nil {
		t.Fatalf("Vote must succeed despite delivery lag: %v", err)
	}
	if got.Status != store.StatusResolved {
		t.Fatalf("status = %v, want resolved", got.Status)
	}
}

func TestAckVotesThroughNotification(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	eng := approval.New(st, cfg, nil, nil)
	ctx := context.Background()

	owner := ident.New()
	recipient := ident.New()
	task, err := eng.Create(ctx, approval.CreateRequest{
		UID:       owner,
		Threshold: 1,
		Assignees: []ident.ID{recipient},
		Message:   "sign off the release",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	err = st.UpsertNotification(ctx, &store.Notification{
		UID:     recipient,
		TID:     task.ID,
		Sender:  owner,
		Status:  store.StatusProcessing,
		Message: task.Message,
	})
	if err != nil {
		t.Fatalf("UpsertNotification: %v", err)
	}

	got, err := eng.Ack(ctx, recipient, task.ID, owner, store.DecisionApprove)
	if err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if got.Status != store.StatusResolved {
		t.Fatalf("status = %v, want resolved", got.Status)
	}

	notif, err := st.GetNotification(ctx, recipient, task.ID, owner)
	if err != nil {
		t.Fatalf("GetNotification: %v", err)
	}
	if notif.Status != store.StatusResolved {
		t.Fatalf("notification status = %v, want resolved", notif.Status)
	}
}

func TestAckMissingNotification(t *testing.T) {
	eng, _, _ := newEngine(t)
	_, err := eng.Ack(context.Background(), ident.New(), ident.New(), ident.New(), store.DecisionApprove)
	if !errors.Is(err, approval.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDismissNotification(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	eng := approval.New(st, cfg, nil, nil)
	ctx := context.Background()

	recipient := ident.New()
	tid := ident.New()
	sender := ident.New()
	err := st.UpsertNotification(ctx, &store.Notification{
		UID:    recipient,
		TID:    tid,
		Sender: sender,
		Status: store.StatusProcessing,
	})
	if err != nil {
		t.Fatalf("UpsertNotification: %v", err)
	}

	if err := eng.Dismiss(ctx, recipient, tid, sender); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	if err := eng.Dismiss(ctx, recipient, tid, sender); !errors.Is(err, approval.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on repeat dismiss, got %v", err)
	}
}

func TestDeleteRemovesTaskAndNotifications(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	eng := approval.New(st, cfg, nil, nil)
	ctx := context.Background()

	owner := ident.New()
	recipient := ident.New()
	task, err := eng.Create(ctx, approval.CreateRequest{
		UID:       owner,
		Threshold: 1,
		Assignees: []ident.ID{recipient},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	err = st.UpsertNotification(ctx, &store.Notification{
		UID:    recipient,
		TID:    task.ID,
		Sender: owner,
		Status: store.StatusProcessing,
	})
	if err != nil {
		t.Fatalf("UpsertNotification: %v", err)
	}

	if err := eng.Delete(ctx, owner, task.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := eng.Get(ctx, owner, task.ID); !errors.Is(err, approval.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	rows, err := st.NotificationsByTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("NotificationsByTask: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("notifications remaining = %d, want 0", len(rows))
	}

	if err := eng.Delete(ctx, owner, task.ID); !errors.Is(err, approval.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on repeat delete, got %v", err)
	}
}
