package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"quorum/internal/config"
	"quorum/internal/ident"
	"quorum/internal/logging"
	"quorum/internal/payload"
	"quorum/internal/store"
)

// Notifier receives lifecycle events from the engine. Delivery failures are
// treated as lag, never as task failures, so implementations are expected to
// retry on their own schedule.
type Notifier interface {
	TaskCreated(ctx context.Context, task *store.Task) error
	TaskSettled(ctx context.Context, task *store.Task) error
}

// NopNotifier discards all lifecycle events.
type NopNotifier struct{}

func (NopNotifier) TaskCreated(context.Context, *store.Task) error { return nil }
func (NopNotifier) TaskSettled(context.Context, *store.Task) error { return nil }

// Engine coordinates task creation, voting, and settlement against the store.
type Engine struct {
	store    *store.Store
	cfg      *config.Config
	notifier Notifier
	logger   *slog.Logger
	now      func() int64
}

// New builds an engine. A nil notifier disables fan-out and a nil logger
// discards engine logs.
func New(st *store.Store, cfg *config.Config, notifier Notifier, logger *slog.Logger) *Engine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		store:    st,
		cfg:      cfg,
		notifier: notifier,
		logger:   logger.With(logging.String("component", "approval")),
		now:      func() int64 { return time.Now().UnixMilli() },
	}
}

// CreateRequest carries the caller-supplied fields for a new task. ID is an
// optional idempotency key: retrying a create with the same id returns the
// task written by the first attempt instead of inserting a second one.
type CreateRequest struct {
	UID       ident.ID
	ID        ident.ID
	GID       ident.ID
	Kind      string
	Duedate   int64
	Threshold int
	Assignees []ident.ID
	Approvers []ident.ID
	Message   string
	Payload   []byte
}

// Create validates and persists a new task in the processing state, then
// announces it to every recipient.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*store.Task, error) {
	if req.UID.IsZero() {
		return nil, Wrap(ErrValidation, "create", "owner id is required", nil)
	}
	assignees := ident.Union(nil, req.Assignees)
	approvers := ident.Union(nil, req.Approvers)
	if len(assignees) == 0 {
		return nil, Wrap(ErrValidation, "create", "at least one assignee is required", nil)
	}
	if max := e.cfg.Approval.MaxAssignees; len(assignees)+len(approvers) > max {
		return nil, Wrap(ErrValidation, "create", fmt.Sprintf("recipient count exceeds %d", max), nil)
	}
	if req.Threshold < 1 || req.Threshold > len(assignees) {
		return nil, Wrap(ErrValidation, "create",
			fmt.Sprintf("threshold %d outside [1, %d]", req.Threshold, len(assignees)), nil)
	}
	if max := e.cfg.Approval.MaxMessageBytes; len(req.Message) > max {
		return nil, Wrap(ErrValidation, "create", fmt.Sprintf("message exceeds %d bytes", max), nil)
	}
	if err := payload.Validate(req.Payload); err != nil {
		return nil, Wrap(ErrCodec, "create", "payload rejected", err)
	}

	taskID := req.ID
	if taskID.IsZero() {
		taskID = ident.New()
	}

	now := e.now()
	task := &store.Task{
		UID:       req.UID,
		ID:        taskID,
		GID:       req.GID,
		Status:    store.StatusProcessing,
		Kind:      req.Kind,
		CreatedAt: now,
		UpdatedAt: now,
		Duedate:   req.Duedate,
		Threshold: req.Threshold,
		Assignees: assignees,
		Approvers: approvers,
		Message:   req.Message,
		Payload:   req.Payload,
	}
	if err := e.store.InsertTask(ctx, task); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Caller-supplied id: the retry replays the original create.
			if !req.ID.IsZero() {
				return e.Get(ctx, req.UID, req.ID)
			}
			return nil, Wrap(ErrValidation, "create", "task id already in use", err)
		}
		return nil, Wrap(ErrStorage, "create", "insert task", err)
	}

	e.logger.Info("task created",
		logging.String("task_id", task.ID.String()),
		logging.String("owner", task.UID.String()),
		logging.Int("threshold", task.Threshold),
		logging.Int("assignees", len(task.Assignees)))

	if err := e.notifier.TaskCreated(ctx, task); err != nil {
		e.logger.Warn("create fan-out lagging",
			logging.String("task_id", task.ID.String()),
			logging.Error(err))
	}
	return task, nil
}

// Get fetches a task by owner and id.
func (e *Engine) Get(ctx context.Context, uid, id ident.ID) (*store.Task, error) {
	task, err := e.store.GetTask(ctx, uid, id)
	if err != nil {
		return nil, Wrap(ErrStorage, "get", "load task", err)
	}
	if task == nil {
		return nil, Wrap(ErrNotFound, "get", fmt.Sprintf("task %s/%s", uid, id), nil)
	}
	return task, nil
}

// List returns up to limit of the owner's tasks, newest first, optionally
// filtered by status and resuming after the before id.
func (e *Engine) List(ctx context.Context, uid ident.ID, status *store.Status, before ident.ID, limit int) ([]*store.Task, error) {
	tasks, err := e.store.ListTasks(ctx, uid, status, before, limit)
	if err != nil {
		return nil, Wrap(ErrStorage, "list", "list tasks", err)
	}
	return tasks, nil
}

// Vote records a voter's decision and settles the task when the decision is
// decisive. Replaying an identical vote is a no-op that returns the current
// task; a conflicting vote for the same voter reports ErrDuplicateVote.
func (e *Engine) Vote(ctx context.Context, uid, id, voter ident.ID, decision store.Decision) (*store.Task, error) {
	task, err := e.Get(ctx, uid, id)
	if err != nil {
		return nil, err
	}
	if !task.CanVote(voter) {
		return nil, Wrap(ErrUnauthorized, "vote", fmt.Sprintf("voter %s is not a recipient", voter), nil)
	}
	if task.IsTerminal() {
		// Replays of a vote that already counted pass through unchanged.
		if recordedDecision(task, voter) == decision {
			return task, nil
		}
		return nil, Wrap(ErrTerminal, "vote", fmt.Sprintf("task settled as %s", task.Status), nil)
	}

	outcome, err := e.store.AddVote(ctx, uid, id, voter, decision, e.now())
	if err != nil {
		return nil, Wrap(ErrStorage, "vote", "record vote", err)
	}
	if !outcome.Recorded && outcome.Existing != decision {
		return nil, Wrap(ErrDuplicateVote, "vote",
			fmt.Sprintf("voter %s already voted %s", voter, outcome.Existing), nil)
	}

	if outcome.Recorded {
		e.logger.Info("vote recorded",
			logging.String("task_id", id.String()),
			logging.String("voter", voter.String()),
			logging.String("decision", decision.String()))
	}

	// Replays settle too: a caller that lost its answer after the vote row
	// committed but before the status update must converge on retry.
	if err := e.settle(ctx, uid, id, decision, task.Threshold); err != nil {
		return nil, err
	}
	return e.Get(ctx, uid, id)
}

// settle moves the task out of processing when the new vote is decisive. Of
// all racing writers at most one wins the conditional status update, and only
// the winner fires fan-out, so terminal notifications are sent exactly once.
func (e *Engine) settle(ctx context.Context, uid, id ident.ID, decision store.Decision, threshold int) error {
	target := store.StatusRejected
	if decision == store.DecisionApprove {
		count, err := e.store.ApprovalCount(ctx, uid, id)
		if err != nil {
			return Wrap(ErrStorage, "vote", "count approvals", err)
		}
		if count < threshold {
			return nil
		}
		target = store.StatusResolved
	}

	won, err := e.store.TransitionStatus(ctx, uid, id, store.StatusProcessing, target, e.now())
	if err != nil {
		return Wrap(ErrStorage, "vote", "transition status", err)
	}
	if !won {
		return nil
	}

	task, err := e.Get(ctx, uid, id)
	if err != nil {
		return err
	}
	e.logger.Info("task settled",
		logging.String("task_id", id.String()),
		logging.String("status", task.Status.String()))
	if err := e.notifier.TaskSettled(ctx, task); err != nil {
		e.logger.Warn("settlement fan-out lagging",
			logging.String("task_id", id.String()),
			logging.Error(err))
	}
	return nil
}

// Ack resolves a recipient's notification into a vote on the underlying task
// and stamps the notification with the task's resulting status.
func (e *Engine) Ack(ctx context.Context, recipient, tid, sender ident.ID, decision store.Decision) (*store.Task, error) {
	notif, err := e.store.GetNotification(ctx, recipient, tid, sender)
	if err != nil {
		return nil, Wrap(ErrStorage, "ack", "load notification", err)
	}
	if notif == nil {
		return nil, Wrap(ErrNotFound, "ack", fmt.Sprintf("notification for task %s", tid), nil)
	}

	task, err := e.Vote(ctx, sender, tid, recipient, decision)
	if err != nil {
		return nil, err
	}

	notif.Status = task.Status
	if err := e.store.UpsertNotification(ctx, notif); err != nil {
		return nil, Wrap(ErrStorage, "ack", "update notification", err)
	}
	return task, nil
}

// Dismiss removes a recipient's notification without voting.
func (e *Engine) Dismiss(ctx context.Context, recipient, tid, sender ident.ID) error {
	deleted, err := e.store.DeleteNotification(ctx, recipient, tid, sender)
	if err != nil {
		return Wrap(ErrStorage, "dismiss", "delete notification", err)
	}
	if !deleted {
		return Wrap(ErrNotFound, "dismiss", fmt.Sprintf("notification for task %s", tid), nil)
	}
	return nil
}

// Delete removes a task and every notification that references it. Only the
// owner's key space is touched; deleting an absent task reports ErrNotFound.
func (e *Engine) Delete(ctx context.Context, uid, id ident.ID) error {
	deleted, err := e.store.DeleteTask(ctx, uid, id)
	if err != nil {
		return Wrap(ErrStorage, "delete", "delete task", err)
	}
	if !deleted {
		return Wrap(ErrNotFound, "delete", fmt.Sprintf("task %s/%s", uid, id), nil)
	}
	if err := e.store.DeleteNotificationsByTask(ctx, id); err != nil {
		return Wrap(ErrStorage, "delete", "delete notifications", err)
	}
	return nil
}

// recordedDecision reports the decision already stored for voter, or zero
// when the voter has not voted.
func recordedDecision(task *store.Task, voter ident.ID) store.Decision {
	if ident.ContainsID(task.Resolved, voter) {
		return store.DecisionApprove
	}
	if ident.ContainsID(task.Rejected, voter) {
		return store.DecisionReject
	}
	return 0
}
