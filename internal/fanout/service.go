package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"quorum/internal/config"
	"quorum/internal/logging"
	"quorum/internal/store"
)

type eventKind int

const (
	eventCreated eventKind = iota
	eventSettled
)

type delivery struct {
	task     *store.Task
	kind     eventKind
	attempts int
}

// Service writes notification projections for task lifecycle events and
// retries failed deliveries in the background.
type Service struct {
	store  *store.Store
	pusher Pusher
	cfg    *config.Config
	logger *slog.Logger

	mu      sync.Mutex
	pending []delivery
}

// NewService builds a fan-out service. A nil pusher disables push mirroring.
func NewService(st *store.Store, cfg *config.Config, pusher Pusher, logger *slog.Logger) *Service {
	if pusher == nil {
		pusher = noopPusher{}
	}
	return &Service{
		store:  st,
		pusher: pusher,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "fanout"),
	}
}

// TaskCreated announces a new task to every recipient and, when the task
// belongs to a group, records a group announcement. A returned error means
// the delivery was queued for retry, not that the task failed.
func (s *Service) TaskCreated(ctx context.Context, task *store.Task) error {
	if err := s.deliver(ctx, delivery{task: task, kind: eventCreated}); err != nil {
		s.enqueue(delivery{task: task, kind: eventCreated, attempts: 1})
		return err
	}
	return nil
}

// TaskSettled restates every recipient's notification with the task's
// terminal status.
func (s *Service) TaskSettled(ctx context.Context, task *store.Task) error {
	if err := s.deliver(ctx, delivery{task: task, kind: eventSettled}); err != nil {
		s.enqueue(delivery{task: task, kind: eventSettled, attempts: 1})
		return err
	}
	return nil
}

// LagCount reports how many deliveries are waiting for a retry.
func (s *Service) LagCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Start runs the retry loop until the context is canceled. Deliveries that
// exhaust the attempt budget are dropped with an error log; the notification
// rows already written stay in place.
func (s *Service) Start(ctx context.Context) {
	interval := time.Duration(s.cfg.Fanout.RetryInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.retry(ctx)
		}
	}
}

// Flush retries every queued delivery once. The daemon calls this during
// shutdown so short-lived failures do not linger across restarts.
func (s *Service) Flush(ctx context.Context) {
	s.retry(ctx)
}

func (s *Service) retry(ctx context.Context) {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, d := range batch {
		if err := s.deliver(ctx, d); err != nil {
			d.attempts++
			if d.attempts >= s.cfg.Fanout.MaxAttempts {
				s.logger.Error("delivery dropped after retry budget",
					logging.String("task_id", d.task.ID.String()),
					logging.Int("attempts", d.attempts),
					logging.Error(err))
				continue
			}
			s.logger.Warn("delivery retry failed",
				logging.String("task_id", d.task.ID.String()),
				logging.Int("attempts", d.attempts),
				logging.Error(err))
			s.enqueue(d)
		}
	}
}

func (s *Service) enqueue(d delivery) {
	s.mu.Lock()
	s.pending = append(s.pending, d)
	s.mu.Unlock()
}

// deliver writes every projection for one event. Each write is an idempotent
// upsert, so partially failed deliveries can be replayed from the start.
func (s *Service) deliver(ctx context.Context, d delivery) error {
	task := d.task

	// The queued snapshot can be stale. Notification status only ever moves
	// forward, so a replayed create must not overwrite a settled row; write
	// whatever the task says now.
	current, err := s.store.GetTask(ctx, task.UID, task.ID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", task.ID, err)
	}
	if current != nil {
		task = current
	}

	status := task.Status
	message := task.Message
	if status.IsTerminal() {
		message = fmt.Sprintf("task %s", status)
	}

	for _, recipient := range task.Recipients() {
		err := s.store.UpsertNotification(ctx, &store.Notification{
			UID:     recipient,
			TID:     task.ID,
			Sender:  task.UID,
			Status:  status,
			Message: message,
		})
		if err != nil {
			return fmt.Errorf("notify %s: %w", recipient, err)
		}
	}

	if d.kind == eventCreated && !task.GID.IsZero() {
		err := s.store.InsertGroupNotification(ctx, &store.GroupNotification{
			GID:    task.GID,
			TID:    task.ID,
			Sender: task.UID,
			Role:   store.Role(s.cfg.Approval.DefaultGroupRole),
		})
		if err != nil {
			return fmt.Errorf("notify group %s: %w", task.GID, err)
		}
	}

	if err := s.push(ctx, task, d.kind); err != nil {
		return err
	}

	s.logger.Debug("delivery complete",
		logging.String("task_id", task.ID.String()),
		logging.Int("recipients", len(task.Recipients())))
	return nil
}

func (s *Service) push(ctx context.Context, task *store.Task, kind eventKind) error {
	var title, message, priority string
	var tags []string
	switch {
	case kind == eventCreated:
		title = "Quorum - Task Created"
		message = fmt.Sprintf("Awaiting approval: %s (%d approvals needed)", task.Kind, task.Threshold)
		tags = []string{"quorum", "task", "created"}
	case task.Status == store.StatusResolved:
		title = "Quorum - Task Resolved"
		message = fmt.Sprintf("Approved: %s", task.Kind)
		tags = []string{"quorum", "task", "resolved"}
	default:
		title = "Quorum - Task Rejected"
		message = fmt.Sprintf("Rejected: %s", task.Kind)
		tags = []string{"quorum", "task", "rejected"}
		priority = "high"
	}
	if err := s.pusher.Push(ctx, title, message, tags, priority); err != nil {
		return fmt.Errorf("push notification: %w", err)
	}
	return nil
}
