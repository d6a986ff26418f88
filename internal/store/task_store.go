package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"quorum/internal/ident"
)

const taskColumns = "uid, id, gid, status, kind, created_at, updated_at, duedate, threshold, message, payload"

// InsertTask persists a new task together with its voter sets. The insert is
// conditional on the key being unused; reusing an existing (uid, id) pair
// reports ErrConflict and leaves the stored task untouched.
func (s *Store) InsertTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task is nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO task (`+taskColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (uid, id) DO NOTHING`,
		task.UID.Bytes(),
		task.ID.Bytes(),
		idValue(task.GID),
		task.Status,
		task.Kind,
		task.CreatedAt,
		task.UpdatedAt,
		task.Duedate,
		task.Threshold,
		task.Message,
		nullableBytes(task.Payload),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert task rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("task %s/%s: %w", task.UID, task.ID, ErrConflict)
	}

	for _, voter := range task.Recipients() {
		assignee := ident.ContainsID(task.Assignees, voter)
		approver := ident.ContainsID(task.Approvers, voter)
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO task_voter (uid, id, voter, assignee, approver)
             VALUES (?, ?, ?, ?, ?)
             ON CONFLICT (uid, id, voter) DO NOTHING`,
			task.UID.Bytes(),
			task.ID.Bytes(),
			voter.Bytes(),
			boolToInt(assignee),
			boolToInt(approver),
		); err != nil {
			return fmt.Errorf("insert task voter: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// GetTask fetches a task with its voter and vote sets. Returns nil when the
// task does not exist.
func (s *Store) GetTask(ctx context.Context, uid, id ident.ID) (*Task, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM task WHERE uid = ? AND id = ?`,
		uid.Bytes(), id.Bytes(),
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if err := s.loadTaskSets(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// AddVote records a voter's decision as a grow-only set insert. The write is
// commutative: concurrent inserts for distinct voters cannot conflict, and a
// repeated insert for the same voter is ignored, with the stored decision
// reported in the outcome.
func (s *Store) AddVote(ctx context.Context, uid, id, voter ident.ID, decision Decision, now int64) (VoteOutcome, error) {
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO task_vote (uid, id, voter, decision, voted_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT (uid, id, voter) DO NOTHING`,
		uid.Bytes(), id.Bytes(), voter.Bytes(), decision, now,
	)
	if err != nil {
		return VoteOutcome{}, fmt.Errorf("insert vote: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return VoteOutcome{}, fmt.Errorf("insert vote rows affected: %w", err)
	}

	if affected == 0 {
		var existing Decision
		row := s.db.QueryRowContext(
			ctx,
			`SELECT decision FROM task_vote WHERE uid = ? AND id = ? AND voter = ?`,
			uid.Bytes(), id.Bytes(), voter.Bytes(),
		)
		if err := row.Scan(&existing); err != nil {
			return VoteOutcome{}, fmt.Errorf("read existing vote: %w", err)
		}
		return VoteOutcome{Recorded: false, Existing: existing}, nil
	}

	if _, err := s.db.ExecContext(
		ctx,
		`UPDATE task SET updated_at = ? WHERE uid = ? AND id = ? AND updated_at < ?`,
		now, uid.Bytes(), id.Bytes(), now,
	); err != nil {
		return VoteOutcome{}, fmt.Errorf("touch task: %w", err)
	}
	return VoteOutcome{Recorded: true, Existing: decision}, nil
}

// ApprovalCount returns the number of distinct approving voters on a task.
func (s *Store) ApprovalCount(ctx context.Context, uid, id ident.ID) (int, error) {
	var count int
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM task_vote WHERE uid = ? AND id = ? AND decision = ?`,
		uid.Bytes(), id.Bytes(), DecisionApprove,
	)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count approvals: %w", err)
	}
	return count, nil
}

// TransitionStatus performs a compare-and-swap on the status column. The
// update applies only when the stored status still equals from; the boolean
// reports whether this caller won the transition. A false result with no
// error means another writer already moved the task, which callers treat as
// a successful no-op.
func (s *Store) TransitionStatus(ctx context.Context, uid, id ident.ID, from, to Status, now int64) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE task SET status = ?, updated_at = ? WHERE uid = ? AND id = ? AND status = ?`,
		to, now, uid.Bytes(), id.Bytes(), from,
	)
	if err != nil {
		return false, fmt.Errorf("transition status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition rows affected: %w", err)
	}
	return affected == 1, nil
}

// ListTasks returns up to limit tasks owned by uid, newest first, optionally
// filtered by status. A non-zero before identifier resumes after a previous
// page's last task.
func (s *Store) ListTasks(ctx context.Context, uid ident.ID, status *Status, before ident.ID, limit int) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM task WHERE uid = ?`
	args := []any{uid.Bytes()}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, *status)
	}
	if !before.IsZero() {
		query += ` AND id < ?`
		args = append(args, before.Bytes())
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, task := range tasks {
		if err := s.loadTaskSets(ctx, task); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// DeleteTask removes a task; voter and vote rows cascade. Notification rows
// are owned by the fan-out layer and cleaned up separately.
func (s *Store) DeleteTask(ctx context.Context, uid, id ident.ID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM task WHERE uid = ? AND id = ?`, uid.Bytes(), id.Bytes())
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete task rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		uidRaw    []byte
		idRaw     []byte
		gidRaw    []byte
		status    Status
		kind      string
		createdAt int64
		updatedAt int64
		duedate   int64
		threshold int
		message   string
		payload   []byte
	)

	if err := scanner.Scan(
		&uidRaw,
		&idRaw,
		&gidRaw,
		&status,
		&kind,
		&createdAt,
		&updatedAt,
		&duedate,
		&threshold,
		&message,
		&payload,
	); err != nil {
		return nil, err
	}

	uid, err := idFromColumn(uidRaw)
	if err != nil {
		return nil, err
	}
	id, err := idFromColumn(idRaw)
	if err != nil {
		return nil, err
	}
	gid, err := idFromColumn(gidRaw)
	if err != nil {
		return nil, err
	}

	return &Task{
		UID:       uid,
		ID:        id,
		GID:       gid,
		Status:    status,
		Kind:      kind,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		Duedate:   duedate,
		Threshold: threshold,
		Message:   message,
		Payload:   payload,
	}, nil
}

func (s *Store) loadTaskSets(ctx context.Context, task *Task) error {
	task.Approvers = task.Approvers[:0]
	task.Assignees = task.Assignees[:0]
	task.Resolved = task.Resolved[:0]
	task.Rejected = task.Rejected[:0]

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT voter, assignee, approver FROM task_voter WHERE uid = ? AND id = ?`,
		task.UID.Bytes(), task.ID.Bytes(),
	)
	if err != nil {
		return fmt.Errorf("load voters: %w", err)
	}
	for rows.Next() {
		var voterRaw []byte
		var assignee, approver int
		if err := rows.Scan(&voterRaw, &assignee, &approver); err != nil {
			rows.Close()
			return fmt.Errorf("scan voter: %w", err)
		}
		voter, err := idFromColumn(voterRaw)
		if err != nil {
			rows.Close()
			return err
		}
		if assignee != 0 {
			task.Assignees = append(task.Assignees, voter)
		}
		if approver != 0 {
			task.Approvers = append(task.Approvers, voter)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate voters: %w", err)
	}

	rows, err = s.db.QueryContext(
		ctx,
		`SELECT voter, decision FROM task_vote WHERE uid = ? AND id = ?`,
		task.UID.Bytes(), task.ID.Bytes(),
	)
	if err != nil {
		return fmt.Errorf("load votes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var voterRaw []byte
		var decision Decision
		if err := rows.Scan(&voterRaw, &decision); err != nil {
			return fmt.Errorf("scan vote: %w", err)
		}
		voter, err := idFromColumn(voterRaw)
		if err != nil {
			return err
		}
		switch decision {
		case DecisionApprove:
			task.Resolved = append(task.Resolved, voter)
		case DecisionReject:
			task.Rejected = append(task.Rejected, voter)
		}
	}
	return rows.Err()
}
