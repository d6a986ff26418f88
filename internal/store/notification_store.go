package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"quorum/internal/ident"
)

// UpsertNotification writes a per-recipient notification row. A later write
// for the same (recipient, task, sender) key replaces the status and message,
// which is how acknowledgement and dismissal mark delivered rows.
func (s *Store) UpsertNotification(ctx context.Context, n *Notification) error {
	if n == nil {
		return errors.New("notification is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO notification (uid, tid, sender, status, message)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT (uid, tid, sender) DO UPDATE SET
             status = excluded.status,
             message = excluded.message`,
		n.UID.Bytes(), n.TID.Bytes(), n.Sender.Bytes(), n.Status, n.Message,
	)
	if err != nil {
		return fmt.Errorf("upsert notification: %w", err)
	}
	return nil
}

// GetNotification fetches a single notification row, nil when absent.
func (s *Store) GetNotification(ctx context.Context, uid, tid, sender ident.ID) (*Notification, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT uid, tid, sender, status, message FROM notification
         WHERE uid = ? AND tid = ? AND sender = ?`,
		uid.Bytes(), tid.Bytes(), sender.Bytes(),
	)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// ListNotifications returns a recipient's notifications, newest task first,
// optionally filtered by status, resuming after the before task id when set.
func (s *Store) ListNotifications(ctx context.Context, uid ident.ID, status *Status, before ident.ID, limit int) ([]*Notification, error) {
	query := `SELECT uid, tid, sender, status, message FROM notification WHERE uid = ?`
	args := []any{uid.Bytes()}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, *status)
	}
	if !before.IsZero() {
		query += ` AND tid < ?`
		args = append(args, before.Bytes())
	}
	query += ` ORDER BY tid DESC LIMIT ?`
	args = append(args, limit)

	return s.queryNotifications(ctx, query, args...)
}

// NotificationsByTask returns every recipient's notification row for a task.
func (s *Store) NotificationsByTask(ctx context.Context, tid ident.ID) ([]*Notification, error) {
	return s.queryNotifications(
		ctx,
		`SELECT uid, tid, sender, status, message FROM notification WHERE tid = ? ORDER BY uid`,
		tid.Bytes(),
	)
}

// DeleteNotification removes one notification row.
func (s *Store) DeleteNotification(ctx context.Context, uid, tid, sender ident.ID) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM notification WHERE uid = ? AND tid = ? AND sender = ?`,
		uid.Bytes(), tid.Bytes(), sender.Bytes(),
	)
	if err != nil {
		return false, fmt.Errorf("delete notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete notification rows affected: %w", err)
	}
	return affected > 0, nil
}

// DeleteNotificationsByTask removes all notification rows referencing a task.
// Called when the task itself is deleted.
func (s *Store) DeleteNotificationsByTask(ctx context.Context, tid ident.ID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notification WHERE tid = ?`, tid.Bytes()); err != nil {
		return fmt.Errorf("delete notifications by task: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM group_notification WHERE tid = ?`, tid.Bytes()); err != nil {
		return fmt.Errorf("delete group notifications by task: %w", err)
	}
	return nil
}

// InsertGroupNotification writes a group announcement row. The insert is
// idempotent: replaying the same (gid, tid, sender) key changes nothing.
func (s *Store) InsertGroupNotification(ctx context.Context, g *GroupNotification) error {
	if g == nil {
		return errors.New("group notification is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO group_notification (gid, tid, sender, role)
         VALUES (?, ?, ?, ?)
         ON CONFLICT (gid, tid, sender) DO NOTHING`,
		g.GID.Bytes(), g.TID.Bytes(), g.Sender.Bytes(), g.Role,
	)
	if err != nil {
		return fmt.Errorf("insert group notification: %w", err)
	}
	return nil
}

// ListGroupNotifications returns a group's announcements visible to a reader
// of the given rank, newest task first. A row's role is the minimum rank
// entitled to see it, so a reader sees every row at or below their own rank.
func (s *Store) ListGroupNotifications(ctx context.Context, gid ident.ID, readerRole Role, before ident.ID, limit int) ([]*GroupNotification, error) {
	query := `SELECT gid, tid, sender, role FROM group_notification WHERE gid = ? AND role <= ?`
	args := []any{gid.Bytes(), readerRole}
	if !before.IsZero() {
		query += ` AND tid < ?`
		args = append(args, before.Bytes())
	}
	query += ` ORDER BY tid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list group notifications: %w", err)
	}
	defer rows.Close()

	var out []*GroupNotification
	for rows.Next() {
		var gidRaw, tidRaw, senderRaw []byte
		var role Role
		if err := rows.Scan(&gidRaw, &tidRaw, &senderRaw, &role); err != nil {
			return nil, fmt.Errorf("scan group notification: %w", err)
		}
		g := &GroupNotification{Role: role}
		if g.GID, err = idFromColumn(gidRaw); err != nil {
			return nil, err
		}
		if g.TID, err = idFromColumn(tidRaw); err != nil {
			return nil, err
		}
		if g.Sender, err = idFromColumn(senderRaw); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// DeleteGroupNotification removes one group announcement row.
func (s *Store) DeleteGroupNotification(ctx context.Context, gid, tid, sender ident.ID) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM group_notification WHERE gid = ? AND tid = ? AND sender = ?`,
		gid.Bytes(), tid.Bytes(), sender.Bytes(),
	)
	if err != nil {
		return false, fmt.Errorf("delete group notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete group notification rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *Store) queryNotifications(ctx context.Context, query string, args ...any) ([]*Notification, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanNotification(scanner interface{ Scan(dest ...any) error }) (*Notification, error) {
	var uidRaw, tidRaw, senderRaw []byte
	n := &Notification{}
	if err := scanner.Scan(&uidRaw, &tidRaw, &senderRaw, &n.Status, &n.Message); err != nil {
		return nil, err
	}
	var err error
	if n.UID, err = idFromColumn(uidRaw); err != nil {
		return nil, err
	}
	if n.TID, err = idFromColumn(tidRaw); err != nil {
		return nil, err
	}
	if n.Sender, err = idFromColumn(senderRaw); err != nil {
		return nil, err
	}
	return n, nil
}
