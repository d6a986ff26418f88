package api

import (
	"fmt"
	"strings"

	"quorum/internal/ident"
	"quorum/internal/store"
)

// FromTask converts a stored task into its transport form.
func FromTask(task *store.Task) Task {
	out := Task{
		UID:       task.UID.String(),
		ID:        task.ID.String(),
		Status:    task.Status.String(),
		Kind:      task.Kind,
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
		Duedate:   task.Duedate,
		Threshold: task.Threshold,
		Assignees: idStrings(task.Assignees),
		Approvers: idStrings(task.Approvers),
		Resolved:  idStrings(task.Resolved),
		Rejected:  idStrings(task.Rejected),
		Message:   task.Message,
		Payload:   task.Payload,
	}
	if !task.GID.IsZero() {
		out.GID = task.GID.String()
	}
	return out
}

// FromTasks converts a listing result.
func FromTasks(tasks []*store.Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, FromTask(task))
	}
	return out
}

// FromNotification converts a stored notification into its transport form.
func FromNotification(n *store.Notification) Notification {
	return Notification{
		UID:     n.UID.String(),
		TID:     n.TID.String(),
		Sender:  n.Sender.String(),
		Status:  n.Status.String(),
		Message: n.Message,
	}
}

// FromNotifications converts a listing result.
func FromNotifications(rows []*store.Notification) []Notification {
	out := make([]Notification, 0, len(rows))
	for _, n := range rows {
		out = append(out, FromNotification(n))
	}
	return out
}

// FromGroupNotification converts a group announcement into its transport form.
func FromGroupNotification(g *store.GroupNotification) GroupNotification {
	return GroupNotification{
		GID:    g.GID.String(),
		TID:    g.TID.String(),
		Sender: g.Sender.String(),
		Role:   g.Role.String(),
	}
}

// FromGroupNotifications converts a listing result.
func FromGroupNotifications(rows []*store.GroupNotification) []GroupNotification {
	out := make([]GroupNotification, 0, len(rows))
	for _, g := range rows {
		out = append(out, FromGroupNotification(g))
	}
	return out
}

// ParseID decodes a required identifier field.
func ParseID(field, value string) (ident.ID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return ident.Zero, fmt.Errorf("%s is required", field)
	}
	id, err := ident.Parse(value)
	if err != nil {
		return ident.Zero, fmt.Errorf("invalid %s: %w", field, err)
	}
	return id, nil
}

// ParseOptionalID decodes an identifier field that may be absent.
func ParseOptionalID(field, value string) (ident.ID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return ident.Zero, nil
	}
	id, err := ident.Parse(value)
	if err != nil {
		return ident.Zero, fmt.Errorf("invalid %s: %w", field, err)
	}
	return id, nil
}

// ParseIDs decodes a list of identifier strings.
func ParseIDs(field string, values []string) ([]ident.ID, error) {
	out := make([]ident.ID, 0, len(values))
	for _, value := range values {
		id, err := ParseID(field, value)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// ParseDecision decodes a decision word ("approve" or "reject").
func ParseDecision(value string) (store.Decision, error) {
	decision, ok := store.ParseDecision(value)
	if !ok {
		return 0, fmt.Errorf("invalid decision %q", value)
	}
	return decision, nil
}

// ParseStatusFilter decodes an optional status word. Empty means no filter.
func ParseStatusFilter(value string) (*store.Status, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	status, ok := store.ParseStatus(value)
	if !ok {
		return nil, fmt.Errorf("invalid status %q", value)
	}
	return &status, nil
}

func idStrings(ids []ident.ID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
