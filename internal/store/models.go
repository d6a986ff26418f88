package store

import (
	"strings"

	"quorum/internal/ident"
)

// Status represents the lifecycle of a task.
type Status int8

const (
	StatusRejected   Status = -1
	StatusProcessing Status = 0
	StatusResolved   Status = 1
)

// String renders the lowercase name used in CLI output and log lines.
func (s Status) String() string {
	switch s {
	case StatusRejected:
		return "rejected"
	case StatusProcessing:
		return "processing"
	case StatusResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the status absorbs further votes.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusRejected
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "rejected":
		return StatusRejected, true
	case "processing":
		return StatusProcessing, true
	case "resolved":
		return StatusResolved, true
	default:
		return StatusProcessing, false
	}
}

// Decision is a single voter's verdict.
type Decision int8

const (
	DecisionReject  Decision = -1
	DecisionApprove Decision = 1
)

func (d Decision) String() string {
	switch d {
	case DecisionApprove:
		return "approve"
	case DecisionReject:
		return "reject"
	default:
		return "unknown"
	}
}

// ParseDecision converts a string into a known Decision.
func ParseDecision(value string) (Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "approve", "resolve":
		return DecisionApprove, true
	case "reject":
		return DecisionReject, true
	default:
		return DecisionApprove, false
	}
}

// Role is a group membership rank. Group notifications carry the minimum
// role entitled to see them.
type Role int8

const (
	RoleMember Role = 0
	RoleAdmin  Role = 1
	RoleOwner  Role = 2
)

func (r Role) String() string {
	switch r {
	case RoleMember:
		return "member"
	case RoleAdmin:
		return "admin"
	case RoleOwner:
		return "owner"
	default:
		return "unknown"
	}
}

// Task is the persisted approval unit. The identifier pair (UID, ID) is the
// primary key; ID orders tasks newest-first within an owner.
type Task struct {
	UID       ident.ID
	ID        ident.ID
	GID       ident.ID // zero when the task has no owning group
	Status    Status
	Kind      string
	CreatedAt int64 // unix milliseconds
	UpdatedAt int64
	Duedate   int64
	Threshold int
	Approvers []ident.ID
	Assignees []ident.ID
	Resolved  []ident.ID
	Rejected  []ident.ID
	Message   string
	Payload   []byte
}

// IsTerminal reports whether the task has reached a final status.
func (t *Task) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// Recipients returns the direct-notification audience: assignees plus any
// additional approvers, deduplicated.
func (t *Task) Recipients() []ident.ID {
	return ident.Union(t.Assignees, t.Approvers)
}

// CanVote reports whether voter belongs to the task's voting population.
func (t *Task) CanVote(voter ident.ID) bool {
	return ident.ContainsID(t.Assignees, voter) || ident.ContainsID(t.Approvers, voter)
}

// VoteOutcome describes the result of a set-union vote write.
type VoteOutcome struct {
	// Recorded is true when this call inserted the vote. False means the
	// voter already had a vote on record; Existing carries its decision.
	Recorded bool
	Existing Decision
}

// Notification is a direct per-recipient projection of a task event, keyed
// (UID, TID, Sender). Rewrites with the latest status are expected.
type Notification struct {
	UID     ident.ID // recipient
	TID     ident.ID
	Sender  ident.ID // task creator
	Status  Status
	Message string
}

// GroupNotification is a group-scoped projection written once at task
// creation. Readers resolve membership and follow TID back to the task.
type GroupNotification struct {
	GID    ident.ID
	TID    ident.ID
	Sender ident.ID
	Role   Role // minimum role entitled to see the notification
}
