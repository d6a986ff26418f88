package api

// Task is the transport representation of a stored task.
type Task struct {
	UID       string   `json:"uid"`
	ID        string   `json:"id"`
	GID       string   `json:"gid,omitempty"`
	Status    string   `json:"status"`
	Kind      string   `json:"kind,omitempty"`
	CreatedAt int64    `json:"createdAt"`
	UpdatedAt int64    `json:"updatedAt"`
	Duedate   int64    `json:"duedate,omitempty"`
	Threshold int      `json:"threshold"`
	Assignees []string `json:"assignees"`
	Approvers []string `json:"approvers,omitempty"`
	Resolved  []string `json:"resolved,omitempty"`
	Rejected  []string `json:"rejected,omitempty"`
	Message   string   `json:"message,omitempty"`
	Payload   []byte   `json:"payload,omitempty"`
}

// Notification is the transport representation of a per-recipient row.
type Notification struct {
	UID     string `json:"uid"`
	TID     string `json:"tid"`
	Sender  string `json:"sender"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// GroupNotification is the transport representation of a group announcement.
type GroupNotification struct {
	GID    string `json:"gid"`
	TID    string `json:"tid"`
	Sender string `json:"sender"`
	Role   string `json:"role"`
}

// CreateTaskRequest carries the fields for POST /api/tasks.
type CreateTaskRequest struct {
	UID       string   `json:"uid"`
	ID        string   `json:"id,omitempty"` // optional idempotency key
	GID       string   `json:"gid,omitempty"`
	Kind      string   `json:"kind,omitempty"`
	Duedate   int64    `json:"duedate,omitempty"`
	Threshold int      `json:"threshold"`
	Assignees []string `json:"assignees"`
	Approvers []string `json:"approvers,omitempty"`
	Message   string   `json:"message,omitempty"`
	Payload   []byte   `json:"payload,omitempty"`
}

// VoteRequest carries a decision for POST /api/tasks/vote.
type VoteRequest struct {
	UID      string `json:"uid"`
	ID       string `json:"id"`
	Voter    string `json:"voter"`
	Decision string `json:"decision"`
}

// DeleteTaskRequest identifies a task for POST /api/tasks/delete.
type DeleteTaskRequest struct {
	UID string `json:"uid"`
	ID  string `json:"id"`
}

// AckRequest resolves a notification into a vote.
type AckRequest struct {
	UID      string `json:"uid"`
	TID      string `json:"tid"`
	Sender   string `json:"sender"`
	Decision string `json:"decision"`
}

// DismissRequest removes a notification without voting.
type DismissRequest struct {
	UID    string `json:"uid"`
	TID    string `json:"tid"`
	Sender string `json:"sender"`
}

// TaskResponse wraps a single task.
type TaskResponse struct {
	Task Task `json:"task"`
}

// TaskListResponse is one page of a task listing.
type TaskListResponse struct {
	Tasks     []Task `json:"tasks"`
	NextToken string `json:"nextToken,omitempty"`
}

// NotificationListResponse is one page of a notification listing.
type NotificationListResponse struct {
	Notifications []Notification `json:"notifications"`
	NextToken     string         `json:"nextToken,omitempty"`
}

// GroupNotificationListResponse is one page of a group announcement listing.
type GroupNotificationListResponse struct {
	Notifications []GroupNotification `json:"notifications"`
	NextToken     string              `json:"nextToken,omitempty"`
}

// DaemonStatus reports daemon runtime information.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid,omitempty"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	Tasks        map[string]int `json:"tasks"`
	FanoutLag    int            `json:"fanoutLag"`
}
