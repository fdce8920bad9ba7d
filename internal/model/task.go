package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskTag categorizes tasks for reporting and queue selection.
type TaskTag string

const (
	TagSendMail   TaskTag = "send-mail"
	TagManageForm TaskTag = "manage-form"
	TagDriveFile  TaskTag = "drive-file"
	TagDefault    TaskTag = "default"
)

// TaskState is the lifecycle state of a submitted task.
//
//	PENDING -> STARTED -> SUCCESS | FAILURE | IGNORED
type TaskState string

const (
	TaskPending TaskState = "PENDING"
	TaskStarted TaskState = "STARTED"
	TaskSuccess TaskState = "SUCCESS"
	TaskFailure TaskState = "FAILURE"
	TaskIgnored TaskState = "IGNORED"
)

// Terminal reports whether no further transition is possible.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskSuccess, TaskFailure, TaskIgnored:
		return true
	}
	return false
}

// TaskFailureInfo is persisted when a task raises.
type TaskFailureInfo struct {
	Tag         TaskTag         `json:"tag"`
	Task        string          `json:"task"`
	Description string          `json:"description"`
	Trace       string          `json:"trace"`
	Args        json.RawMessage `json:"args"`
}

// TaskRecord is the durable result of one task execution.
//
// Its ID doubles as the broker task ID, so a redelivered message always
// finds the record of its first delivery.
type TaskRecord struct {
	ID         uuid.UUID        `json:"id" db:"id"`
	Name       string           `json:"name" db:"name"`
	Tag        TaskTag          `json:"tag" db:"tag"`
	GroupID    *uuid.UUID       `json:"groupId" db:"group_id"`
	State      TaskState        `json:"state" db:"state"`
	Args       json.RawMessage  `json:"args" db:"args"`
	Result     json.RawMessage  `json:"result,omitempty" db:"result"`
	Failure    *TaskFailureInfo `json:"failure,omitempty" db:"failure"`
	CreatedAt  time.Time        `json:"createdAt" db:"created_at"`
	StartedAt  *time.Time       `json:"startedAt" db:"started_at"`
	FinishedAt *time.Time       `json:"finishedAt" db:"finished_at"`
}

// TaskIDPayload binds GET /tasks/:id.
type TaskIDPayload struct {
	ID uuid.UUID `param:"id" validate:"required"`
}

func (p *TaskIDPayload) Validate() error {
	return validate.Struct(p)
}

// TaskGroupPayload binds GET /tasks?group_id=.
type TaskGroupPayload struct {
	GroupID uuid.UUID `query:"group_id" validate:"required"`
}

func (p *TaskGroupPayload) Validate() error {
	return validate.Struct(p)
}

// StaleTasksPayload binds GET /tasks/stale?older_than=.
// OlderThan is in seconds; zero means the service default.
type StaleTasksPayload struct {
	OlderThan int `query:"older_than" validate:"omitempty,min=1"`
}

func (p *StaleTasksPayload) Validate() error {
	return validate.Struct(p)
}
