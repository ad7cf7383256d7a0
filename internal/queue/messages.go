// Package queue carries task lifecycle events from the API to the workers
// that drive notifications and process advancement.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Vortex-technology1/talko-task-manager/internal/models"
)

// Event types.
const (
	TypeTaskCreated       = "task_created"
	TypeTaskStatusChanged = "task_status_changed"
)

var ErrInvalidEvent = errors.New("queue: invalid event")

// TaskEvent is one lifecycle change. Before and After are full snapshots so
// the consumer sees exactly the transition that was committed.
type TaskEvent struct {
	Type      string       `json:"type"`
	CompanyID string       `json:"company_id"`
	TaskID    string       `json:"task_id"`
	Before    *models.Task `json:"before,omitempty"`
	After     *models.Task `json:"after,omitempty"`
	At        int64        `json:"at"` // epoch ms
	// Attempt counts parkings on the retry topic.
	Attempt int `json:"attempt,omitempty"`
	// NotBefore holds a parked event back until this epoch ms.
	NotBefore int64 `json:"not_before,omitempty"`
}

// Key orders events: everything for one process lands on one partition,
// otherwise everything for one task does.
func (e TaskEvent) Key() string {
	if e.After != nil && e.After.ProcessID != "" {
		return e.CompanyID + "/p/" + e.After.ProcessID
	}
	return e.CompanyID + "/t/" + e.TaskID
}

func (e TaskEvent) validate() error {
	if e.CompanyID == "" || e.TaskID == "" {
		return fmt.Errorf("%w: missing company or task id", ErrInvalidEvent)
	}
	switch e.Type {
	case TypeTaskCreated:
	case TypeTaskStatusChanged:
		if e.Before == nil || e.After == nil {
			return fmt.Errorf("%w: status change without snapshots", ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	return nil
}

func Encode(e TaskEvent) ([]byte, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

func Decode(b []byte) (TaskEvent, error) {
	var e TaskEvent
	if err := json.Unmarshal(b, &e); err != nil {
		return TaskEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := e.validate(); err != nil {
		return TaskEvent{}, err
	}
	return e, nil
}

// Publisher writes an event to a topic.
type Publisher interface {
	Publish(ctx context.Context, e TaskEvent) error
}

// Handler processes one event. A nil return means the event may be
// acknowledged.
type Handler interface {
	HandleTaskEvent(ctx context.Context, e TaskEvent) error
}

type HandlerFunc func(ctx context.Context, e TaskEvent) error

func (f HandlerFunc) HandleTaskEvent(ctx context.Context, e TaskEvent) error { return f(ctx, e) }

func createdEvent(t models.Task, at int64) TaskEvent {
	return TaskEvent{Type: TypeTaskCreated, CompanyID: t.CompanyID, TaskID: t.ID, After: &t, At: at}
}

func statusEvent(before, after models.Task, at int64) TaskEvent {
	return TaskEvent{
		Type: TypeTaskStatusChanged, CompanyID: after.CompanyID, TaskID: after.ID,
		Before: &before, After: &after, At: at,
	}
}
