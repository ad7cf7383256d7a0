// Package actions defines the inline-button triggers bound to a task.
package actions

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAction is returned for payloads that do not decode to a Trigger.
var ErrInvalidAction = errors.New("invalid action")

type Action int

const (
	Done Action = iota + 1
	Progress
	Postpone
	Details
)

var names = map[Action]string{
	Done:     "done",
	Progress: "progress",
	Postpone: "postpone",
	Details:  "details",
}

func (a Action) String() string {
	if n, ok := names[a]; ok {
		return n
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Parse maps a wire name to an Action.
func Parse(s string) (Action, error) {
	for a, n := range names {
		if n == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Trigger is a decoded button press.
type Trigger struct {
	Action    Action
	CompanyID string
	TaskID    string
}

// ParseTrigger decodes "<action>:<companyId>:<taskId>".
func ParseTrigger(payload string) (Trigger, error) {
	parts := strings.Split(payload, ":")
	if len(parts) != 3 {
		return Trigger{}, fmt.Errorf("%w: want 3 fields, got %d", ErrInvalidAction, len(parts))
	}
	a, err := Parse(parts[0])
	if err != nil {
		return Trigger{}, err
	}
	if parts[1] == "" || parts[2] == "" {
		return Trigger{}, fmt.Errorf("%w: empty company or task id", ErrInvalidAction)
	}
	return Trigger{Action: a, CompanyID: parts[1], TaskID: parts[2]}, nil
}

// Payload encodes the trigger in its wire form.
func (t Trigger) Payload() string {
	return t.Action.String() + ":" + t.CompanyID + ":" + t.TaskID
}
