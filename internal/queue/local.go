package queue

import (
	"context"
	"errors"
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/models"
)

var errNoHandler = errors.New("queue: no handler")

// Local delivers events synchronously to a Handler in the same process. It
// stands in for Kafka with the memory backend and in tests.
type Local struct {
	Handler Handler
	Now     func() time.Time
}

func (l *Local) TaskCreated(ctx context.Context, t models.Task) error {
	return l.dispatch(ctx, createdEvent(t, l.at()))
}

func (l *Local) TaskStatusChanged(ctx context.Context, before, after models.Task) error {
	return l.dispatch(ctx, statusEvent(before, after, l.at()))
}

func (l *Local) dispatch(ctx context.Context, e TaskEvent) error {
	if l.Handler == nil {
		return errNoHandler
	}
	if err := e.validate(); err != nil {
		return err
	}
	return l.Handler.HandleTaskEvent(ctx, e)
}

func (l *Local) at() int64 {
	if l.Now == nil {
		return time.Now().UnixMilli()
	}
	return l.Now().UnixMilli()
}
