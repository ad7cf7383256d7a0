// Package worker reacts to task lifecycle events: it sends the new-task
// notice and drives process advancement on completions.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/Vortex-technology1/talko-task-manager/internal/engine"
	"github.com/Vortex-technology1/talko-task-manager/internal/models"
	"github.com/Vortex-technology1/talko-task-manager/internal/queue"
	"github.com/Vortex-technology1/talko-task-manager/internal/store"

	"github.com/sirupsen/logrus"
)

// CreatedNotifier sends the new-task notice; *tasks.Service implements it.
type CreatedNotifier interface {
	NotifyCreated(ctx context.Context, t models.Task)
}

type Handler struct {
	store   store.Store
	created CreatedNotifier
	engine  *engine.Engine
	log     *logrus.Logger
}

func New(st store.Store, created CreatedNotifier, eng *engine.Engine, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{store: st, created: created, engine: eng, log: log}
}

// HandleTaskEvent returns an error only when the event should be retried.
func (h *Handler) HandleTaskEvent(ctx context.Context, e queue.TaskEvent) error {
	log := h.log.WithFields(logrus.Fields{"company": e.CompanyID, "task": e.TaskID, "event": e.Type})

	switch e.Type {
	case queue.TypeTaskCreated:
		t, err := h.store.GetTask(ctx, e.CompanyID, e.TaskID)
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("worker: created task is gone")
			return nil
		}
		if err != nil {
			return fmt.Errorf("load task: %w", err)
		}
		h.created.NotifyCreated(ctx, *t)
		return nil

	case queue.TypeTaskStatusChanged:
		res, err := h.engine.OnTaskStatusChanged(ctx, *e.Before, *e.After)
		if err != nil {
			return err
		}
		if res.Advanced {
			log.WithFields(logrus.Fields{"process": res.Process.ID, "completed": res.Completed}).Debug("worker: process advanced")
		}
		return nil
	}
	log.Warn("worker: ignoring unknown event")
	return nil
}

var _ queue.Handler = (*Handler)(nil)
