package httpapi

import (
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/engine"
	"github.com/Vortex-technology1/talko-task-manager/internal/notify"
	"github.com/Vortex-technology1/talko-task-manager/internal/store"
	"github.com/Vortex-technology1/talko-task-manager/internal/sweep"
	"github.com/Vortex-technology1/talko-task-manager/internal/tasks"

	"github.com/sirupsen/logrus"
)

// App holds the dependencies of the HTTP handlers.
type App struct {
	Store   store.Store
	Tasks   *tasks.Service
	Engine  *engine.Engine
	Sweeper *sweep.Sweeper
	// Bot answers webhook updates; it is the same client the notifier uses.
	Bot      notify.Dispatcher
	Location *time.Location
	Now      func() time.Time
	Log      *logrus.Logger

	// WebhookSecret, when set, must match the secret-token header Telegram
	// sends with every update.
	WebhookSecret string
	// SweepToken, when set, guards the sweep trigger endpoint.
	SweepToken string
}

func (a *App) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}
