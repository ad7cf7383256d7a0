package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter builds the API router. Lead forms are posted from arbitrary
// sites, so CORS is open.
func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
	}))
	RegisterRoutes(r, app)
	return r
}

func RegisterRoutes(r chi.Router, app *App) {
	r.Get("/healthz", healthHandler)
	r.Post("/telegram/webhook", app.telegramWebhook)
	r.Post("/leads", app.receiveLead)
	r.Post("/sweeps/{kind}", app.runSweep)

	r.Route("/companies/{companyId}", func(r chi.Router) {
		r.Get("/tasks", app.listTasks)
		r.Post("/tasks", app.createTask)
		r.Post("/tasks/{taskId}/actions/{action}", app.taskAction)
		r.Get("/team", app.teamLoad)
		r.Post("/processes", app.startProcess)
		r.Post("/processes/{processId}/replay", app.replayProcess)
	})
}
