package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Vortex-technology1/talko-task-manager/internal/actions"
	"github.com/Vortex-technology1/talko-task-manager/internal/engine"
	"github.com/Vortex-technology1/talko-task-manager/internal/models"
	"github.com/Vortex-technology1/talko-task-manager/internal/store"
	"github.com/Vortex-technology1/talko-task-manager/internal/sweep"
	"github.com/Vortex-technology1/talko-task-manager/internal/tasks"

	"github.com/go-chi/chi/v5"
)

const (
	userHeader   = "X-User-ID"
	maxBodyBytes = 1 << 20
	defaultLimit = 50
)

var errNoUser = errors.New("unknown or missing " + userHeader)

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps domain errors to status codes and logs the ones that are ours.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errNoUser), errors.Is(err, engine.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound), errors.Is(err, sweep.ErrUnknownKind):
		status = http.StatusNotFound
	case errors.Is(err, tasks.ErrInvalidTask), errors.Is(err, actions.ErrInvalidAction):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrPrecondition), errors.Is(err, store.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrEmptyTemplate):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		a.Log.WithField("path", r.URL.Path).WithError(err).Error("http: request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// decode reads an optional JSON body into v. An empty body leaves v as is.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// requester resolves the calling user from the X-User-ID header.
func (a *App) requester(r *http.Request, companyID string) (*models.User, error) {
	id := strings.TrimSpace(r.Header.Get(userHeader))
	if id == "" {
		return nil, errNoUser
	}
	u, err := a.Store.GetUser(r.Context(), companyID, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errNoUser
	}
	return u, err
}

func (a *App) receiveLead(w http.ResponseWriter, r *http.Request) {
	var req engine.LeadRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.CompanyID == "" {
		writeError(w, http.StatusBadRequest, "companyId is required")
		return
	}
	if strings.TrimSpace(req.Name) == "" && strings.TrimSpace(req.Phone) == "" && strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "name, phone or email is required")
		return
	}
	res, err := a.Engine.ReceiveLead(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := map[string]any{"ok": true, "leadId": res.Lead.ID}
	if res.Process != nil {
		out["processId"] = res.Process.ID
	}
	if res.Task != nil {
		out["taskId"] = res.Task.ID
	}
	writeJSON(w, http.StatusCreated, out)
}

func (a *App) createTask(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyId")
	u, err := a.requester(r, companyID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req tasks.CreateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.CompanyID = companyID
	req.RequesterID = u.ID
	req.Source = models.SourceAPI

	t, err := a.Tasks.Create(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// listTasks returns open tasks of ?assignee (default: the caller), narrowed
// by ?view=today|overdue.
func (a *App) listTasks(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyId")
	u, err := a.requester(r, companyID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	assignee := q.Get("assignee")
	if assignee == "" {
		assignee = u.ID
	}
	limit := defaultLimit
	if s := q.Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	var list []models.Task
	switch q.Get("view") {
	case "today":
		list, err = a.Tasks.DueToday(r.Context(), companyID, assignee, limit)
	case "overdue":
		list, err = a.Tasks.Overdue(r.Context(), companyID, assignee, limit)
	case "":
		list, err = a.Tasks.OpenTasks(r.Context(), companyID, assignee, limit)
	default:
		writeError(w, http.StatusBadRequest, "unknown view")
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list})
}

type actionRequest struct {
	Comment        string `json:"comment"`
	TrackedMinutes int    `json:"trackedMinutes"`
}

func (a *App) taskAction(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyId")
	u, err := a.requester(r, companyID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	act, err := actions.Parse(chi.URLParam(r, "action"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var body actionRequest
	if err := decode(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	out, err := a.Tasks.Transition(r.Context(), tasks.TransitionRequest{
		CompanyID:      companyID,
		TaskID:         chi.URLParam(r, "taskId"),
		Action:         act,
		ActorID:        u.ID,
		Comment:        body.Comment,
		TrackedMinutes: body.TrackedMinutes,
		Source:         models.SourceAPI,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task":           out.Task,
		"changed":        out.Changed,
		"alreadyInState": out.AlreadyInState,
	})
}

type loadItem struct {
	UserID  string `json:"userId"`
	Name    string `json:"name"`
	Open    int    `json:"open"`
	Overdue int    `json:"overdue"`
}

func (a *App) teamLoad(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyId")
	if _, err := a.requester(r, companyID); err != nil {
		a.fail(w, r, err)
		return
	}
	loads, err := a.Tasks.TeamLoad(r.Context(), companyID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]loadItem, 0, len(loads))
	for _, l := range loads {
		items = append(items, loadItem{UserID: l.User.ID, Name: l.User.DisplayName(), Open: l.Open, Overdue: l.Overdue})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type startProcessRequest struct {
	TemplateID   string `json:"templateId"`
	TemplateName string `json:"templateName"`
	ObjectName   string `json:"objectName"`
	Deadline     string `json:"deadline"`
}

func (a *App) startProcess(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyId")
	u, err := a.requester(r, companyID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req startProcessRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.TemplateID == "" && req.TemplateName == "" {
		writeError(w, http.StatusBadRequest, "templateId or templateName is required")
		return
	}
	p, t, err := a.Engine.StartProcess(r.Context(), engine.StartRequest{
		CompanyID:    companyID,
		TemplateID:   req.TemplateID,
		TemplateName: req.TemplateName,
		ObjectName:   req.ObjectName,
		Deadline:     req.Deadline,
		CreatedBy:    u.ID,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"process": p, "task": t})
}

// replayProcess advances a process whose current-step completion was never
// processed, or recreates a missing current-step task. It is a no-op on a
// healthy process.
func (a *App) replayProcess(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyId")
	if _, err := a.requester(r, companyID); err != nil {
		a.fail(w, r, err)
		return
	}
	rp, err := a.Engine.ActivateStep(r.Context(), companyID, chi.URLParam(r, "processId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"process": rp.Process, "task": rp.Task, "created": rp.Created,
		"advanced": rp.Advanced, "completed": rp.Completed,
	})
}

func (a *App) runSweep(w http.ResponseWriter, r *http.Request) {
	if a.SweepToken != "" && r.Header.Get("Authorization") != "Bearer "+a.SweepToken {
		writeError(w, http.StatusUnauthorized, "invalid sweep token")
		return
	}
	st, err := a.Sweeper.Run(r.Context(), chi.URLParam(r, "kind"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
