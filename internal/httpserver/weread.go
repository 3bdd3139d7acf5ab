package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"notiontools/dashboard-gateway/internal/envelope"
	"notiontools/dashboard-gateway/internal/weread"
)

func (a *api) registerSigninRoutes(r chi.Router) {
	r.Use(a.requireService(a.SigninTasks != nil, "signin task service unavailable"))

	r.Post("/", a.createSigninTask)
	r.Route("/tasks", func(r chi.Router) {
		r.Use(a.requireSession)
		r.Get("/", a.listSigninTasks)
		r.Get("/{id}", a.getSigninTask)
		r.Delete("/{id}", a.deleteSigninTask)
	})
}

func (a *api) createSigninTask(w http.ResponseWriter, r *http.Request) {
	var req weread.SigninRequest
	if err := decodeBody(w, r, &req); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	task, err := a.SigninTasks.Create(req)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	auditReq(a.Audit, r, "", "weread.signin.create", "success", "", "task="+task.ID)
	writeJSON(w, http.StatusOK, envelope.OK(task.Result()))
}

func (a *api) listSigninTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := a.SigninTasks.List(r.URL.Query().Get("auth_code"))
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	views := make([]weread.TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, t.View())
	}
	writeJSON(w, http.StatusOK, envelope.OK(views))
}

func (a *api) getSigninTask(w http.ResponseWriter, r *http.Request) {
	task, err := a.SigninTasks.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope.OK(task.View()))
}

func (a *api) deleteSigninTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.SigninTasks.Delete(id); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	auditReq(a.Audit, r, "", "weread.signin.delete", "success", "", "task="+id)
	writeJSON(w, http.StatusOK, envelope.OK(map[string]bool{"success": true}))
}
