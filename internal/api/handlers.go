package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nhle/ambrose/internal/message"
	"github.com/nhle/ambrose/internal/store"
)

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accounts.ListAccounts(r.Context(), userID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) refreshAccount(w http.ResponseWriter, r *http.Request) {
	res, err := s.accounts.RefreshAccount(r.Context(), userID(r.Context()), chi.URLParam(r, "accountID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.users.Tasks(r.Context(), userID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.users.Task(r.Context(), userID(r.Context()), chi.URLParam(r, "taskID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type taskPatch struct {
	UsesWebhook *bool   `json:"uses_webhook"`
	Nickname    *string `json:"nickname"`
	Branch      *string `json:"branch"`
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	var patch taskPatch
	if err := decodeBody(w, r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}
	task, err := s.users.UpdateTask(r.Context(), userID(r.Context()), chi.URLParam(r, "taskID"), store.TaskSettings{
		UsesWebhook: patch.UsesWebhook,
		Nickname:    patch.Nickname,
		Branch:      patch.Branch,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.users.DeleteTask(r.Context(), userID(r.Context()), chi.URLParam(r, "taskID")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type viewedRequest struct {
	TaskIDs []string `json:"task_ids"`
}

func (s *Server) markViewed(w http.ResponseWriter, r *http.Request) {
	var req viewedRequest
	// An empty body marks every task.
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.fail(w, r, err)
		return
	}
	n, err := s.users.MarkViewed(r.Context(), userID(r.Context()), req.TaskIDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"cleared": n})
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.users.Devices(r.Context(), userID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) deviceLights(w http.ResponseWriter, r *http.Request) {
	lights, err := s.users.DeviceLights(r.Context(), userID(r.Context()), chi.URLParam(r, "deviceID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lights)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.users.Messages(r.Context(), userID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

type messageKind struct {
	Kind      string   `json:"kind"`
	Variables []string `json:"variables"`
}

func (s *Server) messageKinds(w http.ResponseWriter, _ *http.Request) {
	kinds := message.Kinds()
	out := make([]messageKind, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, messageKind{Kind: string(k), Variables: message.Variables(k)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) renderMessage(w http.ResponseWriter, r *http.Request) {
	text, err := s.users.RenderMessage(r.Context(), userID(r.Context()), chi.URLParam(r, "messageID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) listGauges(w http.ResponseWriter, r *http.Request) {
	gauges, err := s.users.Gauges(r.Context(), userID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gauges)
}
