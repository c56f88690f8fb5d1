package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nhle/ambrose/internal/service"
)

// deviceVisit serves a device polling for its lights. Devices identify
// themselves by UUID only.
func (s *Server) deviceVisit(w http.ResponseWriter, r *http.Request) {
	lights, err := s.users.MarkDeviceVisit(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lights)
}

func (s *Server) releaseHook(w http.ResponseWriter, r *http.Request) {
	payload, err := readPayload(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.accounts.ApplyReleaseWebhook(r.Context(), chi.URLParam(r, "accountID"), payload)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) githubHook(w http.ResponseWriter, r *http.Request) {
	// Deliveries other than pull_request carry nothing a task can use.
	if event := r.Header.Get("X-GitHub-Event"); event != "" && event != "pull_request" {
		writeJSON(w, http.StatusOK, service.WebhookResult{Outcome: "ignored"})
		return
	}
	payload, err := readPayload(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.accounts.ApplyGitHubWebhook(r.Context(),
		chi.URLParam(r, "accountID"), chi.URLParam(r, "taskID"), payload)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func readPayload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: reading payload: %w", service.ErrInvalid, err)
	}
	return payload, nil
}
