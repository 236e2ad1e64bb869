package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"vidsurvey/internal/logging"
	"vidsurvey/internal/pipeline"
	"vidsurvey/internal/services"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorBody{Error: message})
}

// writeFailure maps err to a status code. A non-nil resp that got as far as
// scoring contributes its total score and submission id.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error, resp *pipeline.Response) {
	status := services.HTTPStatus(err)
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		status = http.StatusRequestEntityTooLarge
	}
	body := ErrorBody{Error: err.Error()}
	if resp != nil && resp.State != "" {
		total := resp.TotalScore
		body.TotalScore = &total
		body.SubmissionID = resp.SubmissionID
	}
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "request failed", "api_request_failed",
			logging.Error(err),
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
		)
	}
	s.writeJSON(w, status, body)
}
