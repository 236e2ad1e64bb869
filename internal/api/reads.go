package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"vidsurvey/internal/pipeline"
	"vidsurvey/internal/services"
	"vidsurvey/internal/store"
)

const maxListLimit = 200

func (s *Server) handleListQuestionnaires(w http.ResponseWriter, r *http.Request) {
	qs, err := s.store.ListQuestionnaires(r.Context())
	if err != nil {
		s.writeFailure(w, r, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, QuestionnaireList{Questionnaires: qs})
}

func (s *Server) handleGetQuestionnaire(w http.ResponseWriter, r *http.Request) {
	q, err := s.store.GetQuestionnaire(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("version"))
	if err != nil {
		s.writeFailure(w, r, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeFailure(w, r, services.Wrap(services.ErrValidation, "api", "list submissions", "limit must be a positive integer", nil), nil)
			return
		}
		limit = min(n, maxListLimit)
	}
	subs, err := s.store.ListSubmissions(r.Context(), limit)
	if err != nil {
		s.writeFailure(w, r, err, nil)
		return
	}
	if subs == nil {
		subs = []*store.Submission{}
	}
	s.writeJSON(w, http.StatusOK, SubmissionList{Submissions: subs})
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := s.store.GetSubmission(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, r, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sub, err := s.store.GetSubmission(ctx, mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, r, err, nil)
		return
	}
	analysis, err := s.store.LatestAnalysis(ctx, sub.ID)
	if err != nil {
		s.writeFailure(w, r, err, nil)
		return
	}
	runs, err := s.store.ListRuns(ctx, sub.ID)
	if err != nil {
		s.writeFailure(w, r, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, AnalysisView{Submission: sub, Analysis: analysis, Runs: runs})
}

func (s *Server) handleListClips(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sub, err := s.store.GetSubmission(ctx, mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, r, err, nil)
		return
	}
	clips, err := s.store.ListClips(ctx, sub.ID)
	if err != nil {
		s.writeFailure(w, r, err, nil)
		return
	}
	if clips == nil {
		clips = []store.Clip{}
	}
	s.writeJSON(w, http.StatusOK, ClipList{Clips: clips})
}

func (s *Server) handleGetClip(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sub, err := s.store.GetSubmission(r.Context(), vars["id"])
	if err != nil {
		s.writeFailure(w, r, err, nil)
		return
	}
	f, blob, err := s.clips.Read(pipeline.SubmissionOwner(sub.ID), vars["name"])
	if err != nil {
		s.writeFailure(w, r, err, nil)
		return
	}
	defer f.Close()
	http.ServeContent(w, r, blob.Name, blob.ModTime, f)
}
