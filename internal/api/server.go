package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"vidsurvey/internal/clipstore"
	"vidsurvey/internal/deps"
	"vidsurvey/internal/logging"
	"vidsurvey/internal/pipeline"
	"vidsurvey/internal/services"
	"vidsurvey/internal/store"
)

const (
	defaultMaxUploadBytes = 100 << 20
	multipartMemory       = 8 << 20
)

// Submitter runs submissions through the media pipeline.
type Submitter interface {
	Submit(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
	Reanalyze(ctx context.Context, submissionID string) (pipeline.Response, error)
	StageClip(ctx context.Context, questionnaireID, sessionID string, clip pipeline.ClipUpload) (store.Clip, error)
}

// Options wires the server's collaborators. Dependencies may be nil.
type Options struct {
	Store          *store.Store
	Clips          *clipstore.Store
	Pipeline       Submitter
	Token          string
	MaxUploadBytes int64
	Version        string
	Dependencies   func(context.Context) []deps.Status
	Logger         *slog.Logger
}

// Server handles the HTTP API.
type Server struct {
	store     *store.Store
	clips     *clipstore.Store
	pipeline  Submitter
	token     string
	maxUpload int64
	version   string
	deps      func(context.Context) []deps.Status
	logger    *slog.Logger
	router    *mux.Router
}

// New builds the server and its routes.
func New(opts Options) (*Server, error) {
	if opts.Store == nil || opts.Clips == nil || opts.Pipeline == nil {
		return nil, errors.New("api server requires store, clip store, and pipeline")
	}
	s := &Server{
		store:     opts.Store,
		clips:     opts.Clips,
		pipeline:  opts.Pipeline,
		token:     strings.TrimSpace(opts.Token),
		maxUpload: opts.MaxUploadBytes,
		version:   opts.Version,
		deps:      opts.Dependencies,
		logger:    logging.NewComponentLogger(opts.Logger, "api"),
	}
	if s.maxUpload <= 0 {
		s.maxUpload = defaultMaxUploadBytes
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestID, s.accessLog)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	a := r.PathPrefix("/api").Subrouter()
	a.Use(s.auth)
	a.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	a.HandleFunc("/questionnaires", s.handleListQuestionnaires).Methods(http.MethodGet)
	a.HandleFunc("/questionnaires/{id}", s.handleGetQuestionnaire).Methods(http.MethodGet)
	a.HandleFunc("/questionnaires/{id}/submissions", s.handleSubmit).Methods(http.MethodPost)
	a.HandleFunc("/questionnaires/{id}/clips", s.handleStageClip).Methods(http.MethodPost)

	a.HandleFunc("/submissions", s.handleListSubmissions).Methods(http.MethodGet)
	a.HandleFunc("/submissions/{id}", s.handleGetSubmission).Methods(http.MethodGet)
	a.HandleFunc("/submissions/{id}/analysis", s.handleGetAnalysis).Methods(http.MethodGet)
	a.HandleFunc("/submissions/{id}/reanalyze", s.handleReanalyze).Methods(http.MethodPost)
	a.HandleFunc("/submissions/{id}/clips", s.handleListClips).Methods(http.MethodGet)
	a.HandleFunc("/submissions/{id}/clips/{name}", s.handleGetClip).Methods(http.MethodGet)
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	view := StatusView{Version: s.version, Database: s.store.Path()}
	if err := s.store.Ping(r.Context()); err != nil {
		logging.WarnWithContext(logging.WithContext(r.Context(), s.logger), "database ping failed", "status_db_unreachable",
			logging.Error(err),
		)
		s.writeFailure(w, r, services.Wrap(services.ErrPersistence, "api", "status", "database unreachable", err), nil)
		return
	}
	if s.deps != nil {
		view.Dependencies = s.deps(r.Context())
	}
	s.writeJSON(w, http.StatusOK, view)
}
