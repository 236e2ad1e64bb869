package testsupport

import (
	"net/http/httptest"
	"testing"

	"vidsurvey/internal/api"
	"vidsurvey/internal/clipstore"
	"vidsurvey/internal/config"
	"vidsurvey/internal/logging"
	"vidsurvey/internal/pipeline"
	"vidsurvey/internal/store"
	"vidsurvey/internal/survey"
)

// APIHarness is a running API server backed by real storage and stubbed
// media stages.
type APIHarness struct {
	Config        *config.Config
	Server        *httptest.Server
	Store         *store.Store
	Clips         *clipstore.Store
	Analyzer      *StubAnalyzer
	Questionnaire survey.Questionnaire
}

// NewAPI starts an httptest server with a published 7-item questionnaire
// "phq7". The analyzer may be nil.
func NewAPI(t testing.TB, analyzer *StubAnalyzer, opts ...ConfigOption) APIHarness {
	t.Helper()

	cfg := NewConfig(t, opts...)
	st := MustOpenStore(t, cfg)
	q := PutQuestionnaire(t, st, Questionnaire("phq7", 7))
	clips, err := clipstore.Open(cfg.Paths.ClipDir)
	if err != nil {
		t.Fatalf("clipstore.Open: %v", err)
	}
	if analyzer == nil {
		analyzer = &StubAnalyzer{}
	}
	orch, err := pipeline.New(pipeline.Options{
		Store:      st,
		Clips:      clips,
		Transcoder: StubTranscoder{},
		Analyzer:   analyzer,
		WorkDir:    cfg.Paths.WorkDir,
		MaxClips:   cfg.Upload.MaxClips,
		Logger:     logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	srv, err := api.New(api.Options{
		Store:          st,
		Clips:          clips,
		Pipeline:       orch,
		Token:          cfg.Paths.APIToken,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		Version:        "test",
		Logger:         logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return APIHarness{Config: cfg, Server: ts, Store: st, Clips: clips, Analyzer: analyzer, Questionnaire: q}
}
