//go:build unix

package pipeline_test

import (
	"context"
	"strings"
	"testing"

	"vidsurvey/internal/clipstore"
	"vidsurvey/internal/logging"
	"vidsurvey/internal/pipeline"
	"vidsurvey/internal/testsupport"
)

// copyFFmpeg stands in for ffmpeg: it copies the -i input to the last argument.
const copyFFmpeg = `in=""
for a; do last="$a"; done
while [ $# -gt 0 ]; do
  if [ "$1" = "-i" ]; then in="$2"; fi
  shift
done
cp "$in" "$last"
`

func newConfiguredOrchestrator(t *testing.T, engine string) (*pipeline.Orchestrator, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t,
		testsupport.WithTranscodeScripts(copyFFmpeg, ""),
		testsupport.WithInferenceScript(engine),
	)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.PutQuestionnaire(t, st, testsupport.Questionnaire("phq3", 3))
	clips, err := clipstore.Open(cfg.Paths.ClipDir)
	if err != nil {
		t.Fatalf("clipstore.Open: %v", err)
	}
	orch, err := pipeline.NewFromConfig(cfg, st, clips, logging.NewNop())
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	return orch, cfg.Paths.WorkDir
}

func TestSubmitEndToEndWithEngine(t *testing.T) {
	engine := `ls "$1" > /dev/null || exit 9
echo '{"normQuestionnaireScores":[0,0,0],"normEmotionScores":[1,1,NaN],"spearmanCorr":0.1,"pValue":0.5}'
`
	orch, _ := newConfiguredOrchestrator(t, engine)

	resp, err := orch.Submit(context.Background(), pipeline.Request{
		QuestionnaireID: "phq3",
		Answers:         answersAll(0, 3),
		Clips:           clipUploads(0, 1),
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !resp.AnalysisAvailable {
		t.Fatalf("expected analysis, got %+v", resp)
	}
	if !approx(resp.AdjustedTotal, 3) {
		t.Fatalf("expected adjusted total 3, got %v", resp.AdjustedTotal)
	}
}

func TestSubmitEngineCrashKeepsTotal(t *testing.T) {
	orch, _ := newConfiguredOrchestrator(t, "echo boom >&2\nexit 1\n")

	resp, err := orch.Submit(context.Background(), pipeline.Request{
		QuestionnaireID: "phq3",
		Answers:         answersAll(2, 3),
		Clips:           clipUploads(1),
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if resp.AnalysisAvailable || resp.TotalScore != 6 || resp.AdjustedTotal != 6 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !strings.Contains(resp.InferenceError, "boom") {
		t.Fatalf("expected stderr tail in inference error, got %q", resp.InferenceError)
	}
}
