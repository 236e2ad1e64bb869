package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"vidsurvey/internal/inference"
	"vidsurvey/internal/survey"
	"vidsurvey/internal/transcode"
)

// StubTranscoder writes a placeholder mp4 per clip instead of running ffmpeg.
type StubTranscoder struct{}

// TranscodeAll implements the pipeline transcoder.
func (StubTranscoder) TranscodeAll(_ context.Context, clips []transcode.RawClip, outDir string) []transcode.Outcome {
	outcomes := make([]transcode.Outcome, 0, len(clips))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		for _, clip := range clips {
			outcomes = append(outcomes, transcode.Outcome{Ordinal: clip.Ordinal, Err: err})
		}
		return outcomes
	}
	for _, clip := range clips {
		path := filepath.Join(outDir, survey.ClipName(clip.Ordinal, "mp4"))
		if err := os.WriteFile(path, []byte("mp4"), 0o644); err != nil {
			outcomes = append(outcomes, transcode.Outcome{Ordinal: clip.Ordinal, Err: err})
			continue
		}
		outcomes = append(outcomes, transcode.Outcome{Ordinal: clip.Ordinal, Path: path})
	}
	return outcomes
}

// StubAnalyzer returns a fixed engine output and records its inputs.
type StubAnalyzer struct {
	mu     sync.Mutex
	Out    inference.Output
	Err    error
	Calls  int
	Clips  map[int]string
	Scores []int
}

// Run implements the pipeline analyzer.
func (a *StubAnalyzer) Run(_ context.Context, _ string, clips map[int]string, scores []int) (inference.Output, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls++
	a.Clips = clips
	a.Scores = append([]int(nil), scores...)
	return a.Out, a.Err
}

// Uniform returns n copies of v as nullable engine values.
func Uniform(v float64, n int) []*float64 {
	out := make([]*float64, n)
	for i := range out {
		x := v
		out[i] = &x
	}
	return out
}

// Seen returns the clips of the latest call and the number of calls.
func (a *StubAnalyzer) Seen() (map[int]string, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Clips, a.Calls
}
