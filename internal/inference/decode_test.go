package inference_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"vidsurvey/internal/inference"
	"vidsurvey/internal/services"
)

func derefAll(values []*float64) []any {
	out := make([]any, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = nil
			continue
		}
		out[i] = *v
	}
	return out
}

func TestSanitizeLeavesStringsAlone(t *testing.T) {
	raw := `{"a":[NaN, Infinity, -Infinity, 0.5],"note":"NaN Infinity \"NaN\""}`
	got := string(inference.Sanitize([]byte(raw)))
	want := `{"a":[null, null, null, 0.5],"note":"NaN Infinity \"NaN\""}`
	if got != want {
		t.Fatalf("Sanitize mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestDecodeCanonicalPayloadWithNonFinite(t *testing.T) {
	raw := []byte(`{
		"normSubjectiveScores": [0.0, 0.5, NaN],
		"normObjectiveScores": [1.0, Infinity, 0.25],
		"agreementStatistic": NaN
	}`)
	out, err := inference.Decode(raw, 3, []int{0, 1, 2})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff([]any{0.0, 0.5, nil}, derefAll(out.Subjective)); diff != "" {
		t.Fatalf("subjective mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{1.0, nil, 0.25}, derefAll(out.Objective)); diff != "" {
		t.Fatalf("objective mismatch (-want +got):\n%s", diff)
	}
	if out.Agreement != nil {
		t.Fatalf("expected null agreement, got %v", *out.Agreement)
	}
}

func TestDecodeEngineAliases(t *testing.T) {
	raw := []byte(`{
		"videoResults": [{"file":"question_01.mp4","global":"calm"},{"file":"question_02.mp4","global":"angry"}],
		"normEmotionScores": [0.2, 1.0],
		"normQuestionnaireScores": [0.33, 0.67],
		"spearmanCorr": -1.0,
		"pValue": NaN
	}`)
	out, err := inference.Decode(raw, 2, []int{0, 1})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Agreement == nil || *out.Agreement != -1 {
		t.Fatalf("expected agreement -1, got %v", out.Agreement)
	}
	if out.PValue != nil {
		t.Fatalf("expected null p-value")
	}
	if len(out.VideoResults) != 2 || out.VideoResults[1].Global != "angry" {
		t.Fatalf("unexpected video results: %+v", out.VideoResults)
	}
}

func TestDecodeRealignsPerClipObjective(t *testing.T) {
	raw := []byte(`{
		"videoResults": [{"file":"question_04.mp4"},{"file":"question_02.mp4"}],
		"normEmotionScores": [0.7, 0.1],
		"normQuestionnaireScores": [0, 0, 0, 0],
		"spearmanCorr": null
	}`)
	out, err := inference.Decode(raw, 4, []int{1, 3})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff([]any{nil, 0.1, nil, 0.7}, derefAll(out.Objective)); diff != "" {
		t.Fatalf("objective mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":        `Traceback (most recent call last):`,
		"empty":           ``,
		"array":           `[1,2,3]`,
		"wrong arity":     `{"normSubjectiveScores":[0,0],"normObjectiveScores":[0,0,0],"agreementStatistic":0.1}`,
		"missing key":     `{"normSubjectiveScores":[0,0,0],"agreementStatistic":0.1}`,
		"out of range":    `{"normSubjectiveScores":[0,0,2],"normObjectiveScores":[0,0,0],"agreementStatistic":0.1}`,
		"bad agreement":   `{"normSubjectiveScores":[0,0,0],"normObjectiveScores":[0,0,0],"agreementStatistic":1.5}`,
		"engine error":    `{"error":"No video files found in /tmp/x"}`,
		"trailing output": `{"normSubjectiveScores":[0,0,0],"normObjectiveScores":[0,0,0],"agreementStatistic":0.1} done`,
		"string values":   `{"normSubjectiveScores":["a",0,0],"normObjectiveScores":[0,0,0],"agreementStatistic":0.1}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := inference.Decode([]byte(raw), 3, []int{0, 1, 2})
			if !errors.Is(err, services.ErrInferenceMalformed) {
				t.Fatalf("expected malformed error, got %v", err)
			}
		})
	}
}

func TestDecodeEngineErrorMessageSurfaces(t *testing.T) {
	_, err := inference.Decode([]byte(`{"error":"No video files found"}`), 1, []int{0})
	if err == nil || !strings.Contains(err.Error(), "No video files found") {
		t.Fatalf("expected engine message in error, got %v", err)
	}
}

func TestMaskObjective(t *testing.T) {
	one := 1.0
	got := inference.MaskObjective([]*float64{&one, &one, &one}, []int{1})
	if diff := cmp.Diff([]any{nil, 1.0, nil}, derefAll(got)); diff != "" {
		t.Fatalf("mask mismatch (-want +got):\n%s", diff)
	}
}
