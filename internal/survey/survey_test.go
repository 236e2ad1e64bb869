package survey_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"vidsurvey/internal/survey"
)

func intPtr(v int) *int { return &v }

func sevenItems() survey.Questionnaire {
	q := survey.Questionnaire{ID: "phq", Title: "Mood check", Version: "1.0"}
	for i := 0; i < 7; i++ {
		q.Items = append(q.Items, survey.Item{
			ID:      "q" + string(rune('1'+i)),
			Prompt:  "How often?",
			Ordinal: i,
			Options: []string{"Never", "Sometimes", "Often", "Always"},
		})
	}
	return q
}

func TestScoreAllAnsweredOne(t *testing.T) {
	q := sevenItems()
	inputs := make([]survey.AnswerInput, 0, len(q.Items))
	for _, item := range q.Items {
		inputs = append(inputs, survey.AnswerInput{QuestionID: item.ID, OptionIndex: intPtr(1)})
	}
	answers, total := survey.Score(q, inputs)
	if total != 7 {
		t.Fatalf("expected total 7, got %d", total)
	}
	if got := survey.Scores(answers); !cmp.Equal(got, []int{1, 1, 1, 1, 1, 1, 1}) {
		t.Fatalf("unexpected scores: %v", got)
	}
	if answers[0].OptionText != "Sometimes" {
		t.Fatalf("unexpected option text %q", answers[0].OptionText)
	}
}

func TestScoreClampsAndMarksUnanswered(t *testing.T) {
	q := sevenItems()
	inputs := []survey.AnswerInput{
		{QuestionID: "q1", OptionIndex: intPtr(9)},
		{QuestionID: "q2", OptionIndex: intPtr(-1)},
		{QuestionID: "q3"},
		{Index: intPtr(3), OptionIndex: intPtr(2)},
		{QuestionID: "q5", OptionIndex: intPtr(-4)},
	}
	answers, total := survey.Score(q, inputs)

	want := []survey.Answer{
		{QuestionID: "q1", Prompt: "How often?", OptionIndex: 9, OptionText: survey.NotAnsweredText, Score: 3},
		{QuestionID: "q2", Prompt: "How often?", OptionIndex: survey.Unanswered, OptionText: survey.NotAnsweredText, Score: 0},
		{QuestionID: "q3", Prompt: "How often?", OptionIndex: survey.Unanswered, OptionText: survey.NotAnsweredText, Score: 0},
		{QuestionID: "q4", Prompt: "How often?", OptionIndex: 2, OptionText: "Often", Score: 2},
		{QuestionID: "q5", Prompt: "How often?", OptionIndex: survey.Unanswered, OptionText: survey.NotAnsweredText, Score: 0},
		{QuestionID: "q6", Prompt: "How often?", OptionIndex: survey.Unanswered, OptionText: survey.NotAnsweredText, Score: 0},
		{QuestionID: "q7", Prompt: "How often?", OptionIndex: survey.Unanswered, OptionText: survey.NotAnsweredText, Score: 0},
	}
	if diff := cmp.Diff(want, answers); diff != "" {
		t.Fatalf("answers mismatch (-want +got):\n%s", diff)
	}
	if total != 5 {
		t.Fatalf("expected total 5, got %d", total)
	}
}

func TestScoreInvariants(t *testing.T) {
	q := sevenItems()
	for opt := -3; opt <= 8; opt++ {
		inputs := make([]survey.AnswerInput, len(q.Items))
		for i := range inputs {
			inputs[i] = survey.AnswerInput{OptionIndex: intPtr(opt + i)}
		}
		answers, total := survey.Score(q, inputs)
		if len(answers) != len(q.Items) {
			t.Fatalf("expected %d answers, got %d", len(q.Items), len(answers))
		}
		sum := 0
		for _, a := range answers {
			if a.Score < 0 || a.Score > survey.ItemScale {
				t.Fatalf("score %d out of range", a.Score)
			}
			sum += a.Score
		}
		if sum != total {
			t.Fatalf("total %d != sum %d", total, sum)
		}
		if total < 0 || total > survey.ItemScale*len(q.Items) {
			t.Fatalf("total %d out of range", total)
		}
	}
}

func TestAnswerInputLooseDecoding(t *testing.T) {
	payload := `[
		{"questionId":"q1","optionIndex":2},
		{"questionId":"q2","optionIndex":"1"},
		{"questionId":"q3","optionIndex":"often"},
		{"questionId":"q4","optionIndex":null},
		{"questionId":"q5","optionIndex":1.5},
		{"index":5,"optionIndex":0}
	]`
	var inputs []survey.AnswerInput
	if err := json.Unmarshal([]byte(payload), &inputs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	answers, _ := survey.Score(sevenItems(), inputs)
	got := make([]int, len(answers))
	for i, a := range answers {
		got[i] = a.OptionIndex
	}
	want := []int{2, 1, -1, -1, -1, 0, -1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("option indexes mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize(t *testing.T) {
	got := survey.NormalizeAll([]int{0, 3})
	if diff := cmp.Diff([]float64{0, 1}, got); diff != "" {
		t.Fatalf("normalize mismatch: %s", diff)
	}
	if survey.Normalize(1)*survey.ItemScale != 1 {
		t.Fatal("expected normalize to round-trip through the item scale")
	}
}

func TestLoadFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mood.yaml")
	content := `title: Mood check
items:
  - prompt: Little interest or pleasure in doing things?
    options: [Not at all, Several days, More than half the days, Nearly every day]
  - id: sleep
    prompt: Trouble sleeping?
    options: [Not at all, Several days, More than half the days, Nearly every day]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	q, err := survey.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if q.ID != "mood" || q.Version != "1.0" {
		t.Fatalf("unexpected defaults: id=%q version=%q", q.ID, q.Version)
	}
	if q.Items[0].ID != "q1" || q.Items[1].ID != "sleep" || q.Items[1].Ordinal != 1 {
		t.Fatalf("unexpected items: %+v", q.Items)
	}
}

func TestLoadFileRejectsUnknownFieldsAndDuplicates(t *testing.T) {
	dir := t.TempDir()
	unknown := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(unknown, []byte("title: x\ncolour: red\nitems:\n  - prompt: a\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := survey.LoadFile(unknown); err == nil {
		t.Fatal("expected unknown field error")
	}

	dup := filepath.Join(dir, "dup.json")
	body := `{"title":"x","items":[{"id":"a","prompt":"one"},{"id":"a","prompt":"two"}]}`
	if err := os.WriteFile(dup, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := survey.LoadFile(dup)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}
