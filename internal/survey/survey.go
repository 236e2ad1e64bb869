package survey

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// ItemScale is the maximum score of a single item; options are scored 0..ItemScale.
	ItemScale = 3
	// Unanswered marks an item the respondent skipped.
	Unanswered = -1
	// NotAnsweredText is stored as the option text of skipped items.
	NotAnsweredText = "Not answered"
)

// Item is one question of a questionnaire.
type Item struct {
	ID      string   `json:"id" yaml:"id"`
	Prompt  string   `json:"prompt" yaml:"prompt"`
	Ordinal int      `json:"ordinal" yaml:"-"`
	Options []string `json:"options" yaml:"options"`
}

// Questionnaire is an ordered list of items. A published version never changes.
type Questionnaire struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Version   string    `json:"version" yaml:"version"`
	Items     []Item    `json:"items" yaml:"items"`
	CreatedAt time.Time `json:"createdAt" yaml:"-"`
}

// Answer is the stored, scored response to one item.
type Answer struct {
	QuestionID  string `json:"questionId"`
	Prompt      string `json:"prompt"`
	OptionIndex int    `json:"optionIndex"`
	OptionText  string `json:"optionText"`
	Score       int    `json:"score"`
}

// Answered reports whether the respondent picked an option.
func (a Answer) Answered() bool {
	return a.OptionIndex != Unanswered
}

// AnswerInput is a single answer as received from a client. OptionIndex is nil
// when the value was absent or not an integer.
type AnswerInput struct {
	QuestionID  string `json:"questionId,omitempty"`
	Index       *int   `json:"index,omitempty"`
	OptionIndex *int   `json:"optionIndex"`
}

// UnmarshalJSON accepts loosely typed clients: numeric strings are honoured and
// anything else non-numeric leaves OptionIndex nil.
func (a *AnswerInput) UnmarshalJSON(data []byte) error {
	var raw struct {
		QuestionID  json.RawMessage `json:"questionId"`
		Index       json.RawMessage `json:"index"`
		OptionIndex json.RawMessage `json:"optionIndex"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = AnswerInput{
		QuestionID:  looseString(raw.QuestionID),
		Index:       looseInt(raw.Index),
		OptionIndex: looseInt(raw.OptionIndex),
	}
	return nil
}

func looseString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func looseInt(raw json.RawMessage) *int {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil
		}
		f = parsed
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil
	}
	v := int(f)
	return &v
}

// Validate checks that a questionnaire can be published.
func (q Questionnaire) Validate() error {
	if strings.TrimSpace(q.Title) == "" {
		return fmt.Errorf("questionnaire %q: title required", q.ID)
	}
	if len(q.Items) == 0 {
		return fmt.Errorf("questionnaire %q: at least one item required", q.ID)
	}
	seen := make(map[string]struct{}, len(q.Items))
	for i, item := range q.Items {
		if strings.TrimSpace(item.ID) == "" {
			return fmt.Errorf("item %d: id required", i+1)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("item %d: duplicate id %q", i+1, item.ID)
		}
		seen[item.ID] = struct{}{}
		if strings.TrimSpace(item.Prompt) == "" {
			return fmt.Errorf("item %q: prompt required", item.ID)
		}
		if item.Ordinal != i {
			return fmt.Errorf("item %q: ordinal %d out of sequence", item.ID, item.Ordinal)
		}
	}
	return nil
}

// Normalize maps an item score onto [0,1].
func Normalize(score int) float64 {
	return float64(score) / ItemScale
}

// NormalizeAll maps scores onto [0,1] preserving order.
func NormalizeAll(scores []int) []float64 {
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = Normalize(s)
	}
	return out
}

// Scores extracts per-item scores in ordinal order.
func Scores(answers []Answer) []int {
	out := make([]int, len(answers))
	for i, a := range answers {
		out[i] = a.Score
	}
	return out
}
