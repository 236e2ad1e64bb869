package inference

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"vidsurvey/internal/services"
	"vidsurvey/internal/survey"
)

// Output is the decoded engine result. Nil entries are missing values.
type Output struct {
	Subjective   []*float64    `json:"normSubjectiveScores"`
	Objective    []*float64    `json:"normObjectiveScores"`
	Agreement    *float64      `json:"agreementStatistic"`
	PValue       *float64      `json:"pValue,omitempty"`
	VideoResults []VideoResult `json:"videoResults,omitempty"`
}

// VideoResult is the engine's per-clip classification.
type VideoResult struct {
	File   string `json:"file"`
	Video  string `json:"video,omitempty"`
	Audio  string `json:"audio,omitempty"`
	Global string `json:"global,omitempty"`
	Error  string `json:"error,omitempty"`
}

var (
	subjectiveKeys = []string{"normSubjectiveScores", "normQuestionnaireScores"}
	objectiveKeys  = []string{"normObjectiveScores", "normEmotionScores"}
	agreementKeys  = []string{"agreementStatistic", "spearmanCorr"}
)

// Sanitize replaces NaN, Infinity and -Infinity tokens that appear outside
// string literals with null. String contents are never touched.
func Sanitize(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	inString := false
	escaped := false
	for i := 0; i < len(raw); {
		c := raw[i]
		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			i++
			continue
		}
		if c == '"' {
			inString = true
			out = append(out, c)
			i++
			continue
		}
		if n := nonFiniteTokenLen(raw[i:]); n > 0 {
			out = append(out, "null"...)
			i += n
			continue
		}
		out = append(out, c)
		i++
	}
	return out
}

func nonFiniteTokenLen(b []byte) int {
	for _, token := range []string{"-Infinity", "+Infinity", "Infinity", "NaN"} {
		if bytes.HasPrefix(b, []byte(token)) {
			return len(token)
		}
	}
	return 0
}

// Decode parses one engine payload for a questionnaire of n items. present
// lists the ordinals whose clips were handed to the engine; it is used to
// realign objective scores the engine emitted per clip rather than per item.
func Decode(raw []byte, n int, present []int) (Output, error) {
	fields, err := decodeObject(Sanitize(bytes.TrimSpace(raw)))
	if err != nil {
		return Output{}, malformed("decode payload", err)
	}
	if msg, ok := fields["error"]; ok {
		var text string
		_ = json.Unmarshal(msg, &text)
		if text == "" {
			text = string(msg)
		}
		return Output{}, malformed("engine reported error: "+text, nil)
	}

	var out Output
	subjective, err := floatArray(fields, subjectiveKeys)
	if err != nil {
		return Output{}, err
	}
	if len(subjective) != n {
		return Output{}, malformed(fmt.Sprintf("subjective scores: expected %d values, got %d", n, len(subjective)), nil)
	}
	out.Subjective = subjective

	if raw, ok := fields["videoResults"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &out.VideoResults); err != nil {
			return Output{}, malformed("videoResults", err)
		}
	}

	objective, err := floatArray(fields, objectiveKeys)
	if err != nil {
		return Output{}, err
	}
	out.Objective, err = alignObjective(objective, n, present, out.VideoResults)
	if err != nil {
		return Output{}, err
	}

	if out.Agreement, err = scalar(fields, agreementKeys); err != nil {
		return Output{}, err
	}
	if out.Agreement != nil && (*out.Agreement < -1 || *out.Agreement > 1) {
		return Output{}, malformed(fmt.Sprintf("agreement statistic %v outside [-1,1]", *out.Agreement), nil)
	}
	if out.PValue, err = scalar(fields, []string{"pValue"}); err != nil {
		return Output{}, err
	}

	for i, v := range out.Subjective {
		if err := checkUnit("subjective", i, v); err != nil {
			return Output{}, err
		}
	}
	for i, v := range out.Objective {
		if err := checkUnit("objective", i, v); err != nil {
			return Output{}, err
		}
	}
	return out, nil
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	if len(data) == 0 {
		return nil, errors.New("empty output")
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	var fields map[string]json.RawMessage
	if err := decoder.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errors.New("expected a JSON object")
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON object")
	}
	return fields, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func floatArray(fields map[string]json.RawMessage, keys []string) ([]*float64, error) {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if isNull(raw) {
			return nil, malformed(key+": null array", nil)
		}
		var values []*float64
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, malformed(key, err)
		}
		return values, nil
	}
	return nil, malformed(fmt.Sprintf("missing %s", keys[0]), nil)
}

func scalar(fields map[string]json.RawMessage, keys []string) (*float64, error) {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if isNull(raw) {
			return nil, nil
		}
		var value float64
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, malformed(key, err)
		}
		return &value, nil
	}
	return nil, nil
}

// alignObjective returns a dense slice of n values. A per-clip array is
// scattered to ordinals by the file names in videoResults.
func alignObjective(values []*float64, n int, present []int, results []VideoResult) ([]*float64, error) {
	if len(values) == n {
		return values, nil
	}
	if len(values) != len(present) || len(results) != len(values) {
		return nil, malformed(fmt.Sprintf("objective scores: expected %d values, got %d", n, len(values)), nil)
	}
	allowed := make(map[int]bool, len(present))
	for _, ord := range present {
		allowed[ord] = true
	}
	dense := make([]*float64, n)
	seen := make(map[int]bool, len(values))
	for i, res := range results {
		ordinal, ok := survey.ParseClipName(res.File)
		if !ok || !allowed[ordinal] || seen[ordinal] {
			return nil, malformed(fmt.Sprintf("objective scores: cannot map clip %q to an item", res.File), nil)
		}
		seen[ordinal] = true
		dense[ordinal] = values[i]
	}
	return dense, nil
}

func checkUnit(label string, idx int, v *float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || *v < 0 || *v > 1 {
		return malformed(fmt.Sprintf("%s score %d = %v outside [0,1]", label, idx, *v), nil)
	}
	return nil
}

// MaskObjective clears objective values for ordinals without a clip.
func MaskObjective(values []*float64, present []int) []*float64 {
	keep := make(map[int]bool, len(present))
	for _, ord := range present {
		keep[ord] = true
	}
	out := make([]*float64, len(values))
	for i, v := range values {
		if keep[i] {
			out[i] = v
		}
	}
	return out
}

// SortedOrdinals returns the keys of a clip map in ascending order.
func SortedOrdinals[T any](clips map[int]T) []int {
	ordinals := make([]int, 0, len(clips))
	for ord := range clips {
		ordinals = append(ordinals, ord)
	}
	sort.Ints(ordinals)
	return ordinals
}

func malformed(message string, err error) error {
	return services.Wrap(services.ErrInferenceMalformed, "inference", "decode", message, err)
}
