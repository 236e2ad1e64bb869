package survey

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a questionnaire definition from YAML (.yaml, .yml) or JSON.
// Ordinals follow file order; items without an id get "q<n>" and a missing
// questionnaire id falls back to the file name.
func LoadFile(path string) (Questionnaire, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Questionnaire{}, fmt.Errorf("read questionnaire: %w", err)
	}
	var q Questionnaire
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&q); err != nil {
			return Questionnaire{}, fmt.Errorf("parse questionnaire yaml: %w", err)
		}
	case ".json":
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&q); err != nil {
			return Questionnaire{}, fmt.Errorf("parse questionnaire json: %w", err)
		}
	default:
		return Questionnaire{}, fmt.Errorf("questionnaire %s: unsupported extension", filepath.Base(path))
	}

	if strings.TrimSpace(q.ID) == "" {
		q.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if strings.TrimSpace(q.Version) == "" {
		q.Version = "1.0"
	}
	for i := range q.Items {
		q.Items[i].Ordinal = i
		q.Items[i].ID = strings.TrimSpace(q.Items[i].ID)
		if q.Items[i].ID == "" {
			q.Items[i].ID = fmt.Sprintf("q%d", i+1)
		}
		q.Items[i].Prompt = strings.TrimSpace(q.Items[i].Prompt)
	}
	if err := q.Validate(); err != nil {
		return Questionnaire{}, err
	}
	return q, nil
}
