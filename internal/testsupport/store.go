package testsupport

import (
	"context"
	"strconv"
	"testing"

	"vidsurvey/internal/config"
	"vidsurvey/internal/store"
	"vidsurvey/internal/survey"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// Questionnaire builds a published-shape questionnaire with n items, each
// offering four options scored 0..3.
func Questionnaire(id string, n int) survey.Questionnaire {
	q := survey.Questionnaire{ID: id, Title: "Questionnaire " + id, Version: "1.0"}
	for i := range n {
		q.Items = append(q.Items, survey.Item{
			ID:      "q" + strconv.Itoa(i+1),
			Prompt:  "Question " + strconv.Itoa(i+1),
			Ordinal: i,
			Options: []string{"Never", "Sometimes", "Often", "Always"},
		})
	}
	return q
}

// PutQuestionnaire publishes q in st or fails the test.
func PutQuestionnaire(t testing.TB, st *store.Store, q survey.Questionnaire) survey.Questionnaire {
	t.Helper()

	stored, err := st.PutQuestionnaire(context.Background(), q)
	if err != nil {
		t.Fatalf("store.PutQuestionnaire: %v", err)
	}
	return stored
}

