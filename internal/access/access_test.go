package access_test

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/google/uuid"

	"vidsurvey/internal/access"
	"vidsurvey/internal/client"
	"vidsurvey/internal/recording"
	"vidsurvey/internal/services"
	"vidsurvey/internal/store"
	"vidsurvey/internal/testsupport"
)

func TestOpenWithFallbackPrefersDaemon(t *testing.T) {
	h := testsupport.NewAPI(t, nil)
	ctx := context.Background()
	c, err := client.New(h.Server.URL, "", nil)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	answers := make([]recording.AnswerOut, 7)
	for i := range answers {
		answers[i] = recording.AnswerOut{QuestionID: "q" + strconv.Itoa(i+1), OptionIndex: 2}
	}
	res, err := c.Upload(ctx, recording.Package{QuestionnaireID: "phq7", SessionID: uuid.NewString(), Answers: answers}, nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	opened := false
	session, err := access.OpenWithFallback(ctx,
		func() (*client.Client, error) { return c, nil },
		func() (*store.Store, error) { opened = true; return h.Store, nil },
	)
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	defer session.Close()
	if !session.Daemon || opened {
		t.Fatal("expected daemon-backed session")
	}
	view, err := session.Reader.Analysis(ctx, res.SubmissionID)
	if err != nil {
		t.Fatalf("Analysis: %v", err)
	}
	if view.Submission.TotalScore != 14 || view.Analysis != nil {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestOpenWithFallbackUsesStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.PutQuestionnaire(t, st, testsupport.Questionnaire("phq7", 7))
	ctx := context.Background()

	dead, err := client.New("127.0.0.1:1", "", nil)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	session, err := access.OpenWithFallback(ctx,
		func() (*client.Client, error) { return dead, nil },
		func() (*store.Store, error) { return st, nil },
	)
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	if session.Daemon {
		t.Fatal("expected store-backed session")
	}
	qs, err := session.Reader.Questionnaires(ctx)
	if err != nil || len(qs) != 1 {
		t.Fatalf("unexpected questionnaires %v (%v)", qs, err)
	}
	subs, err := session.Reader.Submissions(ctx, 0)
	if err != nil || len(subs) != 0 {
		t.Fatalf("unexpected submissions %v (%v)", subs, err)
	}
	if _, err := session.Reader.Analysis(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
