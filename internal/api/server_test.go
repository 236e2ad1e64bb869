package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"vidsurvey/internal/api"
	"vidsurvey/internal/inference"
	"vidsurvey/internal/pipeline"
	"vidsurvey/internal/store"
	"vidsurvey/internal/testsupport"
)

type part struct {
	name string
	body string
}

func multipartBody(t *testing.T, fields map[string]string, files ...part) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		fw, err := w.CreateFormFile(f.name, f.name)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = io.WriteString(fw, f.body)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func answersJSON(option, n int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"questionId":"q%d","optionIndex":%d}`, i+1, option)
	}
	return "[" + strings.Join(items, ",") + "]"
}

func post(t *testing.T, url, contentType string, body io.Reader) *http.Response {
	t.Helper()
	resp, err := http.Post(url, contentType, body)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func TestSubmitWithoutClipsReturnsSelfReport(t *testing.T) {
	h := testsupport.NewAPI(t, nil)
	body, ct := multipartBody(t, map[string]string{
		api.FieldSessionID: uuid.NewString(),
		api.FieldAnswers:   answersJSON(1, 7),
	})

	resp := post(t, h.Server.URL+"/api/questionnaires/phq7/submissions", ct, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	got := decode[pipeline.Response](t, resp)
	if got.TotalScore != 7 || got.AdjustedTotal != 7 || got.AnalysisAvailable {
		t.Fatalf("unexpected response %+v", got)
	}
	if resp.Header.Get("Location") != pipeline.ResultLocation(got.SubmissionID) {
		t.Fatalf("unexpected Location %q", resp.Header.Get("Location"))
	}
	if _, calls := h.Analyzer.Seen(); calls != 0 {
		t.Fatalf("engine should not run without clips, ran %d times", calls)
	}
}

func TestSubmitWithClipsStoresAnalysis(t *testing.T) {
	analyzer := &testsupport.StubAnalyzer{Out: inference.Output{
		Subjective: testsupport.Uniform(1.0/3, 7),
		Objective:  testsupport.Uniform(1.0/3, 7),
		Agreement:  ptr(0.95),
	}}
	h := testsupport.NewAPI(t, analyzer)
	body, ct := multipartBody(t, map[string]string{
		api.FieldSessionID: uuid.NewString(),
		api.FieldAnswers:   answersJSON(1, 7),
	}, part{"question_01.webm", "first"}, part{"question_03.webm", "third"})

	resp := post(t, h.Server.URL+"/api/questionnaires/phq7/submissions", ct, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	created := decode[pipeline.Response](t, resp)
	if !created.AnalysisAvailable {
		t.Fatalf("expected analysis, got %+v", created)
	}
	seen, _ := analyzer.Seen()
	if diff := cmp.Diff([]int{0, 2}, inference.SortedOrdinals(seen)); diff != "" {
		t.Fatalf("clip ordinals mismatch (-want +got):\n%s", diff)
	}

	view := decode[api.AnalysisView](t, get(t, h.Server.URL+created.ResultLocation))
	if view.Analysis == nil || view.Submission == nil {
		t.Fatalf("expected submission and analysis, got %+v", view)
	}
	if len(view.Runs) != 1 || view.Runs[0].State != store.StateComplete {
		t.Fatalf("expected one complete run, got %+v", view.Runs)
	}

	clipResp := get(t, h.Server.URL+"/api/submissions/"+created.SubmissionID+"/clips/question_03.webm")
	data, _ := io.ReadAll(clipResp.Body)
	if clipResp.StatusCode != http.StatusOK || string(data) != "third" {
		t.Fatalf("unexpected clip response %d %q", clipResp.StatusCode, data)
	}
	list := decode[api.ClipList](t, get(t, h.Server.URL+"/api/submissions/"+created.SubmissionID+"/clips"))
	if len(list.Clips) != 2 {
		t.Fatalf("expected two indexed clips, got %+v", list.Clips)
	}
}

func TestSubmitErrorsCarryTotalScore(t *testing.T) {
	h := testsupport.NewAPI(t, nil)
	body, ct := multipartBody(t, map[string]string{
		api.FieldAnswers: answersJSON(2, 7),
	}, part{"question_09.webm", "out of range"})

	resp := post(t, h.Server.URL+"/api/questionnaires/phq7/submissions", ct, body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	got := decode[api.ErrorBody](t, resp)
	if got.TotalScore == nil || *got.TotalScore != 14 {
		t.Fatalf("expected total score 14 in error body, got %+v", got)
	}
	subs, err := h.Store.ListSubmissions(context.Background(), 10)
	if err != nil || len(subs) != 0 {
		t.Fatalf("expected nothing stored, got %d (%v)", len(subs), err)
	}
}

func TestSubmitRejectsMalformedAnswers(t *testing.T) {
	h := testsupport.NewAPI(t, nil)
	body, ct := multipartBody(t, map[string]string{api.FieldAnswers: "{not json"})
	resp := post(t, h.Server.URL+"/api/questionnaires/phq7/submissions", ct, body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if got := decode[api.ErrorBody](t, resp); got.TotalScore != nil {
		t.Fatalf("no total score expected before scoring, got %d", *got.TotalScore)
	}
}

func TestSubmitUnknownQuestionnaire(t *testing.T) {
	h := testsupport.NewAPI(t, nil)
	body, ct := multipartBody(t, map[string]string{api.FieldAnswers: "[]"})
	resp := post(t, h.Server.URL+"/api/questionnaires/gad7/submissions", ct, body)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSubmitRejectsOversizedUpload(t *testing.T) {
	h := testsupport.NewAPI(t, nil, testsupport.WithUploadLimit(512))
	body, ct := multipartBody(t, map[string]string{
		api.FieldAnswers: answersJSON(0, 7),
	}, part{"question_01.webm", strings.Repeat("x", 4096)})
	resp := post(t, h.Server.URL+"/api/questionnaires/phq7/submissions", ct, body)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
}

func TestStagedClipIsBoundOnSubmit(t *testing.T) {
	analyzer := &testsupport.StubAnalyzer{Out: inference.Output{
		Subjective: testsupport.Uniform(0, 7),
		Objective:  testsupport.Uniform(0, 7),
		Agreement:  ptr(1),
	}}
	h := testsupport.NewAPI(t, analyzer)
	session := uuid.NewString()

	body, ct := multipartBody(t, map[string]string{api.FieldSessionID: session}, part{"question_02.webm", "staged"})
	resp := post(t, h.Server.URL+"/api/questionnaires/phq7/clips", ct, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for staged clip, got %d", resp.StatusCode)
	}
	staged := decode[store.Clip](t, resp)
	if staged.Name != "question_02.webm" {
		t.Fatalf("unexpected staged clip %+v", staged)
	}

	body, ct = multipartBody(t, map[string]string{
		api.FieldSessionID: session,
		api.FieldAnswers:   answersJSON(0, 7),
	})
	resp = post(t, h.Server.URL+"/api/questionnaires/phq7/submissions", ct, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	seen, _ := analyzer.Seen()
	if diff := cmp.Diff([]int{1}, inference.SortedOrdinals(seen)); diff != "" {
		t.Fatalf("clip ordinals mismatch (-want +got):\n%s", diff)
	}
}

func TestStageClipRequiresSession(t *testing.T) {
	h := testsupport.NewAPI(t, nil)
	body, ct := multipartBody(t, nil, part{"question_02.webm", "staged"})
	resp := post(t, h.Server.URL+"/api/questionnaires/phq7/clips", ct, body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestReadRoutes(t *testing.T) {
	h := testsupport.NewAPI(t, nil)

	qs := decode[api.QuestionnaireList](t, get(t, h.Server.URL+"/api/questionnaires"))
	if len(qs.Questionnaires) != 1 || qs.Questionnaires[0].ID != "phq7" {
		t.Fatalf("unexpected questionnaires %+v", qs)
	}
	q := get(t, h.Server.URL+"/api/questionnaires/phq7?version=9.9")
	if q.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown version, got %d", q.StatusCode)
	}
	if resp := get(t, h.Server.URL+"/api/submissions/missing/analysis"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown submission, got %d", resp.StatusCode)
	}
	if resp := get(t, h.Server.URL+"/api/submissions?limit=abc"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", resp.StatusCode)
	}
	list := decode[api.SubmissionList](t, get(t, h.Server.URL+"/api/submissions"))
	if list.Submissions == nil || len(list.Submissions) != 0 {
		t.Fatalf("expected empty submission list, got %+v", list)
	}
	status := decode[api.StatusView](t, get(t, h.Server.URL+"/api/status"))
	if status.Version != "test" || status.Database != h.Store.Path() {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestBearerTokenRequired(t *testing.T) {
	h := testsupport.NewAPI(t, nil, testsupport.WithAPIToken("secret"))

	if resp := get(t, h.Server.URL+"/api/status"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	req, _ := http.NewRequest(http.MethodGet, h.Server.URL+"/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set(api.RequestIDHeader, "trace-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
	if resp.Header.Get(api.RequestIDHeader) != "trace-123" {
		t.Fatalf("expected request id echoed, got %q", resp.Header.Get(api.RequestIDHeader))
	}
}

func TestUnknownRouteIsJSON(t *testing.T) {
	h := testsupport.NewAPI(t, nil)
	resp := get(t, h.Server.URL+"/api/nowhere")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if got := decode[api.ErrorBody](t, resp); got.Error == "" {
		t.Fatal("expected error message")
	}
}

func ptr(v float64) *float64 { return &v }
