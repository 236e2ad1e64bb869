package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vidsurvey/internal/config"
)

const userAgent = "vidsurvey/1"

// Event identifies a notification template.
type Event string

const (
	EventAnalysisCompleted Event = "analysis_completed"
	EventAnalysisSkipped   Event = "analysis_skipped"
	EventRunFailed         Event = "run_failed"
	EventRunsAbandoned     Event = "runs_abandoned"
	EventTest              Event = "test"
)

// Payload carries the values a template may reference.
type Payload struct {
	SubmissionID  string
	TotalScore    int
	AdjustedTotal float64
	Reason        string
	Count         int
}

// Service publishes run outcomes.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{endpoint: topic, client: &http.Client{Timeout: timeout}}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

func render(event Event, p Payload) (message, error) {
	short := shortID(p.SubmissionID)
	switch event {
	case EventAnalysisCompleted:
		return message{
			title: "vidsurvey - Analysis complete",
			body:  fmt.Sprintf("Submission %s: self-reported %d, adjusted %.2f", short, p.TotalScore, p.AdjustedTotal),
			tags:  []string{"vidsurvey", "analysis"},
		}, nil
	case EventAnalysisSkipped:
		body := fmt.Sprintf("Submission %s stored without analysis (score %d)", short, p.TotalScore)
		if reason := strings.TrimSpace(p.Reason); reason != "" {
			body += ": " + reason
		}
		return message{
			title:    "vidsurvey - No analysis",
			body:     body,
			tags:     []string{"vidsurvey", "warning"},
			priority: "low",
		}, nil
	case EventRunFailed:
		reason := strings.TrimSpace(p.Reason)
		if reason == "" {
			reason = "unknown"
		}
		return message{
			title:    "vidsurvey - Run failed",
			body:     fmt.Sprintf("Submission %s failed: %s", short, reason),
			tags:     []string{"vidsurvey", "error"},
			priority: "high",
		}, nil
	case EventRunsAbandoned:
		return message{
			title:    "vidsurvey - Interrupted runs",
			body:     fmt.Sprintf("%d run(s) were interrupted by a restart and marked failed", p.Count),
			tags:     []string{"vidsurvey", "restart"},
			priority: "high",
		}, nil
	case EventTest:
		return message{
			title:    "vidsurvey - Test",
			body:     "Notification system test",
			tags:     []string{"vidsurvey", "test"},
			priority: "low",
		}, nil
	default:
		return message{}, fmt.Errorf("unknown notification event %q", event)
	}
}

func shortID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, err := render(event, payload)
	if err != nil {
		return err
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
