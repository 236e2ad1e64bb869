package client

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"

	"vidsurvey/internal/api"
	"vidsurvey/internal/recording"
	"vidsurvey/internal/services"
	"vidsurvey/internal/survey"
)

// Upload sends the package to POST /api/questionnaires/{id}/submissions.
// progress receives 0..100 as request bytes are consumed by the transport.
// Failures are wrapped in ErrUploadFailed; any total score the daemon
// computed is still returned.
func (c *Client) Upload(ctx context.Context, pkg recording.Package, progress func(percent int)) (recording.Result, error) {
	if progress == nil {
		progress = func(int) {}
	}
	boundary, err := newBoundary()
	if err != nil {
		return recording.Result{}, err
	}
	size, err := writePackage(io.Discard, boundary, pkg)
	if err != nil {
		return recording.Result{}, services.Wrap(services.ErrUploadFailed, "client", "encode", "", err)
	}

	pr, pw := io.Pipe()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := writePackage(pw, boundary, pkg)
		_ = pw.CloseWithError(err)
	}()
	defer wg.Wait()
	defer pr.Close()

	body := &progressReader{r: pr, total: size, report: progress}
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("questionnaires", pkg.QuestionnaireID, "submissions"), body)
	if err != nil {
		return recording.Result{}, services.Wrap(services.ErrUploadFailed, "client", "upload", "", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)

	var result recording.Result
	if err := c.do(req, &result); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.TotalScore != nil {
			result.TotalScore = *apiErr.TotalScore
		}
		return result, services.Wrap(services.ErrUploadFailed, "client", "upload", "", err)
	}
	return result, nil
}

// StageClip uploads one clip ahead of submission under the session id.
func (c *Client) StageClip(ctx context.Context, questionnaireID, sessionID string, clip recording.Clip) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField(api.FieldSessionID, sessionID); err != nil {
		return fmt.Errorf("write session field: %w", err)
	}
	if err := writeClip(writer, clip); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("questionnaires", questionnaireID, "clips"), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if err := c.do(req, nil); err != nil {
		return services.Wrap(services.ErrUploadFailed, "client", "stage clip", survey.ClipName(clip.Ordinal, clip.Ext), err)
	}
	return nil
}

func writePackage(w io.Writer, boundary string, pkg recording.Package) (int64, error) {
	counter := &countingWriter{w: w}
	writer := multipart.NewWriter(counter)
	if err := writer.SetBoundary(boundary); err != nil {
		return 0, fmt.Errorf("set boundary: %w", err)
	}
	if err := writer.WriteField(api.FieldSessionID, pkg.SessionID); err != nil {
		return counter.n, fmt.Errorf("write session field: %w", err)
	}
	answers, err := json.Marshal(pkg.Answers)
	if err != nil {
		return counter.n, fmt.Errorf("encode answers: %w", err)
	}
	if err := writer.WriteField(api.FieldAnswers, string(answers)); err != nil {
		return counter.n, fmt.Errorf("write answers field: %w", err)
	}
	for _, clip := range pkg.Clips {
		if err := writeClip(writer, clip); err != nil {
			return counter.n, err
		}
	}
	if err := writer.Close(); err != nil {
		return counter.n, fmt.Errorf("close multipart writer: %w", err)
	}
	return counter.n, nil
}

func writeClip(writer *multipart.Writer, clip recording.Clip) error {
	name := survey.ClipName(clip.Ordinal, clip.Ext)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, name, name))
	contentType := clip.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create part %s: %w", name, err)
	}
	if _, err := part.Write(clip.Data); err != nil {
		return fmt.Errorf("write part %s: %w", name, err)
	}
	return nil
}

func newBoundary() (string, error) {
	var raw [24]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generate boundary: %w", err)
	}
	return hex.EncodeToString(raw[:]), nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	last   int
	report func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 {
		pct := int(p.read * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		if pct != p.last {
			p.last = pct
			p.report(pct)
		}
	}
	return n, err
}
