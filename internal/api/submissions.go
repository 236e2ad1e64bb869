package api

import (
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gorilla/mux"

	"vidsurvey/internal/logging"
	"vidsurvey/internal/pipeline"
	"vidsurvey/internal/services"
	"vidsurvey/internal/survey"
)

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	form, err := s.readMultipart(w, r)
	if err != nil {
		s.writeFailure(w, r, err, nil)
		return
	}
	defer func() { _ = form.RemoveAll() }()

	req := pipeline.Request{
		QuestionnaireID:      mux.Vars(r)["id"],
		QuestionnaireVersion: formValue(form, FieldVersion),
		SessionID:            formValue(form, FieldSessionID),
	}
	if raw := formValue(form, FieldAnswers); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Answers); err != nil {
			s.writeFailure(w, r, services.Wrap(services.ErrValidation, "api", "submit", "answers must be a JSON array", err), nil)
			return
		}
	}

	clips, closeAll, err := s.openClipParts(r, form)
	defer closeAll()
	if err != nil {
		s.writeFailure(w, r, err, nil)
		return
	}
	req.Clips = clips

	resp, err := s.pipeline.Submit(r.Context(), req)
	if err != nil {
		s.writeFailure(w, r, err, &resp)
		return
	}
	w.Header().Set("Location", resp.ResultLocation)
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleStageClip(w http.ResponseWriter, r *http.Request) {
	form, err := s.readMultipart(w, r)
	if err != nil {
		s.writeFailure(w, r, err, nil)
		return
	}
	defer func() { _ = form.RemoveAll() }()

	clips, closeAll, err := s.openClipParts(r, form)
	defer closeAll()
	if err != nil {
		s.writeFailure(w, r, err, nil)
		return
	}
	if len(clips) != 1 {
		s.writeFailure(w, r, services.Wrap(services.ErrValidation, "api", "stage clip",
			fmt.Sprintf("expected exactly one clip part, got %d", len(clips)), nil), nil)
		return
	}
	clip, err := s.pipeline.StageClip(r.Context(), mux.Vars(r)["id"], formValue(form, FieldSessionID), clips[0])
	if err != nil {
		s.writeFailure(w, r, err, nil)
		return
	}
	s.writeJSON(w, http.StatusCreated, clip)
}

func (s *Server) handleReanalyze(w http.ResponseWriter, r *http.Request) {
	resp, err := s.pipeline.Reanalyze(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, r, err, &resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) readMultipart(w http.ResponseWriter, r *http.Request) (*multipart.Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, services.Wrap(services.ErrUploadFailed, "api", "read upload", "", err)
	}
	return r.MultipartForm, nil
}

// openClipParts turns file parts named question_<NN>.<ext> into clip uploads
// ordered by ordinal. Other file parts are ignored.
func (s *Server) openClipParts(r *http.Request, form *multipart.Form) ([]pipeline.ClipUpload, func(), error) {
	var files []multipart.File
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	logger := logging.WithContext(r.Context(), s.logger)
	var clips []pipeline.ClipUpload
	for field, headers := range form.File {
		for _, header := range headers {
			name := field
			ordinal, ok := survey.ParseClipName(name)
			if !ok {
				name = header.Filename
				ordinal, ok = survey.ParseClipName(name)
			}
			if !ok {
				logging.WarnWithContext(logger, "ignoring unrecognised upload part", "upload_part_ignored",
					logging.String("field", field),
					logging.String("filename", header.Filename),
				)
				continue
			}
			f, err := header.Open()
			if err != nil {
				return nil, closeAll, services.Wrap(services.ErrUploadFailed, "api", "open clip part", name, err)
			}
			files = append(files, f)
			clips = append(clips, pipeline.ClipUpload{
				Ordinal:  ordinal,
				Ext:      extOf(name, header.Filename),
				MimeHint: header.Header.Get("Content-Type"),
				Body:     f,
			})
		}
	}
	slices.SortFunc(clips, func(a, b pipeline.ClipUpload) int { return a.Ordinal - b.Ordinal })
	return clips, closeAll, nil
}

func extOf(names ...string) string {
	for _, n := range names {
		if ext := strings.TrimPrefix(filepath.Ext(n), "."); ext != "" {
			return ext
		}
	}
	return ""
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}
