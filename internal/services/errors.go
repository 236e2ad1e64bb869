package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrDeviceUnavailable  = errors.New("device unavailable")
	ErrUploadFailed       = errors.New("upload failed")
	ErrTranscodeFailed    = errors.New("transcode failed")
	ErrInferenceTimeout   = errors.New("inference timeout")
	ErrInferenceCrashed   = errors.New("inference crashed")
	ErrInferenceMalformed = errors.New("inference output malformed")
	ErrPersistence        = errors.New("persistence failure")
	ErrExternalTool       = errors.New("external tool error")
	ErrValidation         = errors.New("validation error")
	ErrConfiguration      = errors.New("configuration error")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsInferenceFailure reports whether err ends analysis without failing the submission.
func IsInferenceFailure(err error) bool {
	return errors.Is(err, ErrInferenceTimeout) ||
		errors.Is(err, ErrInferenceCrashed) ||
		errors.Is(err, ErrInferenceMalformed)
}

// HTTPStatus maps an error marker to the response code the API returns.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUploadFailed):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInferenceTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrInferenceCrashed), errors.Is(err, ErrInferenceMalformed), errors.Is(err, ErrExternalTool):
		return http.StatusBadGateway
	case errors.Is(err, ErrConfiguration):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
