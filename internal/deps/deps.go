package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"vidsurvey/internal/config"
)

// Requirement is an external binary the daemon shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Path        string `json:"path,omitempty"`
	Detail      string `json:"detail,omitempty"`
	Version     string `json:"version,omitempty"`
}

// Requirements lists the binaries the daemon invokes for cfg.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Transcode.FFmpegBinary,
			Description: "Transcodes uploaded clips",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Transcode.FFprobeBinary,
			Description: "Validates transcoded clips",
			Optional:    !cfg.Transcode.ValidateOutput,
		},
		{
			Name:        "Inference engine",
			Command:     cfg.Inference.Command,
			Description: "Scores clips against answers",
		},
	}
}

// CheckBinaries resolves each requirement on PATH. Status.Path holds the
// resolved executable when one was found.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		st := Status{
			Name:        req.Name,
			Command:     strings.TrimSpace(req.Command),
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if st.Command == "" {
			st.Detail = "command not configured"
		} else if path, err := exec.LookPath(st.Command); err != nil {
			st.Detail = fmt.Sprintf("binary %q not found", st.Command)
		} else {
			st.Available, st.Path = true, path
		}
		results[i] = st
	}
	return results
}

// Missing returns the required dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			out = append(out, s)
		}
	}
	return out
}
