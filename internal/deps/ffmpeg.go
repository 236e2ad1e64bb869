package deps

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

const versionProbeTimeout = 5 * time.Second

// ProbeVersions fills Version for available FFmpeg-family binaries by running
// "<binary> -version". Other entries are returned unchanged.
func ProbeVersions(ctx context.Context, statuses []Status) []Status {
	out := make([]Status, len(statuses))
	copy(out, statuses)
	for i := range out {
		if !out[i].Available || !isFFmpegFamily(out[i].Command) {
			continue
		}
		out[i].Version = ffmpegVersion(ctx, out[i].Command)
	}
	return out
}

func isFFmpegFamily(command string) bool {
	base := strings.ToLower(command)
	if idx := strings.LastIndexAny(base, `/\`); idx >= 0 {
		base = base[idx+1:]
	}
	base = strings.TrimSuffix(base, ".exe")
	return base == "ffmpeg" || base == "ffprobe"
}

// ffmpegVersion returns the version token of the banner, for example
// "6.1.1" from "ffmpeg version 6.1.1-3ubuntu5 Copyright ...".
func ffmpegVersion(ctx context.Context, binary string) string {
	ctx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()
	output, err := exec.CommandContext(ctx, binary, "-version").Output() //nolint:gosec
	if err != nil {
		return ""
	}
	return parseVersionBanner(output)
}

func parseVersionBanner(output []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	if !scanner.Scan() {
		return ""
	}
	fields := strings.Fields(scanner.Text())
	for i := 0; i+1 < len(fields); i++ {
		if fields[i] == "version" {
			version := fields[i+1]
			if cut := strings.IndexAny(version, "-+~"); cut > 0 {
				version = version[:cut]
			}
			return version
		}
	}
	return ""
}
