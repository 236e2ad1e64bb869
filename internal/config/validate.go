package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

var supportedContainers = []string{"mp4", "mkv", "mov", "webm"}

// Validate reports every unusable setting at once, one per line.
func (c *Config) Validate() error {
	var problems []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Errorf(format, args...))
		}
	}

	check(strings.TrimSpace(c.Paths.DataDir) != "", "paths.data_dir must be set")
	check(strings.TrimSpace(c.Paths.LogDir) != "", "paths.log_dir must be set")

	check(c.Transcode.TimeoutSeconds > 0, "transcode.timeout_seconds must be positive")
	check(c.Transcode.Concurrency > 0, "transcode.concurrency must be positive")
	check(slices.Contains(supportedContainers, c.Transcode.Container),
		"transcode.container: unsupported value %q (want one of %s)", c.Transcode.Container, strings.Join(supportedContainers, ", "))

	check(c.Inference.TimeoutSeconds > 0, "inference.timeout_seconds must be positive")

	if topic := c.Notifications.NtfyTopic; topic != "" {
		u, err := url.Parse(topic)
		check(err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "",
			"notifications.ntfy_topic: %q is not an http(s) topic URL", topic)
	}
	return errors.Join(problems...)
}
