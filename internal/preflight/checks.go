package preflight

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const ntfyHealthTimeout = 5 * time.Second

func fail(name, format string, args ...any) Result {
	return Result{Name: name, Detail: fmt.Sprintf(format, args...)}
}

// CheckDirectoryAccess verifies path is a directory the daemon can list,
// create files in and read back. Passing results include the free space.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return fail(name, "not configured")
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fail(name, "%s (error: does not exist)", path)
	case err != nil:
		return fail(name, "%s (error: stat: %v)", path, err)
	case !info.IsDir():
		return fail(name, "%s (error: is not a directory)", path)
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fail(name, "%s (error: insufficient permissions: %v)", path, err)
	}
	detail := path + " (read/write ok"
	var st unix.Statfs_t
	if unix.Statfs(path, &st) == nil {
		detail += fmt.Sprintf(", %.1f GiB free", float64(st.Bavail)*float64(st.Bsize)/(1<<30))
	}
	return Result{Name: name, Passed: true, Detail: detail + ")"}
}

// CheckNtfy asks the ntfy server behind topicURL for /v1/health.
func CheckNtfy(ctx context.Context, topicURL string) Result {
	const name = "ntfy"
	topic, err := url.Parse(strings.TrimSpace(topicURL))
	if err != nil || topic.Scheme == "" || topic.Host == "" {
		return fail(name, "invalid topic url %q", topicURL)
	}
	health := (&url.URL{Scheme: topic.Scheme, Host: topic.Host, Path: "/v1/health"}).String()

	ctx, cancel := context.WithTimeout(ctx, ntfyHealthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, health, nil)
	if err != nil {
		return fail(name, "health check failed (%v)", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fail(name, "unreachable (%v)", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fail(name, "health check failed (%d)", resp.StatusCode)
	}
	return Result{Name: name, Passed: true, Detail: topic.Host + " reachable"}
}
