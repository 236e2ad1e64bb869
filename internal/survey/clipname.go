package survey

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const clipPrefix = "question_"

// ClipName returns the canonical file name for an item's clip. Names are
// 1-based and zero padded so lexical order matches ordinal order.
func ClipName(ordinal int, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s%02d%s", clipPrefix, ordinal+1, strings.ToLower(ext))
}

// ParseClipName extracts the 0-based ordinal from a clip file name.
func ParseClipName(name string) (int, bool) {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if !strings.HasPrefix(base, clipPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(base, clipPrefix))
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}
