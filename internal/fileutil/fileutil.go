// Package fileutil holds the small file helpers shared by the clip store and
// the inference staging area.
package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LinkOrCopy makes dst refer to the contents of src. A hard link is tried
// first; across filesystems the bytes are copied and checked against the
// source digest. An existing dst is replaced.
func LinkOrCopy(src, dst string) error {
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("replace %s: %w", dst, err)
	}
	if os.Link(src, dst) == nil {
		return nil
	}
	return copyChecked(src, dst)
}

// copyChecked writes src into a temp file next to dst and renames it into
// place once the digest of what was written matches the source.
func copyChecked(src, dst string) error {
	want, wantSize, err := SHA256File(src)
	if err != nil {
		return fmt.Errorf("digest source: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), in)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("copy %s: %w", filepath.Base(src), err)
	}
	if n != wantSize || hex.EncodeToString(h.Sum(nil)) != want {
		return fmt.Errorf("copy %s: content changed while copying (%d of %d bytes)", filepath.Base(src), n, wantSize)
	}
	return os.Rename(tmpPath, dst)
}

// SHA256File returns the hex digest and size of path.
func SHA256File(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
