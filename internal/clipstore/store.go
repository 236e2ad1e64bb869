package clipstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"vidsurvey/internal/services"
)

const (
	lockName      = ".owner.lock"
	lockRetryWait = 25 * time.Millisecond
)

var (
	// ErrExists is returned when a blob name is already taken for an owner.
	ErrExists = fmt.Errorf("%w: blob already exists", services.ErrConflict)
	// ErrNotFound is returned for unknown blobs.
	ErrNotFound = fmt.Errorf("%w: blob", services.ErrNotFound)

	segmentPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// Blob describes a stored object.
type Blob struct {
	Owner   string    `json:"owner"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	SHA256  string    `json:"sha256,omitempty"`
	ModTime time.Time `json:"modTime"`
}

// Store is a clip store rooted at a directory.
type Store struct {
	root string
}

// Open prepares a store rooted at dir.
func Open(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "clipstore", "open", "root directory required", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create clip root: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

// Path resolves the on-disk location of a blob without checking existence.
func (s *Store) Path(owner, name string) (string, error) {
	dir, err := s.ownerDir(owner)
	if err != nil {
		return "", err
	}
	if err := validateName(name); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// Write stores r under owner/name. The blob becomes visible only once fully
// written; an existing name is never replaced.
func (s *Store) Write(ctx context.Context, owner, name string, r io.Reader) (Blob, error) {
	target, err := s.Path(owner, name)
	if err != nil {
		return Blob{}, err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Blob{}, fmt.Errorf("create owner dir: %w", err)
	}

	unlock, err := s.lockOwner(ctx, dir)
	if err != nil {
		return Blob{}, err
	}
	defer unlock()

	if _, err := os.Stat(target); err == nil {
		return Blob{}, fmt.Errorf("%s/%s: %w", owner, name, ErrExists)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return Blob{}, fmt.Errorf("create temp blob: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), readerWithContext(ctx, r))
	if err != nil {
		_ = tmp.Close()
		cleanup()
		return Blob{}, fmt.Errorf("write blob %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return Blob{}, fmt.Errorf("sync blob %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return Blob{}, fmt.Errorf("close blob %s: %w", name, err)
	}
	// Link fails if target appeared meanwhile, which keeps blobs append-once
	// even against writers that bypass the owner lock.
	if err := os.Link(tmpPath, target); err != nil {
		cleanup()
		if errors.Is(err, fs.ErrExist) {
			return Blob{}, fmt.Errorf("%s/%s: %w", owner, name, ErrExists)
		}
		return Blob{}, fmt.Errorf("publish blob %s: %w", name, err)
	}
	cleanup()

	return Blob{
		Owner:   owner,
		Name:    name,
		Size:    size,
		SHA256:  hex.EncodeToString(hasher.Sum(nil)),
		ModTime: time.Now().UTC(),
	}, nil
}

// Read opens a blob for reading. The caller closes the file.
func (s *Store) Read(owner, name string) (*os.File, Blob, error) {
	path, err := s.Path(owner, name)
	if err != nil {
		return nil, Blob{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Blob{}, fmt.Errorf("%s/%s: %w", owner, name, ErrNotFound)
		}
		return nil, Blob{}, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, Blob{}, err
	}
	return f, Blob{Owner: owner, Name: name, Size: info.Size(), ModTime: info.ModTime().UTC()}, nil
}

// List returns the blobs stored for owner sorted by name. An unknown owner has no blobs.
func (s *Store) List(owner string) ([]Blob, error) {
	dir, err := s.ownerDir(owner)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	blobs := make([]Blob, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		blobs = append(blobs, Blob{Owner: owner, Name: entry.Name(), Size: info.Size(), ModTime: info.ModTime().UTC()})
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].Name < blobs[j].Name })
	return blobs, nil
}

// Bind moves the blobs of fromOwner accepted by include (all of them when
// include is nil) to toOwner. Blobs already present under toOwner are left in
// place and reported as conflicts in the returned error.
func (s *Store) Bind(ctx context.Context, fromOwner, toOwner string, include func(name string) bool) ([]Blob, error) {
	fromDir, err := s.ownerDir(fromOwner)
	if err != nil {
		return nil, err
	}
	toDir, err := s.ownerDir(toOwner)
	if err != nil {
		return nil, err
	}
	if fromDir == toDir {
		return nil, services.Wrap(services.ErrValidation, "clipstore", "bind", "source and target owner are the same", nil)
	}
	blobs, err := s.List(fromOwner)
	if err != nil {
		return nil, err
	}
	if include != nil {
		blobs = slices.DeleteFunc(blobs, func(b Blob) bool { return !include(b.Name) })
	}
	if len(blobs) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(toDir, 0o755); err != nil {
		return nil, fmt.Errorf("create owner dir: %w", err)
	}
	unlockFrom, err := s.lockOwner(ctx, fromDir)
	if err != nil {
		return nil, err
	}
	defer unlockFrom()
	unlockTo, err := s.lockOwner(ctx, toDir)
	if err != nil {
		return nil, err
	}
	defer unlockTo()

	moved := make([]Blob, 0, len(blobs))
	var conflicts []string
	for _, blob := range blobs {
		src := filepath.Join(fromDir, blob.Name)
		dst := filepath.Join(toDir, blob.Name)
		if err := os.Link(src, dst); err != nil {
			if errors.Is(err, fs.ErrExist) {
				conflicts = append(conflicts, blob.Name)
				continue
			}
			return moved, fmt.Errorf("bind %s: %w", blob.Name, err)
		}
		_ = os.Remove(src)
		blob.Owner = toOwner
		moved = append(moved, blob)
	}
	if len(conflicts) > 0 {
		return moved, fmt.Errorf("bind %s: %s: %w", toOwner, strings.Join(conflicts, ", "), ErrExists)
	}
	return moved, nil
}

// RemoveOwner deletes every blob of owner. Used to discard clips of a
// submission that was never persisted.
func (s *Store) RemoveOwner(ctx context.Context, owner string) error {
	dir, err := s.ownerDir(owner)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	unlock, err := s.lockOwner(ctx, dir)
	if err != nil {
		return err
	}
	defer unlock()
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove owner %s: %w", owner, err)
	}
	return nil
}

func (s *Store) ownerDir(owner string) (string, error) {
	owner = strings.Trim(strings.TrimSpace(owner), "/")
	if owner == "" {
		return "", services.Wrap(services.ErrValidation, "clipstore", "owner", "empty owner", nil)
	}
	for _, segment := range strings.Split(owner, "/") {
		if !segmentPattern.MatchString(segment) || strings.Contains(segment, "..") {
			return "", services.Wrap(services.ErrValidation, "clipstore", "owner", fmt.Sprintf("invalid segment %q", segment), nil)
		}
	}
	return filepath.Join(s.root, filepath.FromSlash(owner)), nil
}

func validateName(name string) error {
	if !segmentPattern.MatchString(name) || strings.Contains(name, "..") {
		return services.Wrap(services.ErrValidation, "clipstore", "name", fmt.Sprintf("invalid blob name %q", name), nil)
	}
	return nil
}

func (s *Store) lockOwner(ctx context.Context, dir string) (func(), error) {
	lock := flock.New(filepath.Join(dir, lockName))
	ok, err := lock.TryLockContext(ctx, lockRetryWait)
	if err != nil {
		return nil, fmt.Errorf("lock owner: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("lock owner %s: not acquired", dir)
	}
	return func() { _ = lock.Unlock() }, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
