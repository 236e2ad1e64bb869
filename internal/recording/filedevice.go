package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vidsurvey/internal/survey"
)

const defaultChunkSize = 64 << 10

// FileDevice replays pre-recorded clips named question_NN.<ext> from Dir.
// Items without a file behave like an unavailable camera.
type FileDevice struct {
	Dir       string
	ChunkSize int
	// Pace is the delay between chunks; zero replays as fast as possible.
	Pace time.Duration
}

// Open locates the file for ordinal.
func (d *FileDevice) Open(ctx context.Context, ordinal int) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, fmt.Errorf("read clip directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ord, ok := survey.ParseClipName(entry.Name()); ok && ord == ordinal {
			return &fileStream{path: filepath.Join(d.Dir, entry.Name()), chunk: d.chunkSize(), pace: d.Pace}, nil
		}
	}
	return nil, fmt.Errorf("no clip for item %d in %s: %w", ordinal+1, d.Dir, fs.ErrNotExist)
}

func (d *FileDevice) chunkSize() int {
	if d.ChunkSize > 0 {
		return d.ChunkSize
	}
	return defaultChunkSize
}

type fileStream struct {
	path  string
	chunk int
	pace  time.Duration
}

func (s *fileStream) NewRecorder(_ int, sink ChunkSink) (Recorder, error) {
	r := &fileRecorder{path: s.path, chunk: s.chunk, pace: s.pace, sink: sink, exited: make(chan struct{})}
	r.cond = sync.NewCond(&r.mu)
	return r, nil
}

func (s *fileStream) Close() error { return nil }

type fileRecorder struct {
	path  string
	chunk int
	pace  time.Duration
	sink  ChunkSink

	mu      sync.Mutex
	cond    *sync.Cond
	started bool
	paused  bool
	stopped bool
	readErr error
	exited  chan struct{}
}

func (r *fileRecorder) Start() error {
	f, err := os.Open(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		_ = f.Close()
		return errors.New("recorder already started")
	}
	r.started = true
	r.mu.Unlock()
	go r.run(f)
	return nil
}

func (r *fileRecorder) run(f *os.File) {
	defer close(r.exited)
	defer f.Close()
	buf := make([]byte, r.chunk)
	for {
		r.mu.Lock()
		for r.paused && !r.stopped {
			r.cond.Wait()
		}
		stopped := r.stopped
		r.mu.Unlock()
		if stopped {
			return
		}

		n, err := f.Read(buf)
		if n > 0 {
			r.sink(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.mu.Lock()
				r.readErr = err
				r.mu.Unlock()
			}
			return
		}
		if r.pace > 0 {
			time.Sleep(r.pace)
		}
	}
}

func (r *fileRecorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = true
	return nil
}

func (r *fileRecorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = false
	r.cond.Broadcast()
	return nil
}

// Stop ends replay and waits for the reader goroutine to exit.
func (r *fileRecorder) Stop() error {
	r.mu.Lock()
	started := r.started
	r.stopped = true
	r.cond.Broadcast()
	r.mu.Unlock()
	if !started {
		return nil
	}
	<-r.exited
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readErr
}

// Done is closed once the whole file has been replayed or Stop was called.
func (r *fileRecorder) Done() <-chan struct{} { return r.exited }

func (r *fileRecorder) MimeType() string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(r.path)), ".")
	switch ext {
	case "mov":
		return "video/quicktime"
	case "mkv":
		return "video/x-matroska"
	case "":
		return "video/webm"
	}
	return "video/" + ext
}
