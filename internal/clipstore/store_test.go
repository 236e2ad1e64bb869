package clipstore_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"vidsurvey/internal/clipstore"
	"vidsurvey/internal/services"
)

func openStore(t *testing.T) *clipstore.Store {
	t.Helper()
	store, err := clipstore.Open(filepath.Join(t.TempDir(), "clips"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store
}

func blobNames(blobs []clipstore.Blob) []string {
	names := make([]string, len(blobs))
	for i, b := range blobs {
		names[i] = b.Name
	}
	return names
}

func TestWriteReadList(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	blob, err := store.Write(ctx, "submissions/abc/raw", "question_02.webm", strings.NewReader("abc"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if blob.Size != 3 || blob.SHA256 != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("unexpected blob metadata: %+v", blob)
	}
	if _, err := store.Write(ctx, "submissions/abc/raw", "question_01.webm", strings.NewReader("x")); err != nil {
		t.Fatalf("Write second: %v", err)
	}

	f, meta, err := store.Read("submissions/abc/raw", "question_02.webm")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	data, _ := io.ReadAll(f)
	_ = f.Close()
	if string(data) != "abc" || meta.Size != 3 {
		t.Fatalf("unexpected read %q %+v", data, meta)
	}

	blobs, err := store.List("submissions/abc/raw")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if diff := cmp.Diff([]string{"question_01.webm", "question_02.webm"}, blobNames(blobs)); diff != "" {
		t.Fatalf("list mismatch (-want +got):\n%s", diff)
	}

	empty, err := store.List("submissions/none/raw")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list for unknown owner, got %v %v", empty, err)
	}
}

func TestWriteIsAppendOnce(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if _, err := store.Write(ctx, "o", "a.webm", strings.NewReader("first")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, err := store.Write(ctx, "o", "a.webm", strings.NewReader("second"))
	if !errors.Is(err, clipstore.ErrExists) || !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	f, _, err := store.Read("o", "a.webm")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "first" {
		t.Fatalf("blob was overwritten: %q", data)
	}
}

func TestConcurrentWritersSingleWinner(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Write(ctx, "race", "clip.webm", strings.NewReader("payload"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	wins := 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case !errors.Is(err, clipstore.ErrExists):
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one successful write, got %d", wins)
	}
}

func TestRejectsTraversal(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	for _, tc := range []struct{ owner, name string }{
		{"../escape", "a.webm"},
		{"ok", "../a.webm"},
		{"ok", ".hidden"},
		{"", "a.webm"},
	} {
		if _, err := store.Write(ctx, tc.owner, tc.name, strings.NewReader("x")); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error for %q/%q, got %v", tc.owner, tc.name, err)
		}
	}
}

func TestReadMissing(t *testing.T) {
	store := openStore(t)
	if _, _, err := store.Read("o", "missing.webm"); !errors.Is(err, clipstore.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBindMovesSessionClips(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	for _, name := range []string{"question_01.webm", "question_03.webm"} {
		if _, err := store.Write(ctx, "sessions/q1/s-1", name, strings.NewReader(name)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if _, err := store.Write(ctx, "submissions/sub/raw", "question_03.webm", strings.NewReader("direct")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	moved, err := store.Bind(ctx, "sessions/q1/s-1", "submissions/sub/raw", nil)
	if !errors.Is(err, clipstore.ErrExists) {
		t.Fatalf("expected conflict for duplicate clip, got %v", err)
	}
	if diff := cmp.Diff([]string{"question_01.webm"}, blobNames(moved)); diff != "" {
		t.Fatalf("moved mismatch:\n%s", diff)
	}
	blobs, _ := store.List("submissions/sub/raw")
	if diff := cmp.Diff([]string{"question_01.webm", "question_03.webm"}, blobNames(blobs)); diff != "" {
		t.Fatalf("target mismatch:\n%s", diff)
	}
	path, _ := store.Path("submissions/sub/raw", "question_03.webm")
	data, _ := os.ReadFile(path)
	if string(data) != "direct" {
		t.Fatalf("bind replaced an existing clip: %q", data)
	}
}

func TestBindLeavesExcludedClips(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	for _, name := range []string{"question_01.webm", "question_02.mp4"} {
		if _, err := store.Write(ctx, "sessions/q1/s-2", name, strings.NewReader(name)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	moved, err := store.Bind(ctx, "sessions/q1/s-2", "submissions/other/raw", func(name string) bool {
		return name != "question_02.mp4"
	})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if diff := cmp.Diff([]string{"question_01.webm"}, blobNames(moved)); diff != "" {
		t.Fatalf("moved mismatch:\n%s", diff)
	}
	left, _ := store.List("sessions/q1/s-2")
	if diff := cmp.Diff([]string{"question_02.mp4"}, blobNames(left)); diff != "" {
		t.Fatalf("source mismatch:\n%s", diff)
	}

	back, err := store.Bind(ctx, "submissions/other/raw", "sessions/q1/s-2", nil)
	if err != nil || len(back) != 1 {
		t.Fatalf("expected the clip moved back, got %v (%v)", blobNames(back), err)
	}
	left, _ = store.List("sessions/q1/s-2")
	if diff := cmp.Diff([]string{"question_01.webm", "question_02.mp4"}, blobNames(left)); diff != "" {
		t.Fatalf("source after restore mismatch:\n%s", diff)
	}
}

func TestRemoveOwner(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if _, err := store.Write(ctx, "submissions/gone", "question_01.webm", strings.NewReader("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := store.RemoveOwner(ctx, "submissions/gone"); err != nil {
		t.Fatalf("RemoveOwner: %v", err)
	}
	blobs, err := store.List("submissions/gone")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(blobs) != 0 {
		t.Fatalf("expected no blobs, got %v", blobNames(blobs))
	}
	if err := store.RemoveOwner(ctx, "submissions/never"); err != nil {
		t.Fatalf("RemoveOwner on missing owner: %v", err)
	}
}
