package scanner

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vinitshetty/phototagger/internal/identity"
	"github.com/vinitshetty/phototagger/internal/state"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path string, mod time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("img"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func newTree(t *testing.T) (string, time.Time) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "photos")
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	writeFile(t, filepath.Join(root, "a.jpg"), base)
	writeFile(t, filepath.Join(root, "b.PNG"), base.Add(2*time.Hour))
	writeFile(t, filepath.Join(root, "notes.txt"), base.Add(2*time.Hour))
	writeFile(t, filepath.Join(root, "2024", "c.heic"), base.Add(4*time.Hour))
	writeFile(t, filepath.Join(root, "2024", "d.jpeg"), base.Add(-time.Hour))
	writeFile(t, filepath.Join(root, ".thumbnails", "e.jpg"), base.Add(5*time.Hour))
	return root, base
}

func newScanner(exclude ...string) *Scanner {
	return New(Config{
		Normalizer: identity.New("photos"),
		Exclude:    exclude,
		Logger:     quietLogger(),
		Now:        func() time.Time { return time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC) },
	})
}

func TestScan_Backlog(t *testing.T) {
	root, _ := newTree(t)

	got, err := newScanner().Scan(context.Background(), root, state.Cursor{}, state.ModeBacklog)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	want := []string{
		"photos/.thumbnails/e.jpg",
		"photos/2024/c.heic",
		"photos/2024/d.jpeg",
		"photos/a.jpg",
		"photos/b.PNG",
	}
	keys := got.Keys()
	if len(keys) != len(want) {
		t.Fatalf("got %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}

	a, _ := got.Get("photos/a.jpg")
	if a.FullPath != filepath.Join(root, "a.jpg") {
		t.Errorf("FullPath = %q", a.FullPath)
	}
	if !a.AddedTime.Equal(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("AddedTime = %v", a.AddedTime)
	}
}

func TestScan_BacklogIgnoresCursor(t *testing.T) {
	root, base := newTree(t)
	cursor := state.Cursor{LastScan: base.Add(100 * time.Hour)}

	got, _ := newScanner().Scan(context.Background(), root, cursor, state.ModeBacklog)
	if got.Len() != 5 {
		t.Errorf("backlog scan accepted %d items, want 5", got.Len())
	}
}

func TestScan_IncrementalFiltersByCursor(t *testing.T) {
	root, base := newTree(t)
	cursor := state.Cursor{LastScan: base.Add(2 * time.Hour), Mode: state.ModeIncremental}

	got, err := newScanner().Scan(context.Background(), root, cursor, state.ModeIncremental)
	if err != nil {
		t.Fatal(err)
	}

	// b.PNG has modTime == cursor and must be excluded (strictly after).
	want := map[string]bool{
		"photos/2024/c.heic":       true,
		"photos/.thumbnails/e.jpg": true,
	}
	if got.Len() != len(want) {
		t.Fatalf("got %v, want %v", got.Keys(), want)
	}
	for _, k := range got.Keys() {
		if !want[k] {
			t.Errorf("unexpected item %q", k)
		}
	}
}

func TestScan_Exclude(t *testing.T) {
	root, _ := newTree(t)

	got, _ := newScanner("**/.thumbnails", "2024/*.jpeg").Scan(context.Background(), root, state.Cursor{}, state.ModeBacklog)
	for _, k := range got.Keys() {
		if k == "photos/.thumbnails/e.jpg" || k == "photos/2024/d.jpeg" {
			t.Errorf("excluded item present: %q", k)
		}
	}
	if got.Len() != 3 {
		t.Errorf("Len = %d, want 3", got.Len())
	}
}

func TestScan_UnreadableDirectoryKeepsPartialResults(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	root, _ := newTree(t)
	locked := filepath.Join(root, "2024")
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	got, err := newScanner().Scan(context.Background(), root, state.Cursor{}, state.ModeBacklog)
	if err != nil {
		t.Fatalf("Scan should not fail on unreadable directory: %v", err)
	}
	if !got.Has("photos/a.jpg") || !got.Has("photos/b.PNG") {
		t.Errorf("expected items outside locked dir, got %v", got.Keys())
	}
	if got.Has("photos/2024/c.heic") {
		t.Error("item inside unreadable dir should be absent")
	}
}

func TestScan_MissingRootIsEmpty(t *testing.T) {
	got, err := newScanner().Scan(context.Background(), filepath.Join(t.TempDir(), "nope"), state.Cursor{}, state.ModeBacklog)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got.Len() != 0 {
		t.Errorf("expected no items, got %d", got.Len())
	}
}

func TestScan_Cancelled(t *testing.T) {
	root, _ := newTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newScanner().Scan(ctx, root, state.Cursor{}, state.ModeBacklog)
	if err == nil {
		t.Error("expected context error")
	}
}

func TestNew_DropsInvalidPatterns(t *testing.T) {
	s := newScanner("[", "**/*.tmp")
	if len(s.exclude) != 1 || s.exclude[0] != "**/*.tmp" {
		t.Errorf("exclude = %v", s.exclude)
	}
}
