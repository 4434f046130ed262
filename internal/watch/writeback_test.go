package watch

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/vinitshetty/phototagger/internal/blobstore"
	"github.com/vinitshetty/phototagger/internal/config"
	"github.com/vinitshetty/phototagger/internal/providers"
	"github.com/vinitshetty/phototagger/internal/runner"
	"github.com/vinitshetty/phototagger/internal/state"
)

func TestWatcher_WriteBackDoesNotRetrigger(t *testing.T) {
	defer goleak.VerifyNone(t)

	base := t.TempDir()
	root := filepath.Join(base, "Photos")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		if err := os.WriteFile(filepath.Join(root, name), buf.Bytes(), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	mock := providers.NewMockClassifier("dog, beach")
	r, err := runner.New(runner.Options{
		Params: config.RunParams{
			Root:       root,
			Mode:       state.ModeBacklog,
			BatchLimit: 1,
		},
		StateDir:   filepath.Join(base, "state"),
		Backend:    blobstore.BackendFile,
		Classifier: mock,
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	var runs atomic.Int32
	w, err := New(root, func(ctx context.Context) error {
		runs.Add(1)
		_, err := r.Run(ctx)
		return err
	}, Config{
		Debounce:   100 * time.Millisecond,
		RunOnStart: true,
		Known:      r.Known,
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	stop := startWatcher(t, w)

	if !waitFor(t, func() bool { return runs.Load() >= 1 }) {
		t.Fatal("expected the start run")
	}
	// Long enough for several debounce periods.
	time.Sleep(time.Second)
	if got := runs.Load(); got != 1 {
		t.Errorf("runs = %d, want 1 (tag write-back must not retrigger)", got)
	}
	if got := len(mock.Calls()); got != 1 {
		t.Errorf("classify calls = %d, want 1", got)
	}

	// A genuinely new image still triggers.
	if err := os.WriteFile(filepath.Join(root, "d.png"), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { return runs.Load() >= 2 }) {
		t.Fatal("expected a run for the new image")
	}
	stop()
}
