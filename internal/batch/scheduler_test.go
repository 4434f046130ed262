package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/vinitshetty/phototagger/internal/blobstore"
	"github.com/vinitshetty/phototagger/internal/identity"
	"github.com/vinitshetty/phototagger/internal/reconcile"
	"github.com/vinitshetty/phototagger/internal/state"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func items(n int) []state.WorkItem {
	out := make([]state.WorkItem, n)
	for i := range out {
		id := fmt.Sprintf("Photos/img%02d.jpg", i+1)
		out[i] = state.WorkItem{Identity: id, FullPath: "/mnt/" + id}
	}
	return out
}

// recorder captures the order of hook invocations.
type recorder struct {
	events      []string
	missing     map[string]bool
	classifyErr map[string]error
	writeErr    map[string]error
	recordErr   map[string]error
	onClassify  func(item state.WorkItem)
}

func newRecorder() *recorder {
	return &recorder{
		missing:     map[string]bool{},
		classifyErr: map[string]error{},
		writeErr:    map[string]error{},
		recordErr:   map[string]error{},
	}
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		Exists: func(path string) bool { return !r.missing[path] },
		Classify: func(ctx context.Context, item state.WorkItem) (string, error) {
			r.events = append(r.events, "classify:"+item.Identity)
			if r.onClassify != nil {
				r.onClassify(item)
			}
			if err := ctx.Err(); err != nil {
				return "", err
			}
			if err := r.classifyErr[item.Identity]; err != nil {
				return "", err
			}
			return "tag", nil
		},
		WriteMetadata: func(item state.WorkItem, tags string) error {
			r.events = append(r.events, "write:"+item.Identity)
			return r.writeErr[item.Identity]
		},
		RecordDone: func(ctx context.Context, item state.WorkItem) error {
			r.events = append(r.events, "done:"+item.Identity)
			return r.recordErr[item.Identity]
		},
	}
}

func (r *recorder) sleep(ctx context.Context, d time.Duration) error {
	r.events = append(r.events, "pause")
	return nil
}

func (r *recorder) count(prefix string) int {
	n := 0
	for _, e := range r.events {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

func TestRun_RatePacing(t *testing.T) {
	r := newRecorder()
	s := New(Config{Limit: 10, RateLimit: 3, Window: time.Minute, Logger: quietLogger(), Sleep: r.sleep})

	sum, err := s.Run(context.Background(), items(7), r.hooks())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sum.Pauses != 2 || r.count("pause") != 2 {
		t.Fatalf("pauses = %d (events %d), want 2", sum.Pauses, r.count("pause"))
	}

	var pauseAfter []string
	for i, e := range r.events {
		if e == "pause" {
			pauseAfter = append(pauseAfter, r.events[i-1])
		}
	}
	want := []string{"done:Photos/img03.jpg", "done:Photos/img06.jpg"}
	for i := range want {
		if pauseAfter[i] != want[i] {
			t.Errorf("pause %d after %q, want %q", i, pauseAfter[i], want[i])
		}
	}
	if sum.Tagged != 7 || sum.Remaining != 0 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRun_PacingCountsRequestsNotRecords(t *testing.T) {
	r := newRecorder()
	r.recordErr["Photos/img02.jpg"] = errors.New("disk full")
	r.missing["/mnt/Photos/img03.jpg"] = true
	s := New(Config{RateLimit: 2, Window: time.Minute, Logger: quietLogger(), Sleep: r.sleep})

	sum, err := s.Run(context.Background(), items(4), r.hooks())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// img01 and img02 were both sent; the failed record still counts.
	// img03 vanished and made no request.
	if sum.Pauses != 2 {
		t.Fatalf("pauses = %d, want 2", sum.Pauses)
	}
	for i, e := range r.events {
		if e == "pause" && r.events[i-1] != "done:Photos/img02.jpg" && r.events[i-1] != "done:Photos/img04.jpg" {
			t.Errorf("unexpected pause after %q", r.events[i-1])
		}
	}
	if sum.Tagged != 2 || sum.RecordFailed != 1 || sum.Vanished != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRun_LimitAndRemaining(t *testing.T) {
	r := newRecorder()
	s := New(Config{Limit: 4, Logger: quietLogger(), Sleep: r.sleep})

	sum, err := s.Run(context.Background(), items(10), r.hooks())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Selected != 4 || sum.Remaining != 6 {
		t.Errorf("summary = %+v", sum)
	}
	if r.count("classify:") != 4 || r.count("pause") != 0 {
		t.Errorf("events = %v", r.events)
	}
	if r.events[0] != "classify:Photos/img01.jpg" {
		t.Errorf("expected delta order, first event %q", r.events[0])
	}
}

func TestRun_VanishedFileRecordedWithoutClassify(t *testing.T) {
	r := newRecorder()
	delta := items(2)
	r.missing[delta[0].FullPath] = true
	s := New(Config{Limit: 10, RateLimit: 1, Logger: quietLogger(), Sleep: r.sleep})

	sum, err := s.Run(context.Background(), delta, r.hooks())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"done:Photos/img01.jpg",
		"classify:Photos/img02.jpg", "write:Photos/img02.jpg", "done:Photos/img02.jpg", "pause",
	}
	if strings.Join(r.events, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", r.events, want)
	}
	if sum.Vanished != 1 || sum.Tagged != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRun_ClassifyFailureLeavesPending(t *testing.T) {
	r := newRecorder()
	delta := items(3)
	r.classifyErr[delta[1].Identity] = errors.New("quota exceeded")
	s := New(Config{Limit: 10, Logger: quietLogger(), Sleep: r.sleep})

	sum, err := s.Run(context.Background(), delta, r.hooks())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range r.events {
		if e == "done:Photos/img02.jpg" || e == "write:Photos/img02.jpg" {
			t.Errorf("failed item should not be written or recorded: %v", r.events)
		}
	}
	if sum.ClassifyFailed != 1 || sum.Tagged != 2 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRun_WriteFailureStillRecorded(t *testing.T) {
	r := newRecorder()
	delta := items(1)
	r.writeErr[delta[0].Identity] = errors.New("disk full")
	s := New(Config{Limit: 10, Logger: quietLogger(), Sleep: r.sleep})

	sum, err := s.Run(context.Background(), delta, r.hooks())
	if err != nil {
		t.Fatal(err)
	}
	if r.count("done:") != 1 {
		t.Errorf("expected completion despite write failure: %v", r.events)
	}
	if sum.WriteFailed != 1 || sum.Tagged != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRun_CancelDuringPause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := newRecorder()
	s := New(Config{
		Limit:     10,
		RateLimit: 2,
		Logger:    quietLogger(),
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return sleepCtx(ctx, d)
		},
	})

	sum, err := s.Run(ctx, items(5), r.hooks())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if r.count("classify:") != 2 || sum.Tagged != 2 {
		t.Errorf("expected to stop after the first window, events %v", r.events)
	}
}

func TestRun_CrashResume(t *testing.T) {
	ctx := context.Background()
	store, err := blobstore.NewDirStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	norm := identity.New("Photos")
	catalog := state.NewCatalog()
	for _, it := range items(5) {
		catalog.Add(it)
	}

	// First process dies while classifying the third item.
	runCtx, kill := context.WithCancel(ctx)
	ledger := state.NewLedgerTable(store, norm, quietLogger())
	ledger.Load(ctx)
	first := newRecorder()
	first.onClassify = func(item state.WorkItem) {
		if item.Identity == "Photos/img03.jpg" {
			kill()
		}
	}
	hooks := first.hooks()
	hooks.RecordDone = func(ctx context.Context, item state.WorkItem) error {
		return ledger.Record(ctx, item.Identity, item.FullPath)
	}
	s := New(Config{Limit: 10, Logger: quietLogger(), Sleep: first.sleep})
	if _, err := s.Run(runCtx, reconcile.Delta(catalog, ledger.Ledger(ctx)), hooks); !errors.Is(err, context.Canceled) {
		t.Fatalf("first run error = %v", err)
	}

	// Second process starts from the persisted ledger.
	reloaded := state.NewLedgerTable(store, norm, quietLogger())
	delta := reconcile.Delta(catalog, reloaded.Load(ctx))
	second := newRecorder()
	hooks = second.hooks()
	hooks.RecordDone = func(ctx context.Context, item state.WorkItem) error {
		return reloaded.Record(ctx, item.Identity, item.FullPath)
	}
	if _, err := s.Run(ctx, delta, hooks); err != nil {
		t.Fatal(err)
	}

	want := []string{"classify:Photos/img03.jpg", "classify:Photos/img04.jpg", "classify:Photos/img05.jpg"}
	var got []string
	for _, e := range second.events {
		if strings.HasPrefix(e, "classify:") {
			got = append(got, e)
		}
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("second run classified %v, want %v", got, want)
	}
	if n := state.NewLedgerTable(store, norm, quietLogger()).Load(ctx).Len(); n != 5 {
		t.Errorf("ledger has %d records, want 5", n)
	}
}

type skipErr struct{}

func (skipErr) Error() string     { return "heic" }
func (skipErr) Unsupported() bool { return true }

func TestIsUnsupported(t *testing.T) {
	if !isUnsupported(fmt.Errorf("wrap: %w", skipErr{})) {
		t.Error("expected wrapped unsupported error to be detected")
	}
	if isUnsupported(errors.New("io")) {
		t.Error("plain error is not unsupported")
	}
}
