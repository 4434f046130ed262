package runner

import (
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vinitshetty/phototagger/internal/batch"
	"github.com/vinitshetty/phototagger/internal/reconcile"
)

// Report describes one run.
type Report struct {
	RunID     string          `json:"run_id" yaml:"run_id"`
	State     reconcile.State `json:"state" yaml:"state"`
	Scanned   bool            `json:"scanned" yaml:"scanned"`
	Added     int             `json:"added" yaml:"added"`
	Catalog   int             `json:"catalog" yaml:"catalog"`
	Completed int             `json:"completed" yaml:"completed"`
	Pending   int             `json:"pending" yaml:"pending"`
	Batch     batch.Summary   `json:"batch" yaml:"batch"`
	StartedAt time.Time       `json:"started_at" yaml:"started_at"`
	Duration  time.Duration   `json:"duration" yaml:"duration"`
}

// Table implements output.Tabular.
func (r *Report) Table() ([]string, [][]string) {
	return []string{"Run " + r.RunID[:8], "Value"}, [][]string{
		{"state", string(r.State)},
		{"catalog", humanize.Comma(int64(r.Catalog))},
		{"completed before run", humanize.Comma(int64(r.Completed))},
		{"pending", humanize.Comma(int64(r.Pending))},
		{"added by scan", humanize.Comma(int64(r.Added))},
		{"tagged", humanize.Comma(int64(r.Batch.Tagged))},
		{"vanished", humanize.Comma(int64(r.Batch.Vanished))},
		{"classify failures", humanize.Comma(int64(r.Batch.ClassifyFailed))},
		{"metadata failures", humanize.Comma(int64(r.Batch.WriteFailed))},
		{"remaining", humanize.Comma(int64(r.Batch.Remaining))},
		{"duration", r.Duration.Round(time.Millisecond).String()},
	}
}

// Status is the persisted-state summary shown by the status command.
type Status struct {
	reconcile.Snapshot `yaml:",inline"`

	// State is where the tables are stored.
	State string `json:"state" yaml:"state"`

	now time.Time
}

// Table implements output.Tabular.
func (s Status) Table() ([]string, [][]string) {
	last := "never"
	if !s.Cursor.IsZero() {
		last = humanize.RelTime(s.Cursor.LastScan, s.now, "ago", "from now")
	}
	return []string{"Field", "Value"}, [][]string{
		{"root", s.Root},
		{"mode", string(s.Mode)},
		{"state", s.State},
		{"last incremental scan", last},
		{"catalog", humanize.Comma(int64(s.Catalog))},
		{"completed", humanize.Comma(int64(s.Completed))},
		{"pending", humanize.Comma(int64(s.Pending))},
		{"progress", percent(s.Catalog-s.Pending, s.Catalog)},
	}
}

func percent(n, total int) string {
	if total == 0 {
		return "-"
	}
	return strconv.FormatFloat(float64(n)*100/float64(total), 'f', 1, 64) + "%"
}
