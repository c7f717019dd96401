package progress

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Tracker tracks archive progress across assets.
type Tracker struct {
	bar       *progressbar.ProgressBar
	assets    atomic.Int64
	rows      atomic.Int64
	startTime time.Time
}

// New creates a new progress tracker.
func New() *Tracker {
	return &Tracker{startTime: time.Now()}
}

// SetTotal sets the total number of assets to process.
func (t *Tracker) SetTotal(total int64) {
	t.bar = progressbar.NewOptions64(
		total,
		progressbar.OptionSetDescription("Archiving"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("assets"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// AssetDone records a finished asset and the rows it produced.
func (t *Tracker) AssetDone(rows int64) {
	t.assets.Add(1)
	t.rows.Add(rows)
	if t.bar != nil {
		t.bar.Add64(1)
	}
}

// Rows returns the total rows archived so far.
func (t *Tracker) Rows() int64 {
	return t.rows.Load()
}

// Finish completes the bar and prints a one-line wrap-up.
func (t *Tracker) Finish() {
	if t.bar != nil {
		t.bar.Finish()
	}

	elapsed := time.Since(t.startTime)
	fmt.Println()
	fmt.Printf("Archived %d assets (%d rows) in %s\n",
		t.assets.Load(), t.rows.Load(), elapsed.Round(time.Second))
}
