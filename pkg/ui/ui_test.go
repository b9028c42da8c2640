package ui

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gphotofetch/pkg/models"
)

func TestColorToggle(t *testing.T) {
	SetColor(true)
	assert.Equal(t, "\033[31mx\033[0m", Red("x"))

	SetColor(false)
	assert.Equal(t, "x", Red("x"))
}

func TestPrintHelpers(t *testing.T) {
	SetColor(false)
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	PrintInfo("Output", "/photos")
	PrintError("Fetch failed", errors.New("boom"))
	PrintWarning("careful")

	assert.Equal(t, "Output: /photos\nFetch failed: boom\ncareful\n", buf.String())
}

func TestReporterCounts(t *testing.T) {
	SetColor(false)
	var buf bytes.Buffer
	r := NewReporter(ReporterOptions{Output: &buf, UpdateInterval: 10 * time.Millisecond})
	r.Start()

	jan := models.MonthBucket{Year: 2023, Month: 1}
	r.BucketStarted(jan, 1, 2, 3)
	r.TaskDone(models.TaskResult{Outcome: models.OutcomeDownloaded, Bytes: 2048})
	r.TaskDone(models.TaskResult{Outcome: models.OutcomeSkipped})
	r.TaskDone(models.TaskResult{
		Task:    models.DownloadTask{Record: models.ItemRecord{Filename: "bad.jpg"}},
		Outcome: models.OutcomeFailed,
		Err:     errors.New("404"),
	})
	r.Stop()
	r.Stop()

	line := r.StatusLine()
	assert.Contains(t, line, "2023-01 (1/2)")
	assert.Contains(t, line, "3/3")
	assert.Contains(t, line, "2.0 kB")
	assert.Contains(t, line, "1 failed")

	out := buf.String()
	assert.Contains(t, out, "[month] 2023-01 (1/2): 3 items")
	assert.Contains(t, out, "bad.jpg: 404")
}

type fakeSender struct {
	mu    sync.Mutex
	title string
	msg   string
}

func (f *fakeSender) Send(title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.title, f.msg = title, message
	return errors.New("ignored")
}

func TestNotifier(t *testing.T) {
	s := &fakeSender{}
	NewNotifierWithSender(s).Notify("gphotofetch", "done")
	assert.Equal(t, "gphotofetch", s.title)
	assert.Equal(t, "done", s.msg)

	var nilNotifier *Notifier
	nilNotifier.Notify("x", "y")
}

func TestEscaping(t *testing.T) {
	assert.Equal(t, `say \"hi\"`, appleScriptEscape(`say "hi"`))
	assert.Equal(t, "it''s", powerShellEscape("it's"))
}

func TestPrintSummary(t *testing.T) {
	SetColor(false)
	var buf bytes.Buffer
	PrintSummary(&buf, Summary{
		Range: models.Range{
			Start: models.MonthBucket{Year: 2022, Month: 11},
			End:   models.MonthBucket{Year: 2023, Month: 2},
		},
		Totals:        models.TotalsSnapshot{Seen: 3, Downloaded: 2, Skipped: 1, Bytes: 1500000},
		FailedBuckets: []string{"2023-01: fetch failed"},
		Elapsed:       90 * time.Second,
	})

	out := buf.String()
	assert.Contains(t, out, "Finished 2022-11..2023-02")
	assert.Contains(t, out, "2 downloaded (1.5 MB) in 1m30s")
	assert.Contains(t, out, "1 already present")
	assert.True(t, strings.Contains(out, "1 months failed:"))
	assert.NotContains(t, out, "downloads failed")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "2m5s", FormatDuration(125*time.Second))
	assert.Equal(t, "1h1m", FormatDuration(61*time.Minute))
}
