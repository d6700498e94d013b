package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/stats"
)

func newPlain(out, errOut *bytes.Buffer) *plainPresenter {
	return &plainPresenter{w: out, errW: errOut, stats: stats.NewCollector(), root: "/dst", interval: time.Hour}
}

func run(t *testing.T, p Presenter, evs ...event.Event) {
	t.Helper()
	events := make(chan event.Event, len(evs))
	for _, ev := range evs {
		events <- ev
	}
	close(events)
	require.NoError(t, p.Run(events))
}

func TestPlainPresenterFileCompleted(t *testing.T) {
	t.Parallel()
	var out, errOut bytes.Buffer
	p := newPlain(&out, &errOut)

	run(t, p,
		event.Event{Type: event.FileCompleted, Path: "/dst/dir/file.txt", Size: 1024},
		event.Event{Type: event.FileCompleted, Path: "/dst/dir/big.bin", Size: 100 << 20},
	)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "/dir/file.txt  1.0 KiB", lines[0])
	assert.Equal(t, "/dir/big.bin  100 MiB", lines[1])
	assert.Equal(t, int64(2), p.stats.Snapshot().FilesDone)
}

func TestPlainPresenterFileFailed(t *testing.T) {
	t.Parallel()
	var out, errOut bytes.Buffer
	p := newPlain(&out, &errOut)

	mismatch := &errdefs.ChecksumError{Path: "/dst/f", Expected: "sha256:00", Actual: "sha256:11"}
	run(t, p, event.Event{Type: event.FileFailed, Path: "/dst/f", Error: mismatch})

	assert.Contains(t, out.String(), "/f  checksum mismatch")
	assert.Equal(t, int64(1), p.stats.Snapshot().Mismatches)
}

func TestPlainPresenterSkippedAndDeleted(t *testing.T) {
	t.Parallel()
	var out, errOut bytes.Buffer
	p := newPlain(&out, &errOut)

	run(t, p,
		event.Event{Type: event.FileSkipped, Path: "/dst/skip.txt"},
		event.Event{Type: event.DeleteFile, Path: "/dst/extra.txt"},
	)
	assert.Contains(t, out.String(), "/skip.txt  skipped")
	assert.Contains(t, out.String(), "delete: /extra.txt")
}

func TestPlainPresenterTaskOutcomesGoToStderr(t *testing.T) {
	t.Parallel()
	var out, errOut bytes.Buffer
	p := newPlain(&out, &errOut)

	run(t, p,
		event.Event{Type: event.TaskFailed, Activity: "Deleting /x", Error: errors.New("boom")},
		event.Event{Type: event.TaskCanceled, Activity: "Searching in /y"},
	)
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "Deleting /x: boom")
	assert.Contains(t, errOut.String(), "Searching in /y: canceled")
}

func TestPlainPresenterProgress(t *testing.T) {
	t.Parallel()
	var out, errOut bytes.Buffer
	p := newPlain(&out, &errOut)
	p.stats.AddBytesTotal(4 << 20)
	p.stats.AddBytesMoved(1 << 20)

	p.printProgress()
	assert.Contains(t, errOut.String(), "25%")
	assert.Contains(t, errOut.String(), "1.0 MiB/4.0 MiB")
	assert.True(t, strings.HasSuffix(errOut.String(), "\n"))

	errOut.Reset()
	p.tty = true
	p.printProgress()
	assert.True(t, strings.HasPrefix(errOut.String(), "\r\033[K"))
	p.clearProgress()
	assert.False(t, p.drawn)

	errOut.Reset()
	p.width = 12
	p.printProgress()
	assert.Equal(t, "\r\033[Kprogress: ▪", errOut.String())
}

func TestPlainPresenterSummary(t *testing.T) {
	t.Parallel()
	p := newPlain(&bytes.Buffer{}, &bytes.Buffer{})
	for range 3 {
		p.stats.Record(event.Event{Type: event.FileCompleted})
	}
	p.stats.AddBytesMoved(1 << 20)

	s := p.Summary()
	assert.Contains(t, s, "files 3")
	assert.Contains(t, s, "size 1.0 MiB")
	assert.Contains(t, s, "errors 0")
	assert.Contains(t, s, "✓")
}

func TestQuietPresenter(t *testing.T) {
	t.Parallel()
	collector := stats.NewCollector()
	p := NewPresenter(Config{Quiet: true, Stats: collector})
	run(t, p, event.Event{Type: event.FileCompleted}, event.Event{Type: event.TaskFailed})
	assert.Empty(t, p.Summary())
	assert.Equal(t, int64(1), collector.Snapshot().FilesDone)
	assert.Equal(t, int64(1), collector.Snapshot().TasksFailed)
}

func TestPlainPresenterNoProgressSuppressesTicker(t *testing.T) {
	t.Parallel()
	var out, errOut bytes.Buffer
	p := NewPresenter(Config{Writer: &out, ErrWriter: &errOut, NoProgress: true, Interval: time.Millisecond})

	events := make(chan event.Event)
	done := make(chan error, 1)
	go func() { done <- p.Run(events) }()
	time.Sleep(20 * time.Millisecond)
	events <- event.Event{Type: event.FileCompleted, Path: "/f", Size: 1}
	close(events)
	require.NoError(t, <-done)

	assert.Empty(t, errOut.String())
	assert.Equal(t, "/f  1 B\n", out.String())
}
