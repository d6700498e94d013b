package ui

import (
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/remote"
	"github.com/bamsammich/ferry/internal/stats"
)

// plainPresenter prints one line per finished file to w and periodic
// progress to errW. On a terminal the progress line is redrawn in place.
type plainPresenter struct {
	w        io.Writer
	errW     io.Writer
	stats    *stats.Collector
	root     string
	tty      bool
	interval time.Duration
	silent   bool
	width    int
	drawn    bool
}

func (p *plainPresenter) Run(events <-chan event.Event) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.clearProgress()
				return nil
			}
			p.stats.Record(ev)
			p.handleEvent(ev)
		case <-ticker.C:
			p.stats.Tick()
			if !p.silent {
				p.printProgress()
			}
		}
	}
}

func (p *plainPresenter) handleEvent(ev event.Event) {
	path := remote.Relativize(p.root, ev.Path)
	switch ev.Type {
	case event.FileCompleted:
		p.clearProgress()
		fmt.Fprintf(p.w, "%s  %s\n", path, FormatBytes(ev.Size))
	case event.FileFailed:
		p.clearProgress()
		errMsg := "error"
		if ev.Error != nil {
			errMsg = ev.Error.Error()
		}
		fmt.Fprintf(p.w, "%s  %s\n", path, errMsg)
	case event.FileSkipped:
		p.clearProgress()
		fmt.Fprintf(p.w, "%s  skipped\n", path)
	case event.DeleteFile:
		p.clearProgress()
		fmt.Fprintf(p.w, "delete: %s\n", path)
	case event.TaskFailed:
		p.clearProgress()
		fmt.Fprintf(p.errW, "%s: %v\n", ev.Activity, ev.Error)
	case event.TaskCanceled:
		p.clearProgress()
		fmt.Fprintf(p.errW, "%s: canceled\n", ev.Activity)
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	var line string
	if snap.BytesTotal > 0 {
		pct := float64(snap.BytesMoved) / float64(snap.BytesTotal)
		line = fmt.Sprintf("progress: %s %.0f%% %s/%s %s files %s eta %s",
			ProgressBar(pct, 20), pct*100,
			FormatBytes(snap.BytesMoved), FormatBytes(snap.BytesTotal),
			FormatCount(snap.FilesDone),
			FormatRate(p.stats.RollingSpeed(10)),
			FormatETA(p.stats.ETA()),
		)
	} else {
		line = fmt.Sprintf("progress: %s moved %s files %s",
			FormatBytes(snap.BytesMoved),
			FormatCount(snap.FilesDone),
			FormatRate(p.stats.RollingSpeed(10)),
		)
	}
	if p.tty {
		if p.width > 1 && utf8.RuneCountInString(line) >= p.width {
			line = string([]rune(line)[:p.width-1])
		}
		fmt.Fprintf(p.errW, "\r\033[K%s", line)
		p.drawn = true
		return
	}
	fmt.Fprintln(p.errW, line)
}

func (p *plainPresenter) clearProgress() {
	if p.drawn {
		fmt.Fprint(p.errW, "\r\033[K")
		p.drawn = false
	}
}

func (p *plainPresenter) Summary() string {
	return completionSummary(p.stats.Snapshot())
}
