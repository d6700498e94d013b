// Package ui renders task and transfer events for the terminal.
package ui

import (
	"io"
	"time"

	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/stats"
)

// Presenter consumes events and displays progress.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan event.Event) error
	// Summary returns the final summary line.
	Summary() string
}

// Config configures a Presenter.
type Config struct {
	Writer    io.Writer
	ErrWriter io.Writer
	Stats     *stats.Collector
	// Root is trimmed from paths before they are printed.
	Root  string
	IsTTY bool
	Quiet bool
	// NoProgress keeps per-file lines but drops the periodic progress line.
	NoProgress bool
	// Width caps the redrawn progress line on a terminal. Zero means no cap.
	Width    int
	Interval time.Duration
}

// DefaultInterval is how often progress is reported.
const DefaultInterval = time.Second

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn // picks the implementation
func NewPresenter(cfg Config) Presenter {
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	if cfg.Quiet {
		return &quietPresenter{stats: cfg.Stats}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &plainPresenter{
		w:        cfg.Writer,
		errW:     cfg.ErrWriter,
		stats:    cfg.Stats,
		root:     cfg.Root,
		tty:      cfg.IsTTY,
		interval: interval,
		silent:   cfg.NoProgress,
		width:    cfg.Width,
	}
}
