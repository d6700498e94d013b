package ui

import (
	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/stats"
)

// quietPresenter records events but produces no output.
type quietPresenter struct {
	stats *stats.Collector
}

func (p *quietPresenter) Run(events <-chan event.Event) error {
	for ev := range events {
		p.stats.Record(ev)
	}
	return nil
}

func (p *quietPresenter) Summary() string {
	return ""
}
