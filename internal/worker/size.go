package worker

import (
	"context"

	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/remote"
)

// CalculateSize sums the sizes of Files and everything beneath them. Each
// top-level path gets its own sum recorded as its size attribute; Run
// returns the grand total.
type CalculateSize struct {
	Files []*remote.Path
	List  feature.List
	// Update observes the running total after each file. Successive values
	// never decrease.
	Update func(total int64)
	Events chan<- event.Event
}

func (w *CalculateSize) Activity() string { return "Getting size of " + describe(w.Files) }

func (w *CalculateSize) Run(ctx context.Context) (int64, error) {
	var total int64
	for _, f := range w.Files {
		var size int64
		err := walk(ctx, w.List, f, true, func(p *remote.Path) error {
			if !p.IsFile() {
				return nil
			}
			if n := p.Attributes().Size; n > 0 {
				size += n
				total += n
			}
			if w.Update != nil {
				w.Update(total)
			}
			event.Emit(w.Events, event.Event{Type: event.SizeUpdated, Path: p.Abs(), Size: size, TotalSize: total})
			return nil
		})
		if err != nil {
			return total, err
		}
		f.UpdateAttributes(func(a *remote.Attributes) { a.Size = size })
	}
	return total, nil
}
