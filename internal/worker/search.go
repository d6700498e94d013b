package worker

import (
	"context"
	"fmt"

	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/filter"
	"github.com/bamsammich/ferry/internal/remote"
)

// Search runs a name search in Workdir.
type Search struct {
	Workdir  *remote.Path
	Filter   filter.Filter
	Feature  feature.Search
	Listener feature.ListProgressListener
}

func (w *Search) Activity() string { return "Searching in " + label(w.Workdir) }

func (w *Search) Run(ctx context.Context) (remote.List, error) {
	if w.Feature == nil {
		return nil, fmt.Errorf("search: %w", errdefs.ErrUnsupported)
	}
	if err := Checkpoint(ctx); err != nil {
		return nil, err
	}
	f := w.Filter
	if f == nil {
		f = filter.All
	}
	listener := w.Listener
	if listener == nil {
		listener = feature.DisabledListProgressListener{}
	}
	return w.Feature.Search(ctx, w.Workdir, f, listener)
}
