package worker

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/remote"
)

// Delete removes Files and everything beneath them. The feature receives
// all files first, then directories deepest-first, so no directory is
// deleted before its contents.
type Delete struct {
	Files    []*remote.Path
	Feature  feature.Delete
	List     feature.List
	Prompt   feature.LoginCallback
	Callback feature.DeleteCallback
	Events   chan<- event.Event
}

func (w *Delete) Activity() string { return "Deleting " + describe(w.Files) }

// Run returns the deleted paths in deletion order.
func (w *Delete) Run(ctx context.Context) (remote.List, error) {
	if w.Feature == nil {
		return nil, fmt.Errorf("delete: %w", errdefs.ErrUnsupported)
	}
	var files, dirs []*remote.Path
	seen := make(map[string]bool)
	for _, f := range w.Files {
		err := walk(ctx, w.List, f, true, func(p *remote.Path) error {
			if seen[p.Abs()] {
				return nil
			}
			seen[p.Abs()] = true
			if p.IsDirectory() {
				dirs = append(dirs, p)
			} else {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	// A child's path sorts after its parent's; reversing puts it first.
	slices.SortStableFunc(dirs, func(a, b *remote.Path) int {
		return strings.Compare(b.Abs(), a.Abs())
	})

	if err := Checkpoint(ctx); err != nil {
		return nil, err
	}
	prompt := w.Prompt
	if prompt == nil {
		prompt = feature.DisabledLoginCallback{}
	}
	var deleted remote.List
	cb := feature.DeleteFunc(func(p *remote.Path) {
		deleted = append(deleted, p)
		event.Emit(w.Events, event.Event{Type: event.DeleteFile, Path: p.Abs()})
		if w.Callback != nil {
			w.Callback.Delete(p)
		}
	})
	if err := w.Feature.Delete(ctx, append(files, dirs...), prompt, cb); err != nil {
		return deleted, err
	}
	return deleted, nil
}
