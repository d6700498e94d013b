package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/remote"
)

// WriteAcl applies Acl to Files. A path whose last-known ACL already equals
// Acl is skipped unless Acl is marked Modified. With Recursive set, every
// descendant of a directory is visited under the same rule; the feature
// itself is never asked to recurse.
type WriteAcl struct {
	Files     []*remote.Path
	Acl       remote.Acl
	Recursive bool
	Feature   feature.AclPermission
	List      feature.List
	Logger    *slog.Logger
	Events    chan<- event.Event
}

func (w *WriteAcl) Activity() string {
	return fmt.Sprintf("Changing permission of %s to %s", describe(w.Files), w.Acl)
}

// Run returns the applied Acl.
func (w *WriteAcl) Run(ctx context.Context) (remote.Acl, error) {
	if w.Feature == nil {
		return w.Acl, fmt.Errorf("write acl: %w", errdefs.ErrUnsupported)
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, f := range w.Files {
		err := walk(ctx, w.List, f, w.Recursive, func(p *remote.Path) error {
			return w.write(ctx, logger, p)
		})
		if err != nil {
			return w.Acl, err
		}
	}
	return w.Acl, nil
}

func (w *WriteAcl) write(ctx context.Context, logger *slog.Logger, p *remote.Path) error {
	if !w.Acl.Modified && w.Acl.Equal(p.Attributes().Acl) {
		logger.Debug("skip writing equal acl", "path", p.Abs())
		event.Emit(w.Events, event.Event{Type: event.FileSkipped, Path: p.Abs()})
		return nil
	}
	if err := w.Feature.WriteAcl(ctx, p, w.Acl, false); err != nil {
		event.Emit(w.Events, event.Event{Type: event.FileFailed, Path: p.Abs(), Error: err})
		return fmt.Errorf("write acl %s: %w", p, err)
	}
	applied := w.Acl.Clone()
	applied.Modified = false
	p.UpdateAttributes(func(a *remote.Attributes) { a.Acl = applied })
	event.Emit(w.Events, event.Event{Type: event.FileCompleted, Path: p.Abs()})
	return nil
}
