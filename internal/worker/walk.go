package worker

import (
	"context"
	"fmt"

	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/remote"
)

// walk visits p and, when descend is set and p is a directory, every
// descendant depth-first in listing order. Parents are visited before their
// children. A checkpoint precedes every visit and every listing.
func walk(ctx context.Context, list feature.List, p *remote.Path, descend bool, visit func(*remote.Path) error) error {
	if err := Checkpoint(ctx); err != nil {
		return err
	}
	if err := visit(p); err != nil {
		return err
	}
	if !descend || !p.IsDirectory() {
		return nil
	}
	if list == nil {
		return fmt.Errorf("list %s: %w", p, errdefs.ErrUnsupported)
	}
	if err := Checkpoint(ctx); err != nil {
		return err
	}
	children, err := list.List(ctx, p, feature.DisabledListProgressListener{})
	if err != nil {
		return fmt.Errorf("list %s: %w", p, err)
	}
	for _, c := range children {
		if err := walk(ctx, list, c, true, visit); err != nil {
			return err
		}
	}
	return nil
}
