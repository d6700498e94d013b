// Package transport holds what the protocol backends share: the Backend
// contract a session connects through and helpers for staging writes and
// mapping native errors.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/google/uuid"

	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/feature"
)

// Backend is one protocol implementation bound to a host.
type Backend interface {
	// Open connects. It is called once before Features.
	Open(ctx context.Context) error
	// Close releases the connection.
	Close() error
	// Features lists the capabilities the backend implements natively.
	Features() []feature.Entry
}

// TempName returns a hidden sibling name for staging writes to name. The
// suffix keeps concurrent writers of the same object apart.
func TempName(name string) string {
	dir, base := path.Split(name)
	return path.Join(dir, fmt.Sprintf(".%s.%s.ferry-tmp", base, uuid.New().String()[:8]))
}

// IsTempName reports whether name was produced by TempName.
func IsTempName(name string) bool {
	base := path.Base(name)
	return len(base) > len(".ferry-tmp") && base[0] == '.' && path.Ext(base) == ".ferry-tmp"
}

// MapError converts filesystem errors to the shared sentinels, keeping the
// original in the chain.
func MapError(op, p string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return &errdefs.BackgroundError{Op: op, Path: p, Err: fmt.Errorf("%w: %w", errdefs.ErrNotFound, err)}
	case errors.Is(err, fs.ErrPermission):
		return &errdefs.BackgroundError{Op: op, Path: p, Err: fmt.Errorf("%w: %w", errdefs.ErrAccessDenied, err)}
	default:
		return errdefs.Background(op, p, err)
	}
}
