// Package feature defines the capability contracts a backend may implement
// and the per-session registry that dispatches to them.
package feature

import (
	"context"
	"io"

	"github.com/bamsammich/ferry/internal/filter"
	"github.com/bamsammich/ferry/internal/host"
	"github.com/bamsammich/ferry/internal/remote"
	"github.com/bamsammich/ferry/internal/transfer"
)

// Read opens object content. status.Offset resumes mid-object.
type Read interface {
	Read(ctx context.Context, p *remote.Path, status *transfer.Status) (io.ReadCloser, error)
}

// Write opens a sink whose Close confirms the write with the backend.
// Implementations return a sink wrapped by transfer.Verify.
type Write interface {
	Write(ctx context.Context, p *remote.Path, status *transfer.Status) (transfer.StatusWriter, error)
}

// List enumerates the children of dir in lexicographic order. Missing
// directories fail with errdefs.ErrNotFound.
type List interface {
	List(ctx context.Context, dir *remote.Path, listener ListProgressListener) (remote.List, error)
}

// Delete removes files. Callers pass descendants before their parents.
type Delete interface {
	Delete(ctx context.Context, files []*remote.Path, prompt LoginCallback, callback DeleteCallback) error
}

// Search returns the direct children of workdir accepted by f. It does not
// descend and fails with errdefs.ErrNotFound when workdir is missing.
type Search interface {
	Search(ctx context.Context, workdir *remote.Path, f filter.Filter, listener ListProgressListener) (remote.List, error)
}

// AclPermission reads and writes access control lists.
type AclPermission interface {
	ReadAcl(ctx context.Context, p *remote.Path) (remote.Acl, error)
	WriteAcl(ctx context.Context, p *remote.Path, acl remote.Acl, recursive bool) error
}

// Location reports where data is stored.
type Location interface {
	Locations(ctx context.Context) ([]Region, error)
	Location(ctx context.Context, p *remote.Path) (Region, error)
}

// TransferAcceleration toggles and opens accelerated endpoints.
type TransferAcceleration interface {
	Status(ctx context.Context, p *remote.Path) (bool, error)
	SetStatus(ctx context.Context, p *remote.Path, enabled bool) error
	// Prompt decides whether to use acceleration for one transfer.
	Prompt(ctx context.Context, bookmark host.Host, p *remote.Path, status *transfer.Status, cb ConnectionCallback) (bool, error)
	// Open returns the bookmark of the accelerated endpoint for p.
	Open(ctx context.Context, bookmark host.Host, p *remote.Path) (host.Host, error)
}

// Directory creates folders (buckets at the root of object stores).
type Directory interface {
	Mkdir(ctx context.Context, p *remote.Path, status *transfer.Status) (*remote.Path, error)
}

// Stat reads the attributes of one entry.
type Stat interface {
	Stat(ctx context.Context, p *remote.Path) (remote.Attributes, error)
}
