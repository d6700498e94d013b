// Package memory is an in-process backend holding a tree of directories and
// byte slices. It implements every capability and stands in for remote
// storage in tests.
package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/bamsammich/ferry/internal/checksum"
	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/filter"
	"github.com/bamsammich/ferry/internal/host"
	"github.com/bamsammich/ferry/internal/remote"
	"github.com/bamsammich/ferry/internal/transfer"
	"github.com/bamsammich/ferry/internal/transport"
)

type node struct {
	typ      remote.Type
	data     []byte
	attrs    remote.Attributes
	children map[string]*node
}

func newDir(typ remote.Type) *node {
	return &node{typ: typ, children: make(map[string]*node), attrs: remote.Attributes{Modified: time.Now()}}
}

// Backend is the in-memory store. The zero value is not usable; call New.
type Backend struct {
	logger *slog.Logger

	mu         sync.RWMutex
	root       *node
	regions    []feature.Region
	accelerate map[string]bool
	corrupt    func(path string, data []byte) []byte
	calls      map[string]int
}

// Option configures a Backend.
type Option func(*Backend)

// WithRegions sets the regions reported by Locations. The first is the
// default for new volumes.
func WithRegions(regions ...feature.Region) Option {
	return func(b *Backend) { b.regions = regions }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// New returns an empty store.
func New(opts ...Option) *Backend {
	b := &Backend{
		logger:     slog.Default(),
		root:       newDir(remote.Directory | remote.Volume),
		accelerate: make(map[string]bool),
		calls:      make(map[string]int),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Backend) Open(context.Context) error { return nil }
func (b *Backend) Close() error               { return nil }

// Features registers every capability.
func (b *Backend) Features() []feature.Entry {
	return []feature.Entry{
		feature.Provide[feature.Read](feature.ReadKey, b),
		feature.Provide[feature.Write](feature.WriteKey, b),
		feature.Provide[feature.List](feature.ListKey, b),
		feature.Provide[feature.Delete](feature.DeleteKey, b),
		feature.Provide[feature.Search](feature.SearchKey, b),
		feature.Provide[feature.AclPermission](feature.AclPermissionKey, b),
		feature.Provide[feature.Location](feature.LocationKey, b),
		feature.Provide[feature.TransferAcceleration](feature.TransferAccelerationKey, &acceleration{b}),
		feature.Provide[feature.Directory](feature.DirectoryKey, b),
		feature.Provide[feature.Stat](feature.StatKey, b),
	}
}

// Corrupt installs a hook that rewrites content as it is stored, so the
// reported digest no longer matches what was sent. nil removes it.
func (b *Backend) Corrupt(fn func(path string, data []byte) []byte) {
	b.mu.Lock()
	b.corrupt = fn
	b.mu.Unlock()
}

// Calls returns how often op ran ("read", "write", "writeacl", ...).
func (b *Backend) Calls(op string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.calls[op]
}

// Put stores data at p, creating missing parent directories.
func (b *Backend) Put(p string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	path := remote.Parse(p, remote.File)
	dir := b.root
	for _, seg := range path.Parent().Segments() {
		next, ok := dir.children[seg]
		if !ok {
			next = newDir(remote.Directory)
			dir.children[seg] = next
		}
		dir = next
	}
	dir.children[path.Name()] = &node{
		typ:   remote.File,
		data:  bytes.Clone(data),
		attrs: remote.Attributes{Size: int64(len(data)), Modified: time.Now()},
	}
}

// Get returns the stored bytes at p.
func (b *Backend) Get(p string) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := b.lookup(remote.Parse(p, remote.File))
	if n == nil || n.typ&remote.File == 0 {
		return nil, false
	}
	return bytes.Clone(n.data), true
}

// Names returns the stored child names of dir, sorted.
func (b *Backend) Names(dir string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := b.lookup(remote.Parse(dir, remote.Directory))
	if n == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(n.children))
}

// caller holds mu.
func (b *Backend) lookup(p *remote.Path) *node {
	n := b.root
	for _, seg := range p.Segments() {
		if n.children == nil {
			return nil
		}
		next, ok := n.children[seg]
		if !ok {
			return nil
		}
		n = next
	}
	return n
}

// caller holds mu for writing.
func (b *Backend) count(op string) { b.calls[op]++ }

func (b *Backend) record(op string) {
	b.mu.Lock()
	b.count(op)
	b.mu.Unlock()
}

func (b *Backend) Read(_ context.Context, p *remote.Path, status *transfer.Status) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("read")

	n := b.lookup(p)
	if n == nil || n.typ&remote.File == 0 {
		return nil, errdefs.NotFound("read", p.Abs())
	}
	if status.Offset > int64(len(n.data)) {
		return nil, fmt.Errorf("read %s: offset %d beyond %d bytes", p, status.Offset, len(n.data))
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(n.data[status.Offset:]))), nil
}

// Write stages content in a buffer that becomes visible on Commit.
func (b *Backend) Write(_ context.Context, p *remote.Path, status *transfer.Status) (transfer.StatusWriter, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("write")

	parent := b.lookup(p.Parent())
	if parent == nil || parent.children == nil {
		return nil, errdefs.NotFound("write", p.Parent().Abs())
	}
	sink := &stagingSink{b: b, path: p, status: status.Clone()}
	if status.Append {
		if n, ok := parent.children[p.Name()]; ok && n.typ&remote.File != 0 {
			sink.buf.Write(n.data[:min(status.Offset, int64(len(n.data)))])
		}
	}
	return transfer.Verify(p.Abs(), status, sink).WithLogger(b.logger), nil
}

type stagingSink struct {
	b      *Backend
	path   *remote.Path
	status *transfer.Status
	buf    bytes.Buffer
	staged []byte
	reply  transfer.Reply
}

func (s *stagingSink) Write(p []byte) (int, error) { return s.buf.Write(p) }

// Close stages the content and reports the digest of what was stored.
func (s *stagingSink) Close() error {
	data := s.buf.Bytes()
	s.b.mu.RLock()
	corrupt := s.b.corrupt
	s.b.mu.RUnlock()
	if corrupt != nil {
		data = corrupt(s.path.Abs(), bytes.Clone(data))
	}
	s.staged = data
	s.reply = transfer.Reply{Size: int64(len(data))}
	// An appended object's digest covers bytes this write never sent.
	if !s.status.Append {
		sum := sha256.Sum256(data)
		s.reply.Checksum = checksum.New(checksum.SHA256, hex.EncodeToString(sum[:]))
	}
	return nil
}

func (s *stagingSink) Commit() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	parent := s.b.lookup(s.path.Parent())
	if parent == nil || parent.children == nil {
		return errdefs.NotFound("commit", s.path.Parent().Abs())
	}
	n := &node{typ: remote.File, data: s.staged}
	if old, ok := parent.children[s.path.Name()]; ok {
		n.attrs = old.attrs
	}
	n.attrs.Size = int64(len(s.staged))
	n.attrs.Checksum = s.reply.Checksum
	n.attrs.Modified = time.Now()
	if !s.status.Timestamp.IsZero() {
		n.attrs.Modified = s.status.Timestamp
	}
	n.attrs.MimeType = s.status.MimeType
	n.attrs.StorageClass = s.status.StorageClass
	parent.children[s.path.Name()] = n
	return nil
}

func (s *stagingSink) Abort() error {
	s.buf.Reset()
	s.staged = nil
	return nil
}

func (s *stagingSink) Reply() transfer.Reply              { return s.reply }
func (s *stagingSink) NativeChecksum() checksum.Algorithm { return checksum.SHA256 }

func (b *Backend) List(_ context.Context, dir *remote.Path, listener feature.ListProgressListener) (remote.List, error) {
	b.record("list")
	out, err := b.children(dir, filter.All, "list")
	if err != nil {
		return nil, err
	}
	if listener != nil && len(out) > 0 {
		listener.Chunk(dir, out)
	}
	return out, nil
}

func (b *Backend) Search(_ context.Context, workdir *remote.Path, f filter.Filter, listener feature.ListProgressListener) (remote.List, error) {
	b.record("search")
	out, err := b.children(workdir, f, "search")
	if err != nil {
		return nil, err
	}
	if listener != nil && len(out) > 0 {
		listener.Chunk(workdir, out)
	}
	return out, nil
}

func (b *Backend) children(dir *remote.Path, f filter.Filter, op string) (remote.List, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := b.lookup(dir)
	if n == nil || n.children == nil {
		return nil, errdefs.NotFound(op, dir.Abs())
	}
	out := make(remote.List, 0, len(n.children))
	for name, c := range n.children {
		attrs := c.attrs
		if c.typ&remote.File != 0 {
			attrs.Size = int64(len(c.data))
		}
		p := remote.New(dir, name, c.typ).WithAttributes(attrs)
		if f.Accept(p) {
			out = append(out, p)
		}
	}
	out.Sort()
	return out, nil
}

// Delete removes files and empty directories in the order given. The
// callback runs after the store is unlocked.
func (b *Backend) Delete(_ context.Context, files []*remote.Path, _ feature.LoginCallback, cb feature.DeleteCallback) error {
	deleted, err := b.remove(files)
	if cb != nil {
		for _, p := range deleted {
			cb.Delete(p)
		}
	}
	return err
}

func (b *Backend) remove(files []*remote.Path) ([]*remote.Path, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("delete")

	deleted := make([]*remote.Path, 0, len(files))
	for _, p := range files {
		if p.IsRoot() {
			return deleted, fmt.Errorf("delete %s: %w", p, errdefs.ErrAccessDenied)
		}
		parent := b.lookup(p.Parent())
		if parent == nil || parent.children == nil {
			return deleted, errdefs.NotFound("delete", p.Abs())
		}
		n, ok := parent.children[p.Name()]
		if !ok {
			return deleted, errdefs.NotFound("delete", p.Abs())
		}
		if len(n.children) > 0 {
			return deleted, fmt.Errorf("delete %s: directory not empty", p)
		}
		delete(parent.children, p.Name())
		deleted = append(deleted, p)
	}
	return deleted, nil
}

func (b *Backend) ReadAcl(_ context.Context, p *remote.Path) (remote.Acl, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("readacl")

	n := b.lookup(p)
	if n == nil {
		return remote.Acl{}, errdefs.NotFound("read acl", p.Abs())
	}
	return n.attrs.Acl.Clone(), nil
}

func (b *Backend) WriteAcl(_ context.Context, p *remote.Path, acl remote.Acl, recursive bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("writeacl")

	n := b.lookup(p)
	if n == nil {
		return errdefs.NotFound("write acl", p.Abs())
	}
	stored := acl.Clone()
	stored.Modified = false
	var apply func(*node)
	apply = func(n *node) {
		n.attrs.Acl = stored.Clone()
		if recursive {
			for _, c := range n.children {
				apply(c)
			}
		}
	}
	apply(n)
	return nil
}

func (b *Backend) Locations(context.Context) ([]feature.Region, error) {
	b.record("locations")
	return slices.Clone(b.regions), nil
}

// Location reports the region of p's volume, defaulting to the first
// configured region.
func (b *Backend) Location(_ context.Context, p *remote.Path) (feature.Region, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("location")

	vol := p.Volume()
	if vol == nil {
		return feature.UnknownRegion, nil
	}
	n := b.lookup(vol)
	if n == nil {
		return feature.UnknownRegion, errdefs.NotFound("location", vol.Abs())
	}
	if n.attrs.Region != "" {
		return feature.Region{ID: n.attrs.Region}, nil
	}
	if len(b.regions) > 0 {
		return b.regions[0], nil
	}
	return feature.UnknownRegion, nil
}

// Mkdir creates p. Top-level directories are volumes. Creating an existing
// directory succeeds.
func (b *Backend) Mkdir(_ context.Context, p *remote.Path, status *transfer.Status) (*remote.Path, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("mkdir")

	if p.IsRoot() {
		return p, nil
	}
	parent := b.lookup(p.Parent())
	if parent == nil || parent.children == nil {
		return nil, errdefs.NotFound("mkdir", p.Parent().Abs())
	}
	typ := remote.Directory
	if p.Parent().IsRoot() {
		typ |= remote.Volume
	}
	n, ok := parent.children[p.Name()]
	if ok && n.children == nil {
		return nil, fmt.Errorf("mkdir %s: file exists", p)
	}
	if !ok {
		n = newDir(typ)
		if typ&remote.Volume != 0 && len(b.regions) > 0 {
			n.attrs.Region = b.regions[0].ID
		}
		if status != nil && status.StorageClass != "" {
			n.attrs.StorageClass = status.StorageClass
		}
		parent.children[p.Name()] = n
	}
	return remote.New(p.Parent(), p.Name(), n.typ).WithAttributes(n.attrs), nil
}

func (b *Backend) Stat(_ context.Context, p *remote.Path) (remote.Attributes, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("stat")

	n := b.lookup(p)
	if n == nil {
		return remote.Attributes{}, errdefs.NotFound("stat", p.Abs())
	}
	attrs := n.attrs
	attrs.Acl = attrs.Acl.Clone()
	if n.typ&remote.File != 0 {
		attrs.Size = int64(len(n.data))
	}
	return attrs, nil
}

// acceleration keeps a per-volume flag. Its Open would collide with
// Backend.Open, hence the separate type.
type acceleration struct{ b *Backend }

func (a *acceleration) Status(_ context.Context, p *remote.Path) (bool, error) {
	vol := p.Volume()
	if vol == nil {
		return false, fmt.Errorf("acceleration status: %w: no volume", errdefs.ErrUnsupported)
	}
	a.b.mu.Lock()
	defer a.b.mu.Unlock()
	a.b.count("accelerate")
	return a.b.accelerate[vol.Name()], nil
}

func (a *acceleration) SetStatus(_ context.Context, p *remote.Path, enabled bool) error {
	vol := p.Volume()
	if vol == nil {
		return fmt.Errorf("acceleration status: %w: no volume", errdefs.ErrUnsupported)
	}
	a.b.mu.Lock()
	defer a.b.mu.Unlock()
	a.b.count("accelerate")
	a.b.accelerate[vol.Name()] = enabled
	return nil
}

// Prompt uses acceleration whenever it is enabled for the volume.
func (a *acceleration) Prompt(ctx context.Context, _ host.Host, p *remote.Path, _ *transfer.Status, _ feature.ConnectionCallback) (bool, error) {
	return a.Status(ctx, p)
}

func (a *acceleration) Open(_ context.Context, bookmark host.Host, p *remote.Path) (host.Host, error) {
	vol := p.Volume()
	if vol == nil {
		return host.Host{}, fmt.Errorf("accelerate: %w: no volume", errdefs.ErrUnsupported)
	}
	accelerated := bookmark
	accelerated.Hostname = vol.Name() + ".accelerate." + bookmark.Hostname
	return accelerated, nil
}

var (
	_ transport.Backend            = (*Backend)(nil)
	_ transfer.Committer           = (*stagingSink)(nil)
	_ feature.TransferAcceleration = (*acceleration)(nil)
)
