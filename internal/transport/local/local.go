// Package local serves a directory tree on this machine. Remote paths are
// resolved beneath a root directory; writes land in a hidden temp file and
// are renamed into place on commit.
package local

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/bamsammich/ferry/internal/checksum"
	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/filter"
	"github.com/bamsammich/ferry/internal/remote"
	"github.com/bamsammich/ferry/internal/transfer"
	"github.com/bamsammich/ferry/internal/transport"
)

// Backend is a local directory tree.
type Backend struct {
	root   string
	logger *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// New serves root.
func New(root string, opts ...Option) *Backend {
	b := &Backend{root: filepath.Clean(root), logger: slog.Default()}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Open checks that the root is a directory.
func (b *Backend) Open(context.Context) error {
	info, err := os.Stat(b.root)
	if err != nil {
		return transport.MapError("open", b.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("open %s: not a directory", b.root)
	}
	return nil
}

func (*Backend) Close() error { return nil }

// Features registers what a POSIX filesystem supports. There are no regions
// and no accelerated endpoints.
func (b *Backend) Features() []feature.Entry {
	return []feature.Entry{
		feature.Provide[feature.Read](feature.ReadKey, b),
		feature.Provide[feature.Write](feature.WriteKey, b),
		feature.Provide[feature.List](feature.ListKey, b),
		feature.Provide[feature.Delete](feature.DeleteKey, b),
		feature.Provide[feature.Search](feature.SearchKey, b),
		feature.Provide[feature.AclPermission](feature.AclPermissionKey, b),
		feature.Provide[feature.Directory](feature.DirectoryKey, b),
		feature.Provide[feature.Stat](feature.StatKey, b),
	}
}

// Root returns the served directory.
func (b *Backend) Root() string { return b.root }

// abs maps a remote path onto the filesystem. Remote paths are already
// clean and absolute, so the result never leaves root.
func (b *Backend) abs(p *remote.Path) string {
	return filepath.Join(b.root, filepath.FromSlash(p.Abs()))
}

func (b *Backend) Read(_ context.Context, p *remote.Path, status *transfer.Status) (io.ReadCloser, error) {
	f, err := os.Open(b.abs(p))
	if err != nil {
		return nil, transport.MapError("read", p.Abs(), err)
	}
	if status.Offset > 0 {
		if _, err := f.Seek(status.Offset, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("seek %s: %w", p, err)
		}
	}
	return f, nil
}

// Write stages content in a temp file beside the target.
func (b *Backend) Write(_ context.Context, p *remote.Path, status *transfer.Status) (transfer.StatusWriter, error) {
	final := b.abs(p)
	tmp := transport.TempName(final)
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, transport.MapError("write", p.Abs(), err)
	}
	if status.HasLength() && !status.Append {
		preallocate(f, status.Length)
	}
	sink := &tempSink{f: f, tmp: tmp, final: final, status: status.Clone(), logger: b.logger}
	if status.Append {
		if err := sink.prefill(status.Offset); err != nil {
			_ = sink.Abort()
			return nil, fmt.Errorf("append %s: %w", p, err)
		}
	}
	return transfer.Verify(p.Abs(), status, sink).WithLogger(b.logger), nil
}

// tempSink writes to tmp. Close syncs and digests what reached the disk;
// Commit renames tmp over final.
type tempSink struct {
	f      *os.File
	tmp    string
	final  string
	status *transfer.Status
	logger *slog.Logger
	closed bool
	reply  transfer.Reply
}

// prefill copies the first n bytes of the existing target.
func (s *tempSink) prefill(n int64) error {
	src, err := os.Open(s.final)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.CopyN(s.f, src, n)
	return err
}

func (s *tempSink) Write(p []byte) (int, error) { return s.f.Write(p) }

func (s *tempSink) Close() error {
	if err := s.f.Sync(); err != nil {
		return err
	}
	s.closed = true
	if err := s.f.Close(); err != nil {
		return err
	}
	info, err := os.Stat(s.tmp)
	if err != nil {
		return err
	}
	s.reply = transfer.Reply{Size: info.Size()}
	// An appended file's digest covers bytes this write never sent.
	if !s.status.Append {
		sum, err := hashFile(s.tmp)
		if err != nil {
			return err
		}
		s.reply.Checksum = sum
	}
	return nil
}

func (s *tempSink) Commit() error {
	if err := os.Rename(s.tmp, s.final); err != nil {
		_ = os.Remove(s.tmp)
		return err
	}
	if ts := s.status.Timestamp; !ts.IsZero() {
		if err := setTimes(s.final, ts); err != nil {
			s.logger.Warn("set modification time", "path", s.final, "error", err)
		}
	}
	return nil
}

func (s *tempSink) Abort() error {
	if !s.closed {
		s.closed = true
		_ = s.f.Close()
	}
	if err := os.Remove(s.tmp); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *tempSink) Reply() transfer.Reply              { return s.reply }
func (s *tempSink) NativeChecksum() checksum.Algorithm { return checksum.BLAKE3 }

func hashFile(path string) (checksum.Checksum, error) {
	f, err := os.Open(path)
	if err != nil {
		return checksum.None, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return checksum.None, fmt.Errorf("hash %s: %w", path, err)
	}
	return checksum.New(checksum.BLAKE3, hex.EncodeToString(h.Sum(nil))), nil
}

func (b *Backend) List(_ context.Context, dir *remote.Path, listener feature.ListProgressListener) (remote.List, error) {
	out, err := b.children(dir, filter.All, "list")
	if err != nil {
		return nil, err
	}
	if listener != nil && len(out) > 0 {
		listener.Chunk(dir, out)
	}
	return out, nil
}

// Search matches the direct children of workdir only.
func (b *Backend) Search(_ context.Context, workdir *remote.Path, f filter.Filter, listener feature.ListProgressListener) (remote.List, error) {
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
	entries, err := os.ReadDir(b.abs(dir))
	if err != nil {
		return nil, transport.MapError(op, dir.Abs(), err)
	}
	out := make(remote.List, 0, len(entries))
	for _, d := range entries {
		if transport.IsTempName(d.Name()) {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue // removed since ReadDir
		}
		p := remote.New(dir, d.Name(), entryType(info)).WithAttributes(attributes(info))
		if f.Accept(p) {
			out = append(out, p)
		}
	}
	out.Sort()
	return out, nil
}

func entryType(info fs.FileInfo) remote.Type {
	switch {
	case info.IsDir():
		return remote.Directory
	case info.Mode()&fs.ModeSymlink != 0:
		return remote.File | remote.Symlink
	default:
		return remote.File
	}
}

func attributes(info fs.FileInfo) remote.Attributes {
	a := remote.Attributes{
		Permission: info.Mode().Perm(),
		Acl:        remote.AclFromMode(info.Mode()),
		Modified:   info.ModTime(),
	}
	if !info.IsDir() {
		a.Size = info.Size()
	}
	return a
}

// Delete removes files and empty directories in the order given.
func (b *Backend) Delete(_ context.Context, files []*remote.Path, _ feature.LoginCallback, cb feature.DeleteCallback) error {
	for _, p := range files {
		if p.IsRoot() {
			return fmt.Errorf("delete %s: %w", p, errdefs.ErrAccessDenied)
		}
		if err := os.Remove(b.abs(p)); err != nil {
			return transport.MapError("delete", p.Abs(), err)
		}
		if cb != nil {
			cb.Delete(p)
		}
	}
	return nil
}

// ReadAcl reports the permission bits as owner, group and others grants.
func (b *Backend) ReadAcl(_ context.Context, p *remote.Path) (remote.Acl, error) {
	info, err := os.Lstat(b.abs(p))
	if err != nil {
		return remote.Acl{}, transport.MapError("read acl", p.Abs(), err)
	}
	return remote.AclFromMode(info.Mode()), nil
}

// WriteAcl sets the permission bits from acl. Grants for other users have
// no POSIX equivalent and are dropped.
func (b *Backend) WriteAcl(_ context.Context, p *remote.Path, acl remote.Acl, recursive bool) error {
	mode := acl.Mode()
	root := b.abs(p)
	if !recursive {
		return transport.MapError("write acl", p.Abs(), os.Chmod(root, mode))
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		return os.Chmod(path, mode)
	})
	return transport.MapError("write acl", p.Abs(), err)
}

// Mkdir creates p. An existing directory is not an error.
func (b *Backend) Mkdir(_ context.Context, p *remote.Path, _ *transfer.Status) (*remote.Path, error) {
	path := b.abs(p)
	if err := os.Mkdir(path, 0o755); err != nil && !os.IsExist(err) {
		return nil, transport.MapError("mkdir", p.Abs(), err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, transport.MapError("mkdir", p.Abs(), err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mkdir %s: file exists", p)
	}
	return remote.New(p.Parent(), p.Name(), remote.Directory).WithAttributes(attributes(info)), nil
}

func (b *Backend) Stat(_ context.Context, p *remote.Path) (remote.Attributes, error) {
	info, err := os.Lstat(b.abs(p))
	if err != nil {
		return remote.Attributes{}, transport.MapError("stat", p.Abs(), err)
	}
	return attributes(info), nil
}
