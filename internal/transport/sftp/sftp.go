// Package sftp serves a remote tree over SSH. Writes are staged in a hidden
// sibling file and renamed into place once verified.
package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/filter"
	"github.com/bamsammich/ferry/internal/host"
	"github.com/bamsammich/ferry/internal/remote"
	"github.com/bamsammich/ferry/internal/transfer"
	"github.com/bamsammich/ferry/internal/transport"
)

const (
	// DefaultTimeout bounds the TCP dial and SSH handshake.
	DefaultTimeout = 30 * time.Second

	posixRename = "posix-rename@openssh.com"
)

// Backend is an SFTP connection to one host.
type Backend struct {
	host    host.Host
	root    string
	timeout time.Duration
	logger  *slog.Logger

	ssh    *ssh.Client
	client *sftp.Client
}

// Option configures a Backend.
type Option func(*Backend)

func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// New returns an unconnected backend for h. Remote paths resolve beneath
// h.DefaultPath, or the server's root when it is empty.
func New(h host.Host, opts ...Option) *Backend {
	root := h.DefaultPath
	if root == "" {
		root = "/"
	}
	b := &Backend{host: h, root: path.Clean(root), timeout: DefaultTimeout, logger: slog.Default()}
	for _, o := range opts {
		o(b)
	}
	return b
}

// SetCredentials replaces the credentials used by the next Open.
func (b *Backend) SetCredentials(c host.Credentials) { b.host.Credentials = c }

// Open dials the host and starts the SFTP subsystem.
func (b *Backend) Open(ctx context.Context) error {
	sc, err := dial(ctx, b.host, b.timeout)
	if err != nil {
		return err
	}
	client, err := sftp.NewClient(sc)
	if err != nil {
		sc.Close()
		return fmt.Errorf("sftp session %s: %w", b.host.Addr(), err)
	}
	b.ssh, b.client = sc, client
	b.logger.Debug("sftp connected", "addr", b.host.Addr(), "root", b.root)
	return nil
}

func (b *Backend) Close() error {
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	if sshErr := b.ssh.Close(); err == nil {
		err = sshErr
	}
	b.client, b.ssh = nil, nil
	return err
}

// Features registers what an SFTP server supports. Permissions map onto
// POSIX mode bits; there are no regions.
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

func (b *Backend) abs(p *remote.Path) string {
	return path.Join(b.root, p.Abs())
}

func (b *Backend) Read(_ context.Context, p *remote.Path, status *transfer.Status) (io.ReadCloser, error) {
	f, err := b.client.Open(b.abs(p))
	if err != nil {
		return nil, mapError("read", p.Abs(), err)
	}
	if status.Offset > 0 {
		if _, err := f.Seek(status.Offset, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("seek %s: %w", p, err)
		}
	}
	return f, nil
}

// Write stages content in a temp file beside the target. Appends write to
// the target directly since the server cannot copy the existing prefix.
func (b *Backend) Write(_ context.Context, p *remote.Path, status *transfer.Status) (transfer.StatusWriter, error) {
	final := b.abs(p)
	if status.Append {
		f, err := b.client.OpenFile(final, os.O_WRONLY)
		if err != nil {
			return nil, mapError("append", p.Abs(), err)
		}
		if _, err := f.Seek(status.Offset, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("seek %s: %w", p, err)
		}
		return transfer.Verify(p.Abs(), status, &sink{client: b.client, f: f, final: final, status: status.Clone(), logger: b.logger}).
			WithLogger(b.logger), nil
	}

	tmp := transport.TempName(final)
	f, err := b.client.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL)
	if err != nil {
		return nil, mapError("write", p.Abs(), err)
	}
	s := &sink{client: b.client, f: f, tmp: tmp, final: final, status: status.Clone(), logger: b.logger}
	return transfer.Verify(p.Abs(), status, s).WithLogger(b.logger), nil
}

// sink writes to a remote file. With tmp set, Commit renames it over final.
type sink struct {
	client *sftp.Client
	f      *sftp.File
	tmp    string
	final  string
	status *transfer.Status
	logger *slog.Logger
	closed bool
	reply  transfer.Reply
}

func (s *sink) Write(p []byte) (int, error) { return s.f.Write(p) }

func (s *sink) Close() error {
	s.closed = true
	if err := s.f.Close(); err != nil {
		return err
	}
	target := s.final
	if s.tmp != "" {
		target = s.tmp
	}
	info, err := s.client.Stat(target)
	if err != nil {
		return err
	}
	// Only the size is known server side; the digest comes from the stream.
	s.reply = transfer.Reply{Size: info.Size()}
	return nil
}

func (s *sink) Commit() error {
	if s.tmp != "" {
		if err := rename(s.client, s.tmp, s.final); err != nil {
			_ = s.client.Remove(s.tmp)
			return err
		}
	}
	if ts := s.status.Timestamp; !ts.IsZero() {
		if err := s.client.Chtimes(s.final, ts, ts); err != nil {
			s.logger.Warn("set modification time", "path", s.final, "error", err)
		}
	}
	return nil
}

func (s *sink) Abort() error {
	if !s.closed {
		s.closed = true
		_ = s.f.Close()
	}
	if s.tmp == "" {
		return nil
	}
	if err := s.client.Remove(s.tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *sink) Reply() transfer.Reply { return s.reply }

// rename replaces dst atomically when the server offers the OpenSSH
// extension, and removes dst first otherwise.
func rename(c *sftp.Client, src, dst string) error {
	if _, ok := c.HasExtension(posixRename); ok {
		return c.PosixRename(src, dst)
	}
	_ = c.Remove(dst)
	return c.Rename(src, dst)
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
	infos, err := b.client.ReadDir(b.abs(dir))
	if err != nil {
		return nil, mapError(op, dir.Abs(), err)
	}
	out := make(remote.List, 0, len(infos))
	for _, info := range infos {
		if transport.IsTempName(info.Name()) {
			continue
		}
		p := remote.New(dir, info.Name(), entryType(info)).WithAttributes(attributes(info))
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
		var err error
		if p.IsDirectory() {
			err = b.client.RemoveDirectory(b.abs(p))
		} else {
			err = b.client.Remove(b.abs(p))
		}
		if err != nil {
			return mapError("delete", p.Abs(), err)
		}
		if cb != nil {
			cb.Delete(p)
		}
	}
	return nil
}

func (b *Backend) ReadAcl(_ context.Context, p *remote.Path) (remote.Acl, error) {
	info, err := b.client.Lstat(b.abs(p))
	if err != nil {
		return remote.Acl{}, mapError("read acl", p.Abs(), err)
	}
	return remote.AclFromMode(info.Mode()), nil
}

// WriteAcl sets permission bits from acl. A recursive write walks the tree
// server side and leaves symlinks alone.
func (b *Backend) WriteAcl(_ context.Context, p *remote.Path, acl remote.Acl, recursive bool) error {
	mode := acl.Mode()
	root := b.abs(p)
	if !recursive {
		return mapError("write acl", p.Abs(), b.client.Chmod(root, mode))
	}
	walker := b.client.Walk(root)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			return mapError("write acl", p.Abs(), err)
		}
		if walker.Stat().Mode()&fs.ModeSymlink != 0 {
			continue
		}
		if err := b.client.Chmod(walker.Path(), mode); err != nil {
			return mapError("write acl", walker.Path(), err)
		}
	}
	return nil
}

// Mkdir creates p. An existing directory is not an error.
func (b *Backend) Mkdir(_ context.Context, p *remote.Path, _ *transfer.Status) (*remote.Path, error) {
	target := b.abs(p)
	if err := b.client.Mkdir(target); err != nil {
		if info, statErr := b.client.Stat(target); statErr != nil || !info.IsDir() {
			return nil, mapError("mkdir", p.Abs(), err)
		}
	}
	info, err := b.client.Stat(target)
	if err != nil {
		return nil, mapError("mkdir", p.Abs(), err)
	}
	return remote.New(p.Parent(), p.Name(), remote.Directory).WithAttributes(attributes(info)), nil
}

func (b *Backend) Stat(_ context.Context, p *remote.Path) (remote.Attributes, error) {
	info, err := b.client.Lstat(b.abs(p))
	if err != nil {
		return remote.Attributes{}, mapError("stat", p.Abs(), err)
	}
	return attributes(info), nil
}

// mapError converts SFTP status codes to the shared sentinels.
func mapError(op, p string, err error) error {
	if err == nil {
		return nil
	}
	var se *sftp.StatusError
	if errors.As(err, &se) {
		switch se.FxCode() {
		case sftp.ErrSSHFxNoSuchFile:
			return transport.MapError(op, p, fmt.Errorf("%w: %w", fs.ErrNotExist, err))
		case sftp.ErrSSHFxPermissionDenied:
			return transport.MapError(op, p, fmt.Errorf("%w: %w", fs.ErrPermission, err))
		case sftp.ErrSSHFxOpUnsupported:
			return errdefs.Background(op, p, fmt.Errorf("%w: %w", errdefs.ErrUnsupported, err))
		}
	}
	return transport.MapError(op, p, err)
}
