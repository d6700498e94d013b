package vault

import (
	"context"
	"fmt"
	"io"

	"github.com/bamsammich/ferry/internal/checksum"
	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/filter"
	"github.com/bamsammich/ferry/internal/host"
	"github.com/bamsammich/ferry/internal/remote"
	"github.com/bamsammich/ferry/internal/transfer"
)

type cryptoRead struct {
	v     *CryptoVault
	proxy feature.Read
}

// Read always fetches the stored object from its start; chunk boundaries
// make ciphertext offsets useless, so Offset is skipped in cleartext.
func (f *cryptoRead) Read(ctx context.Context, p *remote.Path, status *transfer.Status) (io.ReadCloser, error) {
	enc, err := f.v.encrypt(p)
	if err != nil {
		return nil, err
	}
	k, err := f.v.current()
	if err != nil {
		return nil, err
	}
	inner := status.Clone()
	inner.Offset = 0
	inner.Length = transfer.UnknownLength
	inner.Checksum = checksum.None

	body, err := f.proxy.Read(ctx, enc, inner)
	if err != nil {
		return nil, err
	}
	r := newDecryptReader(body, k.content)
	if status.Offset > 0 {
		if _, err := io.CopyN(io.Discard, r, status.Offset); err != nil {
			r.Close()
			return nil, fmt.Errorf("read %s: skip to %d: %w", p, status.Offset, err)
		}
	}
	return r, nil
}

type cryptoWrite struct {
	v     *CryptoVault
	proxy feature.Write
}

// Write encrypts into the backend's own verified sink and verifies the
// cleartext on top, so a declared checksum is checked before the backend
// sees the final chunk.
func (f *cryptoWrite) Write(ctx context.Context, p *remote.Path, status *transfer.Status) (transfer.StatusWriter, error) {
	if status.Append {
		return nil, fmt.Errorf("append to %s: %w", p, errdefs.ErrUnsupported)
	}
	enc, err := f.v.encrypt(p)
	if err != nil {
		return nil, err
	}
	k, err := f.v.current()
	if err != nil {
		return nil, err
	}
	inner := status.Clone()
	inner.Length = CiphertextSize(status.Length)
	inner.Checksum = checksum.None
	inner.Offset = 0

	sink, err := f.proxy.Write(ctx, enc, inner)
	if err != nil {
		return nil, err
	}
	ew, err := newEncryptWriter(sink, k.content)
	if err != nil {
		abortInner(sink)
		return nil, err
	}
	return transfer.Verify(p.Abs(), status, ew).WithLogger(f.v.logger), nil
}

func abortInner(sink transfer.StatusWriter) {
	if a, ok := sink.(transfer.Aborter); ok {
		_ = a.Abort()
		return
	}
	_ = sink.Close()
}

type cryptoList struct {
	v     *CryptoVault
	proxy feature.List
}

// List decrypts the whole stored listing before reporting it, so the
// listener sees a single sorted chunk.
func (f *cryptoList) List(ctx context.Context, dir *remote.Path, listener feature.ListProgressListener) (remote.List, error) {
	enc, err := f.v.encrypt(dir)
	if err != nil {
		return nil, err
	}
	stored, err := f.proxy.List(ctx, enc, feature.DisabledListProgressListener{})
	if err != nil {
		return nil, err
	}
	out, err := f.v.decryptList(dir, stored, filter.All)
	if err != nil {
		return nil, err
	}
	if listener != nil && len(out) > 0 {
		listener.Chunk(dir, out)
	}
	return out, nil
}

type cryptoSearch struct {
	v     *CryptoVault
	proxy feature.Search
}

// Search cannot push f down to the backend since stored names are opaque;
// it fetches every child and filters the cleartext.
func (f *cryptoSearch) Search(ctx context.Context, workdir *remote.Path, fl filter.Filter, listener feature.ListProgressListener) (remote.List, error) {
	enc, err := f.v.encrypt(workdir)
	if err != nil {
		return nil, err
	}
	stored, err := f.proxy.Search(ctx, enc, filter.All, feature.DisabledListProgressListener{})
	if err != nil {
		return nil, err
	}
	out, err := f.v.decryptList(workdir, stored, fl)
	if err != nil {
		return nil, err
	}
	if listener != nil && len(out) > 0 {
		listener.Chunk(workdir, out)
	}
	return out, nil
}

func (v *CryptoVault) decryptList(dir *remote.Path, stored remote.List, keep filter.Filter) (remote.List, error) {
	k, err := v.current()
	if err != nil {
		return nil, err
	}
	out := make(remote.List, 0, len(stored))
	for _, s := range stored {
		p, ok := v.decryptChild(k, dir, s)
		if ok && keep.Accept(p) {
			out = append(out, p)
		}
	}
	out.Sort()
	return out, nil
}

type cryptoDelete struct {
	v     *CryptoVault
	proxy feature.Delete
}

func (f *cryptoDelete) Delete(ctx context.Context, files []*remote.Path, prompt feature.LoginCallback, cb feature.DeleteCallback) error {
	stored := make([]*remote.Path, 0, len(files)+1)
	byStored := make(map[string]*remote.Path, len(files))
	for _, p := range files {
		enc, err := f.v.encrypt(p)
		if err != nil {
			return err
		}
		if p.Equal(f.v.root) {
			// The config is hidden from listings, so no walk collects it.
			stored = append(stored, remote.New(f.v.root, ConfigName, remote.File))
		}
		stored = append(stored, enc)
		byStored[enc.Abs()] = p
	}
	if cb == nil {
		cb = feature.DisabledDeleteCallback{}
	}
	return f.proxy.Delete(ctx, stored, prompt, feature.DeleteFunc(func(enc *remote.Path) {
		if p, ok := byStored[enc.Abs()]; ok {
			cb.Delete(p)
		}
	}))
}

type cryptoDirectory struct {
	v     *CryptoVault
	proxy feature.Directory
}

func (f *cryptoDirectory) Mkdir(ctx context.Context, p *remote.Path, status *transfer.Status) (*remote.Path, error) {
	enc, err := f.v.encrypt(p)
	if err != nil {
		return nil, err
	}
	created, err := f.proxy.Mkdir(ctx, enc, status)
	if err != nil {
		return nil, err
	}
	if enc == p {
		return created, nil
	}
	return remote.New(p.Parent(), p.Name(), created.Type()).
		WithAttributes(decryptAttributes(created.Type(), created.Attributes())), nil
}

type cryptoStat struct {
	v     *CryptoVault
	proxy feature.Stat
}

func (f *cryptoStat) Stat(ctx context.Context, p *remote.Path) (remote.Attributes, error) {
	enc, err := f.v.encrypt(p)
	if err != nil {
		return remote.Attributes{}, err
	}
	attrs, err := f.proxy.Stat(ctx, enc)
	if err != nil {
		return remote.Attributes{}, err
	}
	return decryptAttributes(p.Type(), attrs), nil
}

// The remaining capabilities carry no names or payloads beyond the path.

type cryptoAcl struct {
	v     *CryptoVault
	proxy feature.AclPermission
}

func (f *cryptoAcl) ReadAcl(ctx context.Context, p *remote.Path) (remote.Acl, error) {
	enc, err := f.v.encrypt(p)
	if err != nil {
		return remote.Acl{}, err
	}
	return f.proxy.ReadAcl(ctx, enc)
}

func (f *cryptoAcl) WriteAcl(ctx context.Context, p *remote.Path, acl remote.Acl, recursive bool) error {
	enc, err := f.v.encrypt(p)
	if err != nil {
		return err
	}
	return f.proxy.WriteAcl(ctx, enc, acl, recursive)
}

type cryptoLocation struct {
	v     *CryptoVault
	proxy feature.Location
}

func (f *cryptoLocation) Locations(ctx context.Context) ([]feature.Region, error) {
	return f.proxy.Locations(ctx)
}

func (f *cryptoLocation) Location(ctx context.Context, p *remote.Path) (feature.Region, error) {
	enc, err := f.v.encrypt(p)
	if err != nil {
		return feature.UnknownRegion, err
	}
	return f.proxy.Location(ctx, enc)
}

type cryptoAcceleration struct {
	v     *CryptoVault
	proxy feature.TransferAcceleration
}

func (f *cryptoAcceleration) Status(ctx context.Context, p *remote.Path) (bool, error) {
	enc, err := f.v.encrypt(p)
	if err != nil {
		return false, err
	}
	return f.proxy.Status(ctx, enc)
}

func (f *cryptoAcceleration) SetStatus(ctx context.Context, p *remote.Path, enabled bool) error {
	enc, err := f.v.encrypt(p)
	if err != nil {
		return err
	}
	return f.proxy.SetStatus(ctx, enc, enabled)
}

func (f *cryptoAcceleration) Prompt(ctx context.Context, bookmark host.Host, p *remote.Path, status *transfer.Status, cb feature.ConnectionCallback) (bool, error) {
	enc, err := f.v.encrypt(p)
	if err != nil {
		return false, err
	}
	return f.proxy.Prompt(ctx, bookmark, enc, status, cb)
}

func (f *cryptoAcceleration) Open(ctx context.Context, bookmark host.Host, p *remote.Path) (host.Host, error) {
	enc, err := f.v.encrypt(p)
	if err != nil {
		return host.Host{}, err
	}
	return f.proxy.Open(ctx, bookmark, enc)
}
