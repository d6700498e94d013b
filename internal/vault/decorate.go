package vault

import (
	"context"
	"io"

	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/filter"
	"github.com/bamsammich/ferry/internal/host"
	"github.com/bamsammich/ferry/internal/remote"
	"github.com/bamsammich/ferry/internal/transfer"
)

// Decorate wraps proxy so every call first resolves the vault enclosing its
// path and then delegates to that vault's version of the capability, or to
// proxy when the path is outside every vault. A nil proxy stays nil.
func Decorate[T any](r *Registry, k feature.Key[T], proxy T) T {
	if r == nil || any(proxy) == nil {
		return proxy
	}
	var d any
	switch k.ID() {
	case feature.IDRead:
		d = readDecorator{r, any(proxy).(feature.Read)}
	case feature.IDWrite:
		d = writeDecorator{r, any(proxy).(feature.Write)}
	case feature.IDList:
		d = listDecorator{r, any(proxy).(feature.List)}
	case feature.IDDelete:
		d = deleteDecorator{r, any(proxy).(feature.Delete)}
	case feature.IDSearch:
		d = searchDecorator{r, any(proxy).(feature.Search)}
	case feature.IDAclPermission:
		d = aclDecorator{r, any(proxy).(feature.AclPermission)}
	case feature.IDLocation:
		d = locationDecorator{r, any(proxy).(feature.Location)}
	case feature.IDTransferAcceleration:
		d = accelerationDecorator{r, any(proxy).(feature.TransferAcceleration)}
	case feature.IDDirectory:
		d = directoryDecorator{r, any(proxy).(feature.Directory)}
	case feature.IDStat:
		d = statDecorator{r, any(proxy).(feature.Stat)}
	}
	if out, ok := d.(T); ok {
		return out
	}
	return proxy
}

type readDecorator struct {
	r     *Registry
	proxy feature.Read
}

func (d readDecorator) Read(ctx context.Context, p *remote.Path, status *transfer.Status) (io.ReadCloser, error) {
	return resolve(d.r.Find(p), feature.ReadKey, d.proxy).Read(ctx, p, status)
}

type writeDecorator struct {
	r     *Registry
	proxy feature.Write
}

func (d writeDecorator) Write(ctx context.Context, p *remote.Path, status *transfer.Status) (transfer.StatusWriter, error) {
	return resolve(d.r.Find(p), feature.WriteKey, d.proxy).Write(ctx, p, status)
}

type listDecorator struct {
	r     *Registry
	proxy feature.List
}

func (d listDecorator) List(ctx context.Context, dir *remote.Path, l feature.ListProgressListener) (remote.List, error) {
	return resolve(d.r.Find(dir), feature.ListKey, d.proxy).List(ctx, dir, l)
}

type deleteDecorator struct {
	r     *Registry
	proxy feature.Delete
}

// Delete splits files into runs of consecutive paths under the same vault
// and deletes run by run, so the caller's children-first order holds across
// vault boundaries. A vault whose root was deleted is unregistered and
// locked.
func (d deleteDecorator) Delete(ctx context.Context, files []*remote.Path, prompt feature.LoginCallback, cb feature.DeleteCallback) error {
	for start := 0; start < len(files); {
		v := d.r.Find(files[start])
		end := start + 1
		for end < len(files) && d.r.Find(files[end]) == v {
			end++
		}
		run := files[start:end]
		if err := resolve(v, feature.DeleteKey, d.proxy).Delete(ctx, run, prompt, cb); err != nil {
			return err
		}
		if v != Disabled {
			d.forget(v, run)
		}
		start = end
	}
	return nil
}

func (d deleteDecorator) forget(v Vault, deleted []*remote.Path) {
	for _, p := range deleted {
		if !p.Equal(v.Root()) {
			continue
		}
		if _, ok := d.r.Remove(v.Root()); ok {
			if l, ok := v.(interface{ Lock() }); ok {
				l.Lock()
			}
		}
		return
	}
}

type searchDecorator struct {
	r     *Registry
	proxy feature.Search
}

func (d searchDecorator) Search(ctx context.Context, workdir *remote.Path, f filter.Filter, l feature.ListProgressListener) (remote.List, error) {
	return resolve(d.r.Find(workdir), feature.SearchKey, d.proxy).Search(ctx, workdir, f, l)
}

type aclDecorator struct {
	r     *Registry
	proxy feature.AclPermission
}

func (d aclDecorator) ReadAcl(ctx context.Context, p *remote.Path) (remote.Acl, error) {
	return resolve(d.r.Find(p), feature.AclPermissionKey, d.proxy).ReadAcl(ctx, p)
}

func (d aclDecorator) WriteAcl(ctx context.Context, p *remote.Path, acl remote.Acl, recursive bool) error {
	return resolve(d.r.Find(p), feature.AclPermissionKey, d.proxy).WriteAcl(ctx, p, acl, recursive)
}

type locationDecorator struct {
	r     *Registry
	proxy feature.Location
}

// Locations has no path to resolve and always reaches the backend.
func (d locationDecorator) Locations(ctx context.Context) ([]feature.Region, error) {
	return d.proxy.Locations(ctx)
}

func (d locationDecorator) Location(ctx context.Context, p *remote.Path) (feature.Region, error) {
	return resolve(d.r.Find(p), feature.LocationKey, d.proxy).Location(ctx, p)
}

type accelerationDecorator struct {
	r     *Registry
	proxy feature.TransferAcceleration
}

func (d accelerationDecorator) Status(ctx context.Context, p *remote.Path) (bool, error) {
	return resolve(d.r.Find(p), feature.TransferAccelerationKey, d.proxy).Status(ctx, p)
}

func (d accelerationDecorator) SetStatus(ctx context.Context, p *remote.Path, enabled bool) error {
	return resolve(d.r.Find(p), feature.TransferAccelerationKey, d.proxy).SetStatus(ctx, p, enabled)
}

func (d accelerationDecorator) Prompt(ctx context.Context, bookmark host.Host, p *remote.Path, status *transfer.Status, cb feature.ConnectionCallback) (bool, error) {
	return resolve(d.r.Find(p), feature.TransferAccelerationKey, d.proxy).Prompt(ctx, bookmark, p, status, cb)
}

func (d accelerationDecorator) Open(ctx context.Context, bookmark host.Host, p *remote.Path) (host.Host, error) {
	return resolve(d.r.Find(p), feature.TransferAccelerationKey, d.proxy).Open(ctx, bookmark, p)
}

type directoryDecorator struct {
	r     *Registry
	proxy feature.Directory
}

func (d directoryDecorator) Mkdir(ctx context.Context, p *remote.Path, status *transfer.Status) (*remote.Path, error) {
	return resolve(d.r.Find(p), feature.DirectoryKey, d.proxy).Mkdir(ctx, p, status)
}

type statDecorator struct {
	r     *Registry
	proxy feature.Stat
}

func (d statDecorator) Stat(ctx context.Context, p *remote.Path) (remote.Attributes, error) {
	return resolve(d.r.Find(p), feature.StatKey, d.proxy).Stat(ctx, p)
}
