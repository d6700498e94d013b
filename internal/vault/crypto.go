package vault

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"

	"github.com/bamsammich/ferry/internal/checksum"
	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/remote"
)

// ErrLocked is returned by operations on a vault after Lock.
var ErrLocked = errors.New("vault is locked")

// CryptoVault encrypts names and content beneath its root. The root itself
// and ConfigName keep their cleartext names.
type CryptoVault struct {
	root   *remote.Path
	logger *slog.Logger

	mu   sync.RWMutex
	keys *keys
}

func newCryptoVault(root *remote.Path, k *keys, logger *slog.Logger) *CryptoVault {
	if logger == nil {
		logger = slog.Default()
	}
	return &CryptoVault{
		root:   root,
		keys:   k,
		logger: logger.With("vault", root.Abs()),
	}
}

func (v *CryptoVault) Root() *remote.Path { return v.root }

func (v *CryptoVault) Contains(p *remote.Path) bool {
	return p.Equal(v.root) || p.IsChild(v.root)
}

func (v *CryptoVault) String() string { return "vault " + v.root.Abs() }

// Lock wipes the key material. Features already resolved fail with
// ErrLocked from then on. Operations still streaming must finish first.
func (v *CryptoVault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.keys != nil {
		v.keys.wipe()
		v.keys = nil
		v.logger.Info("vault locked")
	}
}

// Locked reports whether Lock was called.
func (v *CryptoVault) Locked() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.keys == nil
}

func (v *CryptoVault) current() (*keys, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.keys == nil {
		return nil, fmt.Errorf("%s: %w", v.root, ErrLocked)
	}
	return v.keys, nil
}

// Feature wraps the capabilities whose paths or payloads need translation.
func (v *CryptoVault) Feature(id feature.ID, proxy any) any {
	switch id {
	case feature.IDRead:
		if p, ok := proxy.(feature.Read); ok {
			return &cryptoRead{v, p}
		}
	case feature.IDWrite:
		if p, ok := proxy.(feature.Write); ok {
			return &cryptoWrite{v, p}
		}
	case feature.IDList:
		if p, ok := proxy.(feature.List); ok {
			return &cryptoList{v, p}
		}
	case feature.IDSearch:
		if p, ok := proxy.(feature.Search); ok {
			return &cryptoSearch{v, p}
		}
	case feature.IDDelete:
		if p, ok := proxy.(feature.Delete); ok {
			return &cryptoDelete{v, p}
		}
	case feature.IDDirectory:
		if p, ok := proxy.(feature.Directory); ok {
			return &cryptoDirectory{v, p}
		}
	case feature.IDStat:
		if p, ok := proxy.(feature.Stat); ok {
			return &cryptoStat{v, p}
		}
	case feature.IDAclPermission:
		if p, ok := proxy.(feature.AclPermission); ok {
			return &cryptoAcl{v, p}
		}
	case feature.IDLocation:
		if p, ok := proxy.(feature.Location); ok {
			return &cryptoLocation{v, p}
		}
	case feature.IDTransferAcceleration:
		if p, ok := proxy.(feature.TransferAcceleration); ok {
			return &cryptoAcceleration{v, p}
		}
	}
	return nil
}

// clearRel is p's cleartext path relative to the root, "/" for the root.
func (v *CryptoVault) clearRel(p *remote.Path) string {
	return remote.Relativize(v.root.Abs(), p.Abs())
}

// encrypt maps a cleartext path to its stored form. Attributes are carried
// over with the size translated.
func (v *CryptoVault) encrypt(p *remote.Path) (*remote.Path, error) {
	if !v.Contains(p) || p.Equal(v.root) {
		return p, nil
	}
	k, err := v.current()
	if err != nil {
		return nil, err
	}
	rel := v.clearRel(p)
	segs := remote.Parse(rel, p.Type()).Segments()

	cur, parent := v.root, remote.Delimiter
	for i, seg := range segs {
		typ := remote.Directory
		if i == len(segs)-1 {
			typ = p.Type()
		}
		cur = remote.New(cur, k.encryptName(parent, seg), typ)
		parent = path.Join(parent, seg)
	}
	attrs := p.Attributes()
	if p.IsFile() && attrs.Size > 0 {
		attrs.Size = CiphertextSize(attrs.Size)
	}
	return cur.WithAttributes(attrs), nil
}

// decryptChild maps a stored child of the cleartext directory dir back to
// cleartext. ok is false for entries that are not part of the vault.
func (v *CryptoVault) decryptChild(k *keys, dir, stored *remote.Path) (*remote.Path, bool) {
	if dir.Equal(v.root) && stored.Name() == ConfigName {
		return nil, false
	}
	name, err := k.decryptName(v.clearRel(dir), stored.Name())
	if err != nil {
		v.logger.Debug("skip undecryptable entry", "path", stored.Abs())
		return nil, false
	}
	return remote.New(dir, name, stored.Type()).WithAttributes(decryptAttributes(stored.Type(), stored.Attributes())), true
}

func decryptAttributes(typ remote.Type, a remote.Attributes) remote.Attributes {
	if typ&remote.File != 0 && a.Size > 0 {
		if n := CleartextSize(a.Size); n >= 0 {
			a.Size = n
		}
	}
	a.Checksum = checksum.None
	return a
}

var _ Vault = (*CryptoVault)(nil)
