package vault

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bamsammich/ferry/internal/remote"
)

// Registry holds the vaults of one session. Lookups vastly outnumber
// registrations, so the root table sits behind an RWMutex and is kept
// sorted longest-first for nearest-enclosing matches.
type Registry struct {
	mu     sync.RWMutex
	vaults map[string]Vault
	roots  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{vaults: make(map[string]Vault)}
}

// Add registers v at its root.
func (r *Registry) Add(v Vault) error {
	if v == nil || v.Root() == nil {
		return ErrNilVault
	}
	root := v.Root().Abs()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.vaults[root]; ok {
		return fmt.Errorf("%w: %s", ErrVaultExists, root)
	}
	r.vaults[root] = v
	r.sortRoots()
	return nil
}

// Remove unregisters the vault at root and returns it.
func (r *Registry) Remove(root *remote.Path) (Vault, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.vaults[root.Abs()]
	if !ok {
		return nil, false
	}
	delete(r.vaults, root.Abs())
	r.sortRoots()
	return v, true
}

// Find returns the nearest vault enclosing p, or Disabled. It never fails
// and never touches p's attributes.
func (r *Registry) Find(p *remote.Path) Vault {
	if r == nil || p == nil {
		return Disabled
	}
	abs := p.Abs()

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, root := range r.roots {
		if abs == root || strings.HasPrefix(abs, root+remote.Delimiter) || root == remote.Delimiter {
			return r.vaults[root]
		}
	}
	return Disabled
}

// Vaults returns the registered vaults, longest root first.
func (r *Registry) Vaults() []Vault {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Vault, 0, len(r.roots))
	for _, root := range r.roots {
		out = append(out, r.vaults[root])
	}
	return out
}

// caller holds the write lock.
func (r *Registry) sortRoots() {
	r.roots = r.roots[:0]
	for root := range r.vaults {
		r.roots = append(r.roots, root)
	}
	sort.Slice(r.roots, func(i, j int) bool {
		if len(r.roots[i]) != len(r.roots[j]) {
			return len(r.roots[i]) > len(r.roots[j])
		}
		return r.roots[i] < r.roots[j]
	})
}
