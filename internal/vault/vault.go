// Package vault routes feature calls through encryption boundaries. A vault
// is rooted at a directory; every path beneath it is transparently
// translated between cleartext and the encrypted form stored remotely.
package vault

import (
	"errors"

	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/remote"
)

var (
	// ErrVaultExists is returned when a vault is already registered at a root.
	ErrVaultExists = errors.New("vault already registered")
	// ErrNilVault is returned when registering a nil vault.
	ErrNilVault = errors.New("vault cannot be nil")
)

// Vault is an encryption boundary.
type Vault interface {
	// Root is the vault's top directory; nil for Disabled.
	Root() *remote.Path
	// Contains reports whether p is the root or lies beneath it.
	Contains(p *remote.Path) bool
	// Feature returns the vault's version of capability id wrapping proxy,
	// or nil when the vault leaves that capability alone.
	Feature(id feature.ID, proxy any) any
}

// disabled is the "no vault" sentinel: every call passes through.
type disabled struct{}

// Disabled is returned by lookups for paths outside every vault.
var Disabled Vault = disabled{}

func (disabled) Root() *remote.Path          { return nil }
func (disabled) Contains(*remote.Path) bool  { return false }
func (disabled) Feature(feature.ID, any) any { return nil }
func (disabled) String() string              { return "no vault" }

// resolve returns v's version of the capability, or proxy when v offers
// none.
func resolve[T any](v Vault, k feature.Key[T], proxy T) T {
	if impl, ok := v.Feature(k.ID(), proxy).(T); ok {
		return impl
	}
	return proxy
}
