// Package session binds a connected backend to its capability registry and
// the vaults unlocked on it. Every capability handed out by a session is
// routed through the vault layer.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/host"
	"github.com/bamsammich/ferry/internal/remote"
	"github.com/bamsammich/ferry/internal/transport"
	"github.com/bamsammich/ferry/internal/vault"
)

// ErrNotOpen is returned when a session is used before Open.
var ErrNotOpen = errors.New("session not open")

// Session is one connection to a host.
type Session struct {
	host    host.Host
	backend transport.Backend
	vaults  *vault.Registry
	logger  *slog.Logger

	mu     sync.RWMutex
	native *feature.Registry
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns an unopened session for h served by b.
func New(h host.Host, b transport.Backend, opts ...Option) *Session {
	s := &Session{
		host:    h,
		backend: b,
		vaults:  vault.NewRegistry(),
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("host", h.String())
	return s
}

// Open connects the backend and builds the capability registry.
func (s *Session) Open(ctx context.Context) error {
	if err := s.backend.Open(ctx); err != nil {
		return fmt.Errorf("open %s: %w", s.host, err)
	}
	reg := feature.NewRegistry(s.backend.Features()...)
	s.mu.Lock()
	s.native = reg
	s.mu.Unlock()
	s.logger.Debug("session open", "features", fmt.Sprint(reg.IDs()))
	return nil
}

// Close locks every unlocked vault and disconnects.
func (s *Session) Close() error {
	for _, v := range s.vaults.Vaults() {
		if cv, ok := v.(*vault.CryptoVault); ok {
			cv.Lock()
		}
	}
	s.mu.Lock()
	s.native = nil
	s.mu.Unlock()
	return s.backend.Close()
}

func (s *Session) Host() host.Host         { return s.host }
func (s *Session) Vaults() *vault.Registry { return s.vaults }
func (s *Session) Logger() *slog.Logger    { return s.logger }

// Registry returns the backend's native capabilities, bypassing vaults.
// Vault bootstrap and diagnostics use it; everything else goes through
// Feature.
func (s *Session) Registry() *feature.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.native
}

// Has reports whether the backend implements id natively.
func (s *Session) Has(id feature.ID) bool {
	return s.Registry().Has(id)
}

// Feature returns capability k for s: the backend's implementation, or
// fallback when it has none, wrapped so calls on paths inside a vault are
// handled by that vault. A nil fallback for a missing capability yields nil.
func Feature[T any](s *Session, k feature.Key[T], fallback T) T {
	return vault.Decorate(s.vaults, k, feature.Lookup(s.Registry(), k, fallback))
}

// CreateVault initializes a vault at root and unlocks it in this session.
func (s *Session) CreateVault(ctx context.Context, root *remote.Path, passphrase string, opts vault.Options) (*vault.CryptoVault, error) {
	reg := s.Registry()
	if reg == nil {
		return nil, ErrNotOpen
	}
	opts.Logger = s.logger
	v, err := vault.Create(ctx, reg, root, passphrase, opts)
	if err != nil {
		return nil, err
	}
	if err := s.vaults.Add(v); err != nil {
		v.Lock()
		return nil, err
	}
	return v, nil
}

// UnlockVault unlocks the vault at root and routes its paths through it.
func (s *Session) UnlockVault(ctx context.Context, root *remote.Path, store feature.PasswordStore,
	prompt feature.LoginCallback, opts vault.Options,
) (*vault.CryptoVault, error) {
	reg := s.Registry()
	if reg == nil {
		return nil, ErrNotOpen
	}
	opts.Logger = s.logger
	v, err := vault.Unlock(ctx, reg, root, s.host, store, prompt, opts)
	if err != nil {
		return nil, err
	}
	if err := s.vaults.Add(v); err != nil {
		v.Lock()
		return nil, err
	}
	return v, nil
}

// LockVault removes the vault at root and wipes its keys.
func (s *Session) LockVault(root *remote.Path) bool {
	v, ok := s.vaults.Remove(root)
	if !ok {
		return false
	}
	if cv, ok := v.(*vault.CryptoVault); ok {
		cv.Lock()
	}
	return true
}
