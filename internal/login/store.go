package login

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/host"
)

// EnvStore reads secrets from the environment. The most specific variable
// wins:
//
//	FERRY_PASSWORD_<SCHEME>_<HOST>_<USER>
//	FERRY_PASSWORD_<SCHEME>_<HOST>
//	FERRY_PASSWORD
//
// Names are upper-cased with every non-alphanumeric rune replaced by '_'.
type EnvStore struct {
	// Lookup defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

func (e EnvStore) Password(scheme host.Protocol, _ int, hostname, user string) (string, bool) {
	lookup := e.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	base := "FERRY_PASSWORD"
	candidates := []string{base}
	if hostname != "" {
		scoped := base + "_" + envName(string(scheme)) + "_" + envName(hostname)
		candidates = append([]string{scoped}, candidates...)
		if user != "" {
			candidates = append([]string{scoped + "_" + envName(user)}, candidates...)
		}
	}
	for _, name := range candidates {
		if v, ok := lookup(name); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func envName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, s)
}

// MemoryStore keeps secrets for the life of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: make(map[string]string)}
}

func storeKey(scheme host.Protocol, port int, hostname, user string) string {
	return fmt.Sprintf("%s://%s@%s:%d", scheme, user, hostname, port)
}

func (m *MemoryStore) Password(scheme host.Protocol, port int, hostname, user string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pw, ok := m.secrets[storeKey(scheme, port, hostname, user)]
	return pw, ok
}

func (m *MemoryStore) Save(scheme host.Protocol, port int, hostname, user, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[storeKey(scheme, port, hostname, user)] = password
	return nil
}

// Chain consults each store in order.
type Chain []feature.PasswordStore

func (c Chain) Password(scheme host.Protocol, port int, hostname, user string) (string, bool) {
	for _, s := range c {
		if pw, ok := s.Password(scheme, port, hostname, user); ok {
			return pw, true
		}
	}
	return "", false
}

// Save stores into the first member that can save.
func (c Chain) Save(scheme host.Protocol, port int, hostname, user, password string) error {
	for _, s := range c {
		if saver, ok := s.(Saver); ok {
			return saver.Save(scheme, port, hostname, user, password)
		}
	}
	return nil
}
