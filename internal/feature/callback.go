package feature

import (
	"context"

	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/host"
	"github.com/bamsammich/ferry/internal/remote"
)

// LoginOptions tune a credential prompt.
type LoginOptions struct {
	User       bool // ask for a user name
	Password   bool // ask for a secret
	Keychain   bool // offer to save to the password store
	Anonymous  bool // allow anonymous login
	PublicKey  bool // allow choosing a key file
	Passphrase bool // prompt is for a vault passphrase, not a login
}

// LoginCallback asks the user for credentials. It fails with
// errdefs.ErrLoginCanceled when the user aborts.
type LoginCallback interface {
	Prompt(ctx context.Context, bookmark host.Host, creds *host.Credentials, title, reason string, opts LoginOptions) error
}

// ListProgressListener receives listing chunks as they arrive.
type ListProgressListener interface {
	Chunk(dir *remote.Path, list remote.List)
}

// PasswordStore looks up saved secrets.
type PasswordStore interface {
	Password(scheme host.Protocol, port int, hostname, user string) (string, bool)
}

// CancelCallback reports a cancellation request by returning an error.
type CancelCallback interface {
	Verify() error
}

// DeleteCallback observes each deleted entry.
type DeleteCallback interface {
	Delete(p *remote.Path)
}

// ConnectionCallback surfaces non-fatal connection decisions.
type ConnectionCallback interface {
	Warn(ctx context.Context, bookmark host.Host, title, message string) error
}

// DisabledLoginCallback cancels every prompt.
type DisabledLoginCallback struct{}

func (DisabledLoginCallback) Prompt(context.Context, host.Host, *host.Credentials, string, string, LoginOptions) error {
	return errdefs.ErrLoginCanceled
}

// DisabledListProgressListener ignores chunks.
type DisabledListProgressListener struct{}

func (DisabledListProgressListener) Chunk(*remote.Path, remote.List) {}

// DisabledPasswordStore knows no secrets.
type DisabledPasswordStore struct{}

func (DisabledPasswordStore) Password(host.Protocol, int, string, string) (string, bool) {
	return "", false
}

// DisabledCancelCallback never cancels.
type DisabledCancelCallback struct{}

func (DisabledCancelCallback) Verify() error { return nil }

// ContextCancelCallback cancels when ctx is done.
type ContextCancelCallback struct{ Ctx context.Context }

func (c ContextCancelCallback) Verify() error {
	if err := c.Ctx.Err(); err != nil {
		return errdefs.ErrCanceled
	}
	return nil
}

// DisabledDeleteCallback ignores deletions.
type DisabledDeleteCallback struct{}

func (DisabledDeleteCallback) Delete(*remote.Path) {}

// DisabledConnectionCallback accepts every warning.
type DisabledConnectionCallback struct{}

func (DisabledConnectionCallback) Warn(context.Context, host.Host, string, string) error { return nil }

// ListenerFunc adapts a function to ListProgressListener.
type ListenerFunc func(dir *remote.Path, list remote.List)

func (f ListenerFunc) Chunk(dir *remote.Path, list remote.List) { f(dir, list) }

// DeleteFunc adapts a function to DeleteCallback.
type DeleteFunc func(p *remote.Path)

func (f DeleteFunc) Delete(p *remote.Path) { f(p) }
