package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/host"
	"github.com/bamsammich/ferry/internal/remote"
	"github.com/bamsammich/ferry/internal/transfer"
)

// maxConfigSize bounds the metadata read from a vault root.
const maxConfigSize = 64 << 10

// Options tune vault creation and unlocking.
type Options struct {
	// ScryptN is the scrypt cost for new vaults; DefaultScryptN when zero.
	ScryptN int
	// Attempts bounds passphrase prompts; 3 when zero.
	Attempts int
	Logger   *slog.Logger
}

func (o Options) scryptN() int {
	if o.ScryptN == 0 {
		return DefaultScryptN
	}
	return o.ScryptN
}

func (o Options) attempts() int {
	if o.Attempts <= 0 {
		return 3
	}
	return o.Attempts
}

// PasswordUser is the password-store user under which a vault passphrase is
// saved.
func PasswordUser(root *remote.Path) string {
	return "vault:" + root.Abs()
}

// Create initializes a vault at root using the backend capabilities in reg,
// creating the directory when it is missing. The returned vault is unlocked.
func Create(ctx context.Context, reg *feature.Registry, root *remote.Path, passphrase string, opts Options) (*CryptoVault, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("create vault %s: empty passphrase", root)
	}
	w := feature.Lookup[feature.Write](reg, feature.WriteKey, nil)
	if w == nil {
		return nil, fmt.Errorf("create vault %s: write: %w", root, errdefs.ErrUnsupported)
	}
	cfgPath := remote.New(root, ConfigName, remote.File)

	if stat := feature.Lookup[feature.Stat](reg, feature.StatKey, nil); stat != nil {
		if _, err := stat.Stat(ctx, cfgPath); err == nil {
			return nil, fmt.Errorf("create vault %s: %w", root, ErrVaultExists)
		}
		_, err := stat.Stat(ctx, root)
		if errors.Is(err, errdefs.ErrNotFound) {
			dir := feature.Lookup[feature.Directory](reg, feature.DirectoryKey, nil)
			if dir == nil {
				return nil, fmt.Errorf("create vault %s: mkdir: %w", root, errdefs.ErrUnsupported)
			}
			if _, err := dir.Mkdir(ctx, root, transfer.NewStatus()); err != nil {
				return nil, fmt.Errorf("create vault %s: %w", root, err)
			}
		} else if err != nil {
			return nil, fmt.Errorf("create vault %s: %w", root, err)
		}
	}

	cfg, master, err := newConfig(passphrase, opts.scryptN())
	if err != nil {
		return nil, fmt.Errorf("create vault %s: %w", root, err)
	}
	defer clear(master)

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	status := transfer.NewStatus()
	status.Length = int64(len(data))
	status.MimeType = "application/json"
	if _, err := transfer.Upload(ctx, w, cfgPath, bytes.NewReader(data), status, transfer.Options{}); err != nil {
		return nil, fmt.Errorf("create vault %s: %w", root, err)
	}

	k, err := deriveKeys(master)
	if err != nil {
		return nil, err
	}
	v := newCryptoVault(root, k, opts.Logger)
	v.logger.Info("vault created", "scrypt_n", cfg.Scrypt.N)
	return v, nil
}

// Unlock opens the vault at root. The passphrase comes from store when it
// has one, otherwise from prompt. A wrong passphrase is re-prompted up to
// Options.Attempts times before failing with errdefs.ErrAccessDenied; a
// dismissed prompt fails with errdefs.ErrLoginCanceled.
func Unlock(ctx context.Context, reg *feature.Registry, root *remote.Path, bookmark host.Host,
	store feature.PasswordStore, prompt feature.LoginCallback, opts Options,
) (*CryptoVault, error) {
	cfg, err := readConfig(ctx, reg, root)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	user := PasswordUser(root)

	if store != nil {
		if pass, ok := store.Password(bookmark.Protocol, bookmark.Port, bookmark.Hostname, user); ok {
			master, err := cfg.open(pass)
			if err == nil {
				return unlocked(root, master, opts.Logger)
			}
			logger.Warn("saved vault passphrase rejected", "vault", root.Abs())
		}
	}
	if prompt == nil {
		prompt = feature.DisabledLoginCallback{}
	}

	reason := "Enter the passphrase for the vault at " + root.Abs() + "."
	for range opts.attempts() {
		creds := &host.Credentials{User: user}
		err := prompt.Prompt(ctx, bookmark, creds, "Unlock Vault", reason,
			feature.LoginOptions{Password: true, Passphrase: true, Keychain: true})
		if err != nil {
			return nil, fmt.Errorf("unlock vault %s: %w", root, err)
		}
		master, err := cfg.open(creds.Password)
		if errors.Is(err, errdefs.ErrAccessDenied) {
			reason = "Wrong passphrase for the vault at " + root.Abs() + ". Try again."
			continue
		}
		if err != nil {
			return nil, err
		}
		return unlocked(root, master, opts.Logger)
	}
	return nil, fmt.Errorf("unlock vault %s: %w", root, errdefs.ErrAccessDenied)
}

func unlocked(root *remote.Path, master []byte, logger *slog.Logger) (*CryptoVault, error) {
	defer clear(master)
	k, err := deriveKeys(master)
	if err != nil {
		return nil, err
	}
	v := newCryptoVault(root, k, logger)
	v.logger.Info("vault unlocked")
	return v, nil
}

func readConfig(ctx context.Context, reg *feature.Registry, root *remote.Path) (*vaultConfig, error) {
	r := feature.Lookup[feature.Read](reg, feature.ReadKey, nil)
	if r == nil {
		return nil, fmt.Errorf("unlock vault %s: read: %w", root, errdefs.ErrUnsupported)
	}
	body, err := r.Read(ctx, remote.New(root, ConfigName, remote.File), transfer.NewStatus())
	if err != nil {
		return nil, fmt.Errorf("unlock vault %s: %w", root, err)
	}
	defer body.Close()
	data, err := io.ReadAll(io.LimitReader(body, maxConfigSize))
	if err != nil {
		return nil, fmt.Errorf("unlock vault %s: %w", root, err)
	}
	return parseConfig(data)
}
