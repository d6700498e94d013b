// Package login obtains credentials for a bookmark and retries failed
// authentication.
package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/host"
)

// DefaultRetries is the number of prompts after a rejected login.
const DefaultRetries = 3

// Saver is a PasswordStore that can remember a secret.
type Saver interface {
	Save(scheme host.Protocol, port int, hostname, user, password string) error
}

// Authenticator attempts a login with the credentials in h.
type Authenticator func(ctx context.Context, h host.Host) error

// Service finds credentials in Store, falls back to Prompt, and re-prompts
// after access is denied.
type Service struct {
	Store   feature.PasswordStore
	Prompt  feature.LoginCallback
	Retries int
	Logger  *slog.Logger
}

// Login authenticates h, updating h.Credentials with whatever was used.
// errdefs.ErrLoginCanceled from the prompt is returned unchanged.
func (s *Service) Login(ctx context.Context, h *host.Host, auth Authenticator) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := s.Store
	if store == nil {
		store = feature.DisabledPasswordStore{}
	}
	prompt := s.Prompt
	if prompt == nil {
		prompt = feature.DisabledLoginCallback{}
	}
	retries := s.Retries
	if retries <= 0 {
		retries = DefaultRetries
	}

	prompted := false
	if h.Credentials.Password == "" {
		if pw, ok := store.Password(h.Protocol, h.Port, h.Hostname, h.Credentials.User); ok {
			h.Credentials.Password = pw
			logger.Debug("password from store", "host", h.String())
		}
	}
	// sftp may still authenticate through the agent or default keys.
	if !h.Credentials.Validate(h.Protocol) && h.Protocol != host.ProtocolSFTP {
		if err := ask(ctx, prompt, h, "Login "+h.Hostname, "Credentials required for "+h.String()); err != nil {
			return err
		}
		prompted = true
	}

	for attempt := 0; ; attempt++ {
		err := auth(ctx, *h)
		if err == nil {
			if prompted {
				s.save(h, logger)
			}
			return nil
		}
		if !errors.Is(err, errdefs.ErrAccessDenied) || attempt >= retries {
			return err
		}
		if backoff, ok := errdefs.Retriable(err); ok {
			logger.Info("login retry", "host", h.String(), "backoff", backoff, "error", err)
			if err := sleep(ctx, backoff); err != nil {
				return err
			}
			continue
		}
		logger.Warn("login failed", "host", h.String(), "error", err)
		if err := ask(ctx, prompt, h, "Login failed", err.Error()); err != nil {
			return err
		}
		prompted = true
	}
}

func ask(ctx context.Context, prompt feature.LoginCallback, h *host.Host, title, reason string) error {
	opts := feature.LoginOptions{
		User:      h.Credentials.User == "",
		Password:  true,
		Keychain:  true,
		Anonymous: h.Protocol == host.ProtocolS3,
		PublicKey: h.Protocol == host.ProtocolSFTP,
	}
	if err := prompt.Prompt(ctx, *h, &h.Credentials, title, reason, opts); err != nil {
		if errors.Is(err, errdefs.ErrLoginCanceled) {
			return err
		}
		return fmt.Errorf("login prompt: %w", err)
	}
	return nil
}

func (s *Service) save(h *host.Host, logger *slog.Logger) {
	saver, ok := s.Store.(Saver)
	if !ok || h.Credentials.Password == "" {
		return
	}
	c := h.Credentials
	if err := saver.Save(h.Protocol, h.Port, h.Hostname, c.User, c.Password); err != nil {
		logger.Warn("save password", "host", h.String(), "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", errdefs.ErrCanceled, ctx.Err())
	case <-t.C:
		return nil
	}
}
