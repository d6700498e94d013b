package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bamsammich/ferry/internal/config"
	"github.com/bamsammich/ferry/internal/host"
	"github.com/bamsammich/ferry/internal/login"
	"github.com/bamsammich/ferry/internal/transport"
	"github.com/bamsammich/ferry/internal/transport/local"
	"github.com/bamsammich/ferry/internal/transport/memory"
	"github.com/bamsammich/ferry/internal/transport/s3"
	"github.com/bamsammich/ferry/internal/transport/sftp"
)

// credentialed backends take new credentials between login attempts.
type credentialed interface {
	SetCredentials(host.Credentials)
}

// Dialer opens sessions for bookmarks. Memory trees are kept per hostname
// so sessions dialed by the same Dialer share them.
type Dialer struct {
	Prefs  *config.Preferences
	Login  *login.Service
	Logger *slog.Logger

	mu     sync.Mutex
	memory map[string]*memory.Backend
}

// Dial connects to h, running the login service for remote protocols.
// Configuration fills in what the bookmark leaves open.
func (d *Dialer) Dial(ctx context.Context, h host.Host) (*Session, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefs := d.Prefs
	if prefs == nil {
		prefs = &config.Preferences{}
	}

	b, err := d.backend(&h, prefs, logger)
	if err != nil {
		return nil, err
	}
	s := New(h, b, WithLogger(logger))

	if _, ok := b.(credentialed); !ok || d.Login == nil {
		if err := s.Open(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}

	err = d.Login.Login(ctx, &h, func(ctx context.Context, attempt host.Host) error {
		b.(credentialed).SetCredentials(attempt.Credentials)
		s.host = attempt
		return s.Open(ctx)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (d *Dialer) backend(h *host.Host, prefs *config.Preferences, logger *slog.Logger) (transport.Backend, error) {
	switch h.Protocol {
	case host.ProtocolLocal, "":
		root := h.DefaultPath
		if root == "" {
			root = "/"
		}
		return local.New(root, local.WithLogger(logger)), nil

	case host.ProtocolMemory:
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.memory == nil {
			d.memory = make(map[string]*memory.Backend)
		}
		b, ok := d.memory[h.Hostname]
		if !ok {
			b = memory.New()
			d.memory[h.Hostname] = b
		}
		return b, nil

	case host.ProtocolSFTP:
		if h.Port == 0 && prefs.SFTPPort != 0 {
			h.Port = prefs.SFTPPort
		}
		if h.Credentials.KeyFile == "" {
			h.Credentials.KeyFile = prefs.SFTPKeyFile
		}
		return sftp.New(*h, sftp.WithLogger(logger), sftp.WithTimeout(prefs.ConnectionTimeout)), nil

	case host.ProtocolS3:
		opts := []s3.Option{s3.WithLogger(logger), s3.WithRegion(prefs.S3Region)}
		if prefs.S3Endpoint != "" && h.Hostname == host.DefaultS3Hostname {
			opts = append(opts, s3.WithEndpoint(prefs.S3Endpoint))
		}
		return s3.New(*h, opts...), nil

	default:
		return nil, fmt.Errorf("dial %s: unsupported protocol %q", h, h.Protocol)
	}
}
