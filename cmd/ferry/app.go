package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/ferry/internal/config"
	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/filter"
	"github.com/bamsammich/ferry/internal/host"
	"github.com/bamsammich/ferry/internal/login"
	"github.com/bamsammich/ferry/internal/remote"
	"github.com/bamsammich/ferry/internal/session"
	"github.com/bamsammich/ferry/internal/stats"
	"github.com/bamsammich/ferry/internal/transfer"
	"github.com/bamsammich/ferry/internal/ui"
	"github.com/bamsammich/ferry/internal/vault"
)

// app holds flag values and everything built from them once per run.
type app struct {
	stdout io.Writer
	stderr io.Writer
	tty    bool
	width  int

	verbose    bool
	quiet      bool
	logFile    string
	configFile string
	workers    int
	bwlimit    string
	vaults     []string
	noProgress bool

	prompt  feature.LoginCallback
	confirm feature.ConnectionCallback
	store   login.Chain

	prefs    *config.Preferences
	logger   *slog.Logger
	dialer   *session.Dialer
	sessions map[string]*session.Session
	closers  []func() error
}

func newApp() *app {
	terminal := login.NewTerminal()
	tty, width := ui.Terminal(os.Stderr)
	return &app{
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		tty:     tty,
		width:   width,
		prompt:  terminal,
		confirm: terminal,
	}
}

// setup resolves preferences (flags over environment over file over
// platform defaults) and installs the logger and dialer.
func (a *app) setup(cmd *cobra.Command) error {
	var (
		file config.File
		err  error
	)
	if a.configFile != "" {
		file, err = config.LoadFile(a.configFile)
	} else {
		file, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	prefs, err := config.New(config.CurrentPlatform(), file)
	if err != nil {
		return err
	}
	if err := a.override(prefs, cmd.Flags()); err != nil {
		return err
	}
	if err := prefs.Validate(); err != nil {
		return err
	}
	a.prefs = prefs

	level := prefs.Level()
	if a.verbose {
		level = slog.LevelDebug
	} else if a.quiet {
		level = slog.LevelError
	}
	var handler slog.Handler = slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level})
	if a.logFile != "" {
		lf, err := os.Create(a.logFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.closers = append(a.closers, lf.Close)
		handler = ui.NewMultiHandler(handler, slog.NewJSONHandler(lf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	a.logger = slog.New(handler)
	slog.SetDefault(a.logger)

	if a.store == nil {
		a.store = login.Chain{login.EnvStore{}, login.NewMemoryStore()}
	}
	if a.dialer == nil {
		a.dialer = &session.Dialer{}
	}
	a.dialer.Prefs = prefs
	a.dialer.Logger = a.logger
	a.dialer.Login = &login.Service{Store: a.store, Prompt: a.prompt, Retries: prefs.LoginRetries, Logger: a.logger}
	return nil
}

// override applies the flags the user set explicitly on top of prefs.
func (a *app) override(prefs *config.Preferences, flags *pflag.FlagSet) error {
	if flags.Changed("workers") {
		prefs.Workers = a.workers
	}
	if flags.Changed("bwlimit") {
		n, err := filter.ParseSize(a.bwlimit)
		if err != nil {
			return fmt.Errorf("invalid --bwlimit: %w", err)
		}
		prefs.BWLimit = n
	}
	return nil
}

// shutdown closes sessions and the log file, newest first.
func (a *app) shutdown() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
	a.sessions = nil
}

// open dials the host named by arg and resolves the path on it.
func (a *app) open(ctx context.Context, arg string) (*session.Session, *remote.Path, error) {
	loc, err := host.ParseLocation(arg)
	if err != nil {
		return nil, nil, err
	}
	h, abs, err := bookmark(loc)
	if err != nil {
		return nil, nil, err
	}
	s, err := a.session(ctx, h)
	if err != nil {
		return nil, nil, err
	}
	p, err := resolve(ctx, s, abs)
	if err != nil {
		return nil, nil, err
	}
	return s, p, nil
}

// bookmark points the host's backend root where the location's path can be
// addressed from "/".
func bookmark(loc host.Location) (host.Host, string, error) {
	h := loc.Host
	dirHint := strings.HasSuffix(loc.Path, "/")
	switch h.Protocol {
	case host.ProtocolLocal:
		p, err := filepath.Abs(loc.Path)
		if err != nil {
			return h, "", err
		}
		h.DefaultPath = "/"
		abs := filepath.ToSlash(p)
		if dirHint && !strings.HasSuffix(abs, "/") {
			abs += "/"
		}
		return h, abs, nil
	case host.ProtocolSFTP:
		// scp-style relative paths start in the login directory.
		if !strings.HasPrefix(loc.Path, "/") {
			h.DefaultPath = "."
		}
	case host.ProtocolS3:
		if segs := strings.Split(strings.Trim(loc.Path, "/"), "/"); segs[0] != "" {
			h.DefaultPath = "/" + segs[0]
		}
	}
	return h, loc.Path, nil
}

// session returns the open session for h, dialing and unlocking --vault
// roots on first use.
func (a *app) session(ctx context.Context, h host.Host) (*session.Session, error) {
	key := h.String() + "#" + h.DefaultPath
	if s, ok := a.sessions[key]; ok {
		return s, nil
	}
	s, err := a.dialer.Dial(ctx, h)
	if err != nil {
		return nil, err
	}
	for _, root := range a.vaults {
		if _, err := s.UnlockVault(ctx, vaultRoot(h, root), a.store, a.prompt, a.vaultOptions()); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	if a.sessions == nil {
		a.sessions = make(map[string]*session.Session)
	}
	a.sessions[key] = s
	a.closers = append(a.closers, s.Close)
	return s, nil
}

func vaultRoot(h host.Host, root string) *remote.Path {
	if h.Protocol == host.ProtocolLocal {
		if p, err := filepath.Abs(root); err == nil {
			root = filepath.ToSlash(p)
		}
	}
	return remote.Parse(root, remote.Directory)
}

func (a *app) vaultOptions() vault.Options {
	return vault.Options{ScryptN: a.prefs.VaultScryptN, Attempts: a.prefs.LoginRetries, Logger: a.logger}
}

// resolve finds abs in its parent's listing so the path carries the type and
// attributes the backend reports. Paths that do not exist yet are files,
// unless abs ends in a slash.
func resolve(ctx context.Context, s *session.Session, abs string) (*remote.Path, error) {
	clean := path.Clean("/" + abs)
	if clean == "/" {
		return remote.Root(), nil
	}
	typ := remote.File
	if strings.HasSuffix(abs, "/") {
		typ = remote.Directory
	}
	p := remote.Parse(clean, typ)
	if p.Parent().IsRoot() && typ == remote.Directory && s.Host().Protocol != host.ProtocolLocal {
		p = remote.Parse(clean, remote.Directory|remote.Volume)
	}

	list := session.Feature[feature.List](s, feature.ListKey, nil)
	if list == nil {
		return p, nil
	}
	siblings, err := list.List(ctx, p.Parent(), nil)
	if err != nil {
		if errors.Is(err, errdefs.ErrNotFound) || errors.Is(err, errdefs.ErrAccessDenied) {
			return p, nil
		}
		return nil, err
	}
	if found := siblings.Find(p); found != nil {
		return found, nil
	}
	return p, nil
}

// transferOptions throttles to --bwlimit and counts bytes into c.
func (a *app) transferOptions(c *stats.Collector) transfer.Options {
	return transfer.Options{Limiter: transfer.NewBandwidthLimiter(a.prefs.BWLimit), Listener: c}
}

// track runs fn while a presenter drains the events it emits, then prints
// the summary. Failed files turn into exit code 1 (some succeeded) or 2.
func (a *app) track(root string, fn func(events chan<- event.Event, c *stats.Collector) error) error {
	collector := stats.NewCollector()
	events := make(chan event.Event, 256)
	presenter := ui.NewPresenter(ui.Config{
		Writer:     a.stdout,
		ErrWriter:  a.stderr,
		Stats:      collector,
		Root:       root,
		IsTTY:      a.tty,
		Quiet:      a.quiet,
		NoProgress: a.noProgress,
		Width:      a.width,
	})

	// With --log, events are also written as structured records.
	feed := (<-chan event.Event)(events)
	if a.logFile != "" {
		teed := make(chan event.Event, 256)
		go func() {
			for ev := range events {
				attrs := []slog.Attr{
					slog.String("type", ev.Type.String()),
					slog.String("path", ev.Path),
					slog.Int64("size", ev.Size),
				}
				if ev.Activity != "" {
					attrs = append(attrs, slog.String("activity", ev.Activity))
				}
				if ev.Error != nil {
					attrs = append(attrs, slog.String("error", ev.Error.Error()))
				}
				a.logger.LogAttrs(context.Background(), slog.LevelDebug, "ferry.event", attrs...)
				teed <- ev
			}
			close(teed)
		}()
		feed = teed
	}

	done := make(chan error, 1)
	go func() { done <- presenter.Run(feed) }()
	err := fn(events, collector)
	close(events)
	if perr := <-done; perr != nil {
		a.logger.Warn("presenter failed", "error", perr)
	}
	if summary := presenter.Summary(); summary != "" {
		fmt.Fprintln(a.stderr, summary)
	}
	if err != nil {
		return err
	}

	snap := collector.Snapshot()
	if snap.FilesFailed > 0 || snap.TasksFailed > 0 {
		if snap.FilesDone > 0 {
			return &exitError{code: 1}
		}
		return &exitError{code: 2}
	}
	if snap.TasksCanceled > 0 {
		return errdefs.ErrCanceled
	}
	return nil
}

func unsupported(op string, s *session.Session) error {
	return fmt.Errorf("%s on %s: %w", op, s.Host().Protocol, errdefs.ErrUnsupported)
}
