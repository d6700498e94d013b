package login

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/host"
)

// Terminal prompts on a TTY. Secrets are read without echo. Without a
// terminal every prompt is canceled.
type Terminal struct {
	In  *os.File
	Out io.Writer
}

// NewTerminal prompts on stdin and writes to stderr.
func NewTerminal() *Terminal {
	return &Terminal{In: os.Stdin, Out: os.Stderr}
}

func (t *Terminal) Prompt(ctx context.Context, _ host.Host, creds *host.Credentials, title, reason string, opts feature.LoginOptions) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", errdefs.ErrLoginCanceled, err)
	}
	fd := int(t.In.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("%w: no terminal", errdefs.ErrLoginCanceled)
	}

	fmt.Fprintf(t.Out, "%s\n%s\n", title, reason)
	if opts.User && !opts.Passphrase {
		fmt.Fprint(t.Out, "Username: ")
		line, err := bufio.NewReader(t.In).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("%w: %w", errdefs.ErrLoginCanceled, err)
		}
		creds.User = strings.TrimSpace(line)
	}
	if !opts.Password && !opts.Passphrase {
		return nil
	}

	label := "Password: "
	if opts.Passphrase {
		label = "Passphrase: "
	}
	fmt.Fprint(t.Out, label)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(t.Out)
	if err != nil {
		return fmt.Errorf("%w: %w", errdefs.ErrLoginCanceled, err)
	}
	if len(secret) == 0 {
		return errdefs.ErrLoginCanceled
	}
	creds.Password = string(secret)
	return nil
}

// Warn asks for confirmation on the terminal. Anything but y or yes
// declines with errdefs.ErrCanceled.
func (t *Terminal) Warn(ctx context.Context, _ host.Host, title, message string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", errdefs.ErrCanceled, err)
	}
	if !term.IsTerminal(int(t.In.Fd())) {
		return fmt.Errorf("%w: no terminal", errdefs.ErrCanceled)
	}
	fmt.Fprintf(t.Out, "%s\n%s [y/N] ", title, message)
	line, _ := bufio.NewReader(t.In).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return nil
	}
	return errdefs.ErrCanceled
}
