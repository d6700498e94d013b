package sftp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/host"
)

// dial opens an SSH connection to h.
//
// Auth methods are tried in order:
//  1. SSH agent (if SSH_AUTH_SOCK is set)
//  2. h.Credentials.KeyFile, or ~/.ssh/id_ed25519, id_ecdsa, id_rsa
//  3. h.Credentials.Password
//
// A rejected login fails with errdefs.ErrAccessDenied.
func dial(ctx context.Context, h host.Host, timeout time.Duration) (*ssh.Client, error) {
	userName := h.Credentials.User
	if userName == "" {
		u, err := user.Current()
		if err != nil {
			return nil, fmt.Errorf("determine current user: %w", err)
		}
		userName = u.Username
	}

	methods := authMethods(h.Credentials)
	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: no ssh auth methods (set SSH_AUTH_SOCK, a key file or a password)", errdefs.ErrAccessDenied)
	}

	hostKeyCallback, err := defaultHostKeyCallback()
	if err != nil {
		// Matches most CLI tools on first connection.
		//nolint:gosec // fallback for systems without known_hosts
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	cfg := &ssh.ClientConfig{
		User:            userName,
		Auth:            methods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	addr := h.Addr()
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		if isAuthFailure(err) {
			return nil, fmt.Errorf("ssh login %s@%s: %w: %w", userName, addr, errdefs.ErrAccessDenied, err)
		}
		return nil, fmt.Errorf("ssh handshake %s: %w", addr, err)
	}
	return ssh.NewClient(c, chans, reqs), nil
}

func isAuthFailure(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

func authMethods(creds host.Credentials) []ssh.AuthMethod {
	var methods []ssh.AuthMethod

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		conn, err := net.Dial("unix", sock)
		if err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if creds.KeyFile != "" {
		if m := keyFileAuth(expandHome(creds.KeyFile), creds.Password); m != nil {
			methods = append(methods, m)
		}
	} else if home, err := os.UserHomeDir(); err == nil {
		for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
			if m := keyFileAuth(filepath.Join(home, ".ssh", name), ""); m != nil {
				methods = append(methods, m)
			}
		}
	}

	if creds.Password != "" {
		methods = append(methods, ssh.Password(creds.Password))
	}
	return methods
}

// keyFileAuth loads a private key. passphrase unlocks an encrypted key.
func keyFileAuth(path, passphrase string) ssh.AuthMethod {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	signer, err := ssh.ParsePrivateKey(data)
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) && passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
	}
	if err != nil {
		return nil
	}
	return ssh.PublicKeys(signer)
}

func expandHome(path string) string {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}

func defaultHostKeyCallback() (ssh.HostKeyCallback, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return knownhosts.New(filepath.Join(home, ".ssh", "known_hosts"))
}
