// Package host describes backend bookmarks: protocol, endpoint and
// credentials.
package host

import (
	"fmt"
	"net"
	"strconv"
)

// Protocol names a backend family.
type Protocol string

const (
	ProtocolLocal  Protocol = "file"
	ProtocolSFTP   Protocol = "sftp"
	ProtocolS3     Protocol = "s3"
	ProtocolMemory Protocol = "mem"
)

// DefaultPort returns the well-known port for p, or 0.
func (p Protocol) DefaultPort() int {
	switch p {
	case ProtocolSFTP:
		return 22
	case ProtocolS3:
		return 443
	default:
		return 0
	}
}

// Credentials authenticate against a host. For S3, User is the access key
// id and Password the secret key.
type Credentials struct {
	User     string
	Password string
	Token    string
	KeyFile  string
}

// IsAnonymous reports whether no user is set.
func (c Credentials) IsAnonymous() bool { return c.User == "" }

// Validate reports whether enough is set to attempt a login.
func (c Credentials) Validate(p Protocol) bool {
	switch p {
	case ProtocolSFTP:
		return c.User != "" && (c.Password != "" || c.KeyFile != "")
	case ProtocolS3:
		return c.IsAnonymous() || c.Password != ""
	default:
		return true
	}
}

// Host is a bookmark for one backend.
type Host struct {
	Protocol    Protocol
	Hostname    string
	Port        int
	Credentials Credentials
	DefaultPath string
	Region      string
}

// Addr returns hostname:port, substituting the protocol default port.
func (h Host) Addr() string {
	port := h.Port
	if port == 0 {
		port = h.Protocol.DefaultPort()
	}
	return net.JoinHostPort(h.Hostname, strconv.Itoa(port))
}

func (h Host) String() string {
	switch h.Protocol {
	case ProtocolLocal:
		return "file://" + h.DefaultPath
	case ProtocolMemory:
		return "mem://" + h.Hostname + h.DefaultPath
	}
	user := ""
	if h.Credentials.User != "" && h.Protocol != ProtocolS3 {
		user = h.Credentials.User + "@"
	}
	if h.Port != 0 && h.Port != h.Protocol.DefaultPort() {
		return fmt.Sprintf("%s://%s%s:%d%s", h.Protocol, user, h.Hostname, h.Port, h.DefaultPath)
	}
	return fmt.Sprintf("%s://%s%s%s", h.Protocol, user, h.Hostname, h.DefaultPath)
}
