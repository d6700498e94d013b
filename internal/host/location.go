package host

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultS3Hostname is used for s3:// locations without an explicit endpoint.
const DefaultS3Hostname = "s3.amazonaws.com"

// Location is a parsed CLI argument: a bookmark plus the path on it.
type Location struct {
	Host Host
	Path string
}

func (l Location) String() string {
	h := l.Host
	h.DefaultPath = l.Path
	return h.String()
}

// IsRemote reports whether the location leaves the local machine.
func (l Location) IsRemote() bool {
	return l.Host.Protocol != ProtocolLocal && l.Host.Protocol != ProtocolMemory
}

// ParseLocation parses a CLI argument.
//
// Supported formats:
//   - /absolute/path, relative/path, file:///path  → local
//   - sftp://[user[:password]@]host[:port]/path     → SFTP
//   - user@host:path, host:path                     → SFTP (scp syntax)
//   - s3://bucket/key                               → S3; bucket is the first path segment
//   - mem://name/path                               → in-process memory backend
//
// A bare word with no colon is always local. A colon only introduces a host
// when the part before it contains no path separator.
func ParseLocation(arg string) (Location, error) {
	if i := strings.Index(arg, "://"); i > 0 {
		return parseURL(arg)
	}

	local := Location{Host: Host{Protocol: ProtocolLocal}, Path: arg}

	if filepath.IsAbs(arg) || strings.HasPrefix(arg, "./") || strings.HasPrefix(arg, "../") {
		return local, nil
	}

	colon := strings.IndexByte(arg, ':')
	if colon <= 0 {
		return local, nil
	}
	hostPart, pathPart := arg[:colon], arg[colon+1:]
	if strings.ContainsRune(hostPart, '/') || strings.ContainsRune(hostPart, filepath.Separator) {
		return local, nil
	}

	var user, hostname string
	if at := strings.LastIndexByte(hostPart, '@'); at >= 0 {
		user, hostname = hostPart[:at], hostPart[at+1:]
	} else {
		hostname = hostPart
	}
	if hostname == "" {
		return local, nil
	}

	return Location{
		Host: Host{Protocol: ProtocolSFTP, Hostname: hostname, Credentials: Credentials{User: user}},
		Path: pathPart,
	}, nil
}

func parseURL(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parse location %q: %w", raw, err)
	}

	proto := Protocol(strings.ToLower(u.Scheme))
	p := u.Path
	if p == "" {
		p = "/"
	}

	switch proto {
	case ProtocolLocal:
		return Location{Host: Host{Protocol: ProtocolLocal}, Path: p}, nil

	case ProtocolMemory:
		return Location{Host: Host{Protocol: ProtocolMemory, Hostname: u.Host}, Path: p}, nil

	case ProtocolS3:
		// The URL host is the bucket; the endpoint comes from configuration.
		if u.Host == "" {
			return Location{}, fmt.Errorf("s3 location %q: missing bucket", raw)
		}
		return Location{
			Host: Host{Protocol: ProtocolS3, Hostname: DefaultS3Hostname},
			Path: path.Join("/", u.Host, p),
		}, nil

	case ProtocolSFTP:
		h := Host{Protocol: ProtocolSFTP, Hostname: u.Hostname()}
		if h.Hostname == "" {
			return Location{}, fmt.Errorf("sftp location %q: missing host", raw)
		}
		if port := u.Port(); port != "" {
			h.Port, err = strconv.Atoi(port)
			if err != nil {
				return Location{}, fmt.Errorf("sftp location %q: bad port: %w", raw, err)
			}
		}
		if u.User != nil {
			h.Credentials.User = u.User.Username()
			h.Credentials.Password, _ = u.User.Password()
		}
		return Location{Host: h, Path: p}, nil

	default:
		return Location{}, fmt.Errorf("unsupported protocol %q", u.Scheme)
	}
}
