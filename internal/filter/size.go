package filter

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// ParseSize parses a size such as 512, 100K, 1.5M, 10MB or 2GiB into bytes.
// Single-letter suffixes use powers of 1024 as rsync does; longer units
// follow go-humanize (KB is 1000, KiB is 1024).
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}
	switch strings.ToUpper(s[len(s)-1:]) {
	case "K", "M", "G", "T":
		s += "iB"
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size: %q", s)
	}
	return int64(n), nil //nolint:gosec // sizes beyond int64 are rejected by humanize overflow
}
