//go:build linux

package local

import (
	"os"

	"golang.org/x/sys/unix"
)

// preallocate reserves n bytes for f without changing its size. Not every
// filesystem supports it; failures are ignored.
//
//nolint:gosec // G115: fd values are small non-negative integers
func preallocate(f *os.File, n int64) {
	//nolint:errcheck // fallocate is advisory
	unix.Fallocate(int(f.Fd()), unix.FALLOC_FL_KEEP_SIZE, 0, n)
}
