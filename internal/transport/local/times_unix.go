//go:build unix

package local

import (
	"time"

	"golang.org/x/sys/unix"
)

// setTimes sets the access and modification times without following a
// trailing symlink.
func setTimes(path string, ts time.Time) error {
	t := unix.NsecToTimespec(ts.UnixNano())
	return unix.UtimesNanoAt(unix.AT_FDCWD, path, []unix.Timespec{t, t}, unix.AT_SYMLINK_NOFOLLOW)
}
