//go:build !unix

package local

import (
	"os"
	"time"
)

func setTimes(path string, ts time.Time) error {
	return os.Chtimes(path, ts, ts)
}
