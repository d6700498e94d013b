//go:build !linux

package local

import "os"

func preallocate(*os.File, int64) {}
