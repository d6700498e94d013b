package ui

import (
	"os"

	"golang.org/x/term"
)

// Terminal reports whether f is a terminal and, if so, its width in
// columns. The width falls back to 80 when the size cannot be read, and is
// 0 when f is not a terminal.
func Terminal(f *os.File) (tty bool, width int) {
	if f == nil {
		return false, 0
	}
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return false, 0
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return true, 80
	}
	return true, w
}
