package filter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Load reads rules into the chain, one per line:
//
//	+ pattern        include
//	- pattern        exclude
//	include pattern  include
//	exclude pattern  exclude
//	pattern          exclude
//
// Blank lines and lines starting with # are skipped.
func (c *Chain) Load(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		include, pattern := false, line
		for prefix, inc := range map[string]bool{"+ ": true, "- ": false, "include ": true, "exclude ": false} {
			if rest, ok := strings.CutPrefix(line, prefix); ok {
				include, pattern = inc, strings.TrimSpace(rest)
				break
			}
		}

		add := c.AddExclude
		if include {
			add = c.AddInclude
		}
		if err := add(pattern); err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}
	}
	return scanner.Err()
}

// LoadFile reads rules from path.
func (c *Chain) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open filter file: %w", err)
	}
	defer f.Close()
	if err := c.Load(f); err != nil {
		return fmt.Errorf("filter file %s: %w", path, err)
	}
	return nil
}
