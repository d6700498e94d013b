package filter

import (
	"strings"

	"github.com/gobwas/glob"
)

// compiledPattern is an rsync-style glob compiled into one or more matchers.
type compiledPattern struct {
	globs    []glob.Glob
	original string
	anchored bool // matched against the whole relative path
	dirOnly  bool // trailing "/"
}

// compilePattern compiles an rsync-style glob. A leading "/" or any inner
// "/" anchors the pattern to the traversal root; otherwise it matches the
// final segments of a path. "**/" also matches zero directories.
func compilePattern(pattern string) (*compiledPattern, error) {
	cp := &compiledPattern{original: pattern}

	if strings.HasSuffix(pattern, "/") {
		cp.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		cp.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	} else if strings.Contains(pattern, "/") {
		cp.anchored = true
	}

	for _, variant := range expandDoubleStar(pattern) {
		g, err := glob.Compile(variant, '/')
		if err != nil {
			return nil, err
		}
		cp.globs = append(cp.globs, g)
	}
	return cp, nil
}

// expandDoubleStar returns pattern plus the variants with each "**/" removed,
// since gobwas requires "**/" to consume at least the separator.
func expandDoubleStar(pattern string) []string {
	i := strings.Index(pattern, "**/")
	if i < 0 {
		return []string{pattern}
	}
	head, tail := pattern[:i], pattern[i+3:]
	var out []string
	for _, rest := range expandDoubleStar(tail) {
		out = append(out, head+"**/"+rest, head+rest)
	}
	return out
}

func (cp *compiledPattern) match(relPath string, isDir bool) bool {
	if cp.dirOnly && !isDir {
		return false
	}
	if cp.anchored {
		return cp.matchAny(relPath)
	}
	// Unanchored: try every suffix that starts at a segment boundary.
	for s := relPath; ; {
		if cp.matchAny(s) {
			return true
		}
		i := strings.IndexByte(s, '/')
		if i < 0 {
			return false
		}
		s = s[i+1:]
	}
}

func (cp *compiledPattern) matchAny(s string) bool {
	for _, g := range cp.globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}
