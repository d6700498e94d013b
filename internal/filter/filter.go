// Package filter selects remote entries: name-prefix search filters and
// rsync-style include/exclude chains.
package filter

import (
	"strings"

	"github.com/bamsammich/ferry/internal/remote"
)

// Filter decides whether an entry is kept.
type Filter interface {
	Accept(p *remote.Path) bool
}

// Func adapts a function to Filter.
type Func func(p *remote.Path) bool

func (f Func) Accept(p *remote.Path) bool { return f(p) }

// All accepts every entry.
var All Filter = Func(func(*remote.Path) bool { return true })

// Prefix matches entries whose name starts with the search input,
// ignoring case. Substrings elsewhere in the name do not match.
type Prefix struct {
	input string
}

// NewPrefix returns a search filter for input.
func NewPrefix(input string) Prefix {
	return Prefix{input: strings.ToLower(input)}
}

func (f Prefix) Accept(p *remote.Path) bool {
	return strings.HasPrefix(strings.ToLower(p.Name()), f.input)
}

func (f Prefix) String() string { return f.input }

// Rule is a single include or exclude rule.
type Rule struct {
	Pattern *compiledPattern
	Include bool
}

// Chain holds ordered rules plus size bounds. The first matching rule wins;
// unmatched paths are included.
type Chain struct {
	rules   []Rule
	minSize int64
	maxSize int64
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

// AddExclude appends an exclude rule.
func (c *Chain) AddExclude(pattern string) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, Rule{Pattern: cp})
	return nil
}

// AddInclude appends an include rule.
func (c *Chain) AddInclude(pattern string) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, Rule{Pattern: cp, Include: true})
	return nil
}

func (c *Chain) SetMinSize(n int64) { c.minSize = n }
func (c *Chain) SetMaxSize(n int64) { c.maxSize = n }

// Empty reports whether the chain has no rules and no size bounds.
func (c *Chain) Empty() bool {
	return len(c.rules) == 0 && c.minSize == 0 && c.maxSize == 0
}

// Match reports whether relPath is kept. size is ignored for directories.
func (c *Chain) Match(relPath string, isDir bool, size int64) bool {
	if !isDir {
		if c.minSize > 0 && size < c.minSize {
			return false
		}
		if c.maxSize > 0 && size > c.maxSize {
			return false
		}
	}
	for _, rule := range c.rules {
		if rule.Pattern.match(relPath, isDir) {
			return rule.Include
		}
	}
	return true
}

// Under returns a Filter that matches entries by their path relative to root.
func (c *Chain) Under(root *remote.Path) Filter {
	return Func(func(p *remote.Path) bool {
		rel := strings.TrimPrefix(remote.Relativize(root.Abs(), p.Abs()), remote.Delimiter)
		return c.Match(rel, p.IsDirectory(), p.Attributes().Size)
	})
}
