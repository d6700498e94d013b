// Package remote models remote entries: paths with immutable identity and a
// separate mutable attribute record.
package remote

import (
	"path"
	"sort"
	"strings"
	"sync"
)

// Delimiter separates path segments in absolute identifiers.
const Delimiter = "/"

// Type is a bitset of entry kinds.
type Type uint8

const (
	File Type = 1 << iota
	Directory
	Volume
	Symlink
)

func (t Type) String() string {
	var parts []string
	for _, n := range []struct {
		t    Type
		name string
	}{{File, "file"}, {Directory, "directory"}, {Volume, "volume"}, {Symlink, "symlink"}} {
		if t&n.t != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "|")
}

// Path identifies a remote entry. Name, parent and type never change after
// construction; attributes are a side record updated as remote state is
// discovered.
type Path struct {
	parent *Path
	name   string
	typ    Type
	abs    string

	mu    sync.RWMutex
	attrs Attributes
}

// Root returns the root directory "/".
func Root() *Path {
	return &Path{typ: Directory | Volume, abs: Delimiter}
}

// New returns a child of parent. A nil parent is the root.
func New(parent *Path, name string, typ Type) *Path {
	if parent == nil {
		parent = Root()
	}
	name = strings.Trim(name, Delimiter)
	abs := parent.abs + Delimiter + name
	if parent.IsRoot() {
		abs = Delimiter + name
	}
	return &Path{parent: parent, name: name, typ: typ, abs: abs}
}

// Parse builds a path from an absolute identifier, creating directory
// parents for every intermediate segment.
func Parse(abs string, typ Type) *Path {
	clean := path.Clean(Delimiter + abs)
	if clean == Delimiter {
		return Root()
	}
	segs := strings.Split(strings.TrimPrefix(clean, Delimiter), Delimiter)
	p := Root()
	for i, seg := range segs {
		t := Directory
		if i == len(segs)-1 {
			t = typ
		}
		p = New(p, seg, t)
	}
	return p
}

// WithAttributes returns p after seeding its attribute record. It is meant
// for construction sites such as listings.
func (p *Path) WithAttributes(a Attributes) *Path {
	p.SetAttributes(a)
	return p
}

func (p *Path) Name() string   { return p.name }
func (p *Path) Parent() *Path  { return p.parent }
func (p *Path) Type() Type     { return p.typ }
func (p *Path) Abs() string    { return p.abs }
func (p *Path) String() string { return p.abs }

// Key is the identity used for equality and map keys.
func (p *Path) Key() string { return p.abs }

func (p *Path) IsRoot() bool      { return p.parent == nil }
func (p *Path) IsFile() bool      { return p.typ&File != 0 }
func (p *Path) IsDirectory() bool { return p.typ&(Directory|Volume) != 0 }
func (p *Path) IsVolume() bool    { return p.typ&Volume != 0 }
func (p *Path) IsSymlink() bool   { return p.typ&Symlink != 0 }

// Equal compares absolute identifiers; attributes and type tags are ignored.
func (p *Path) Equal(o *Path) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.abs == o.abs
}

// IsChild reports whether p lies strictly beneath dir.
func (p *Path) IsChild(dir *Path) bool {
	if dir.IsRoot() {
		return !p.IsRoot()
	}
	return strings.HasPrefix(p.abs, dir.abs+Delimiter)
}

// Volume returns the top-level ancestor of p (the bucket or container for
// object stores), or nil for the root.
func (p *Path) Volume() *Path {
	if p.IsRoot() {
		return nil
	}
	v := p
	for !v.parent.IsRoot() {
		v = v.parent
	}
	return v
}

// Segments returns the names from the root down to p.
func (p *Path) Segments() []string {
	if p.IsRoot() {
		return nil
	}
	return strings.Split(strings.TrimPrefix(p.abs, Delimiter), Delimiter)
}

// Attributes returns a copy of the attribute record.
func (p *Path) Attributes() Attributes {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.attrs.clone()
}

// SetAttributes replaces the attribute record.
func (p *Path) SetAttributes(a Attributes) {
	p.mu.Lock()
	p.attrs = a.clone()
	p.mu.Unlock()
}

// UpdateAttributes mutates the attribute record under lock.
func (p *Path) UpdateAttributes(fn func(*Attributes)) {
	p.mu.Lock()
	fn(&p.attrs)
	p.mu.Unlock()
}

// List is an ordered collection of entries.
type List []*Path

// Sort orders entries lexicographically by name.
func (l List) Sort() {
	sort.SliceStable(l, func(i, j int) bool { return l[i].name < l[j].name })
}

// Contains reports whether l holds an entry equal to p.
func (l List) Contains(p *Path) bool {
	return l.Find(p) != nil
}

// Find returns the entry equal to p, or nil.
func (l List) Find(p *Path) *Path {
	for _, e := range l {
		if e.Equal(p) {
			return e
		}
	}
	return nil
}

// Filter returns the entries accepted by keep.
func (l List) Filter(keep func(*Path) bool) List {
	out := make(List, 0, len(l))
	for _, e := range l {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Relativize returns p relative to root, keeping a leading delimiter. Paths
// outside root are returned unchanged.
func Relativize(root, p string) string {
	root = strings.TrimSuffix(root, Delimiter)
	if root == "" {
		return p
	}
	if p == root {
		return Delimiter
	}
	if strings.HasPrefix(p, root+Delimiter) {
		return p[len(root):]
	}
	return p
}
