package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/remote"
)

func TestPrefixMatchesNameStartOnly(t *testing.T) {
	dir := remote.Parse("/search", remote.Directory)
	f := NewPrefix("Trip")

	assert.True(t, f.Accept(remote.New(dir, "trip-report.pdf", remote.File)))
	assert.True(t, f.Accept(remote.New(dir, "TRIP", remote.File)))
	assert.False(t, f.Accept(remote.New(dir, "roadtrip.pdf", remote.File)))
	assert.False(t, f.Accept(remote.New(dir, "tri", remote.File)))
	assert.Equal(t, "trip", f.String())
}

func TestPrefixIgnoresParentSegments(t *testing.T) {
	f := NewPrefix("photos")
	assert.False(t, f.Accept(remote.Parse("/photos/beach.jpg", remote.File)))
}

func TestAllAndFunc(t *testing.T) {
	p := remote.Parse("/x", remote.File)
	assert.True(t, All.Accept(p))
	assert.False(t, Func(func(*remote.Path) bool { return false }).Accept(p))
}

func TestChainMatch(t *testing.T) {
	tests := []struct {
		name  string
		rules func(c *Chain)
		path  string
		isDir bool
		size  int64
		want  bool
	}{
		{name: "empty chain", rules: func(*Chain) {}, path: "any/file.txt", want: true},
		{name: "exclude basename", rules: func(c *Chain) { require.NoError(t, c.AddExclude("*.log")) }, path: "sub/debug.log"},
		{
			name: "include before exclude wins",
			rules: func(c *Chain) {
				require.NoError(t, c.AddInclude("important.log"))
				require.NoError(t, c.AddExclude("*.log"))
			},
			path: "important.log", want: true,
		},
		{
			name: "exclude before include wins",
			rules: func(c *Chain) {
				require.NoError(t, c.AddExclude("*.log"))
				require.NoError(t, c.AddInclude("important.log"))
			},
			path: "important.log",
		},
		{name: "dir only skips files", rules: func(c *Chain) { require.NoError(t, c.AddExclude("build/")) }, path: "build", want: true},
		{name: "dir only hits dirs", rules: func(c *Chain) { require.NoError(t, c.AddExclude("build/")) }, path: "build", isDir: true},
		{name: "min size", rules: func(c *Chain) { c.SetMinSize(100) }, path: "tiny", size: 50},
		{name: "max size", rules: func(c *Chain) { c.SetMaxSize(100) }, path: "huge", size: 500},
		{name: "size ignored for dirs", rules: func(c *Chain) { c.SetMaxSize(1) }, path: "d", isDir: true, size: 500, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChain()
			tt.rules(c)
			assert.Equal(t, tt.want, c.Match(tt.path, tt.isDir, tt.size))
		})
	}
}

func TestChainUnder(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddExclude("/cache/"))
	require.NoError(t, c.AddExclude("*.tmp"))

	root := remote.Parse("/home/user", remote.Directory)
	f := c.Under(root)

	assert.False(t, f.Accept(remote.Parse("/home/user/cache", remote.Directory)))
	assert.True(t, f.Accept(remote.Parse("/home/user/src/cache", remote.Directory)))
	assert.False(t, f.Accept(remote.Parse("/home/user/a/b.tmp", remote.File)))
	assert.True(t, f.Accept(remote.Parse("/home/user/a/b.txt", remote.File)))
	assert.False(t, c.Empty())
}
