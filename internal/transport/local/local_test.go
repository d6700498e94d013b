package local

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/checksum"
	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/filter"
	"github.com/bamsammich/ferry/internal/remote"
	"github.com/bamsammich/ferry/internal/transfer"
	"github.com/bamsammich/ferry/internal/transport"
)

func setupTestTree(t *testing.T) (*Backend, string) {
	t.Helper()
	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "deep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "file.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "nested.txt"), []byte("nested content"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "deep", "deep.txt"), []byte("deep"), 0o644))

	b := New(root)
	require.NoError(t, b.Open(context.Background()))
	return b, root
}

func upload(t *testing.T, b *Backend, p *remote.Path, data []byte, status *transfer.Status) (transfer.Reply, error) {
	t.Helper()
	status.Length = int64(len(data))
	return transfer.Upload(context.Background(), b, p, bytes.NewReader(data), status, transfer.Options{})
}

func TestOpenRequiresDirectory(t *testing.T) {
	t.Parallel()
	_, root := setupTestTree(t)
	assert.ErrorIs(t, New(filepath.Join(root, "missing")).Open(context.Background()), errdefs.ErrNotFound)
	assert.Error(t, New(filepath.Join(root, "file.txt")).Open(context.Background()))
}

func TestWriteCommitsAtomically(t *testing.T) {
	t.Parallel()
	b, root := setupTestTree(t)
	p := remote.Parse("/sub/new.txt", remote.File)
	ts := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

	status := transfer.NewStatus()
	status.Timestamp = ts
	reply, err := upload(t, b, p, []byte("payload"), status)
	require.NoError(t, err)
	assert.Equal(t, checksum.BLAKE3, reply.Checksum.Algorithm)
	assert.Equal(t, int64(7), reply.Size)

	got, err := os.ReadFile(filepath.Join(root, "sub", "new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
	info, err := os.Stat(filepath.Join(root, "sub", "new.txt"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(ts))

	entries, err := os.ReadDir(filepath.Join(root, "sub"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, transport.IsTempName(e.Name()), "temp file left behind: %s", e.Name())
	}
}

func TestWriteMismatchLeavesNothing(t *testing.T) {
	t.Parallel()
	b, root := setupTestTree(t)
	status := transfer.NewStatus()
	status.Checksum = checksum.New(checksum.SHA256, "0000000000000000000000000000000000000000000000000000000000000000")

	_, err := upload(t, b, remote.Parse("/bad.txt", remote.File), []byte("payload"), status)
	require.ErrorIs(t, err, errdefs.ErrChecksumMismatch)

	names, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, e := range names {
		assert.NotEqual(t, "bad.txt", e.Name())
		assert.False(t, transport.IsTempName(e.Name()))
	}
}

func TestWriteExpectedChecksum(t *testing.T) {
	t.Parallel()
	b, _ := setupTestTree(t)
	sum, err := checksum.Sum(checksum.SHA256, []byte("payload"))
	require.NoError(t, err)
	status := transfer.NewStatus()
	status.Checksum = sum

	_, err = upload(t, b, remote.Parse("/ok.txt", remote.File), []byte("payload"), status)
	require.NoError(t, err)
}

func TestWriteAppend(t *testing.T) {
	t.Parallel()
	b, root := setupTestTree(t)
	status := transfer.NewStatus()
	status.Append = true
	status.Offset = 5

	_, err := upload(t, b, remote.Parse("/file.txt", remote.File), []byte(" world"), status)
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(root, "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestReadWithOffset(t *testing.T) {
	t.Parallel()
	b, _ := setupTestTree(t)
	status := transfer.NewStatus()
	status.Offset = 7

	r, err := b.Read(context.Background(), remote.Parse("/sub/nested.txt", remote.File), status)
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "content", string(got))

	_, err = b.Read(context.Background(), remote.Parse("/nope", remote.File), transfer.NewStatus())
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestListSortedWithAttributes(t *testing.T) {
	t.Parallel()
	b, root := setupTestTree(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, transport.TempName("x")), nil, 0o644))

	list, err := b.List(context.Background(), remote.Root(), nil)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "file.txt", list[0].Name())
	assert.True(t, list[0].IsFile())
	assert.Equal(t, int64(5), list[0].Attributes().Size)
	assert.Equal(t, os.FileMode(0o644), list[0].Attributes().Permission)
	assert.Equal(t, "sub", list[1].Name())
	assert.True(t, list[1].IsDirectory())

	_, err = b.List(context.Background(), remote.Parse("/missing", remote.Directory), nil)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestSearchIsPrefixOnlyAndNonRecursive(t *testing.T) {
	t.Parallel()
	b, _ := setupTestTree(t)

	got, err := b.Search(context.Background(), remote.Root(), filter.NewPrefix("FI"), nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/file.txt", got[0].Abs())

	got, err = b.Search(context.Background(), remote.Root(), filter.NewPrefix("deep"), nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = b.Search(context.Background(), remote.Parse("/missing", remote.Directory), filter.All, nil)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestDeleteChildrenFirst(t *testing.T) {
	t.Parallel()
	b, root := setupTestTree(t)
	files := []*remote.Path{
		remote.Parse("/sub/deep/deep.txt", remote.File),
		remote.Parse("/sub/deep", remote.Directory),
	}
	var seen []string
	err := b.Delete(context.Background(), files, nil, feature.DeleteFunc(func(p *remote.Path) { seen = append(seen, p.Abs()) }))
	require.NoError(t, err)
	assert.Equal(t, []string{"/sub/deep/deep.txt", "/sub/deep"}, seen)
	assert.NoDirExists(t, filepath.Join(root, "sub", "deep"))

	err = b.Delete(context.Background(), []*remote.Path{remote.Parse("/sub", remote.Directory)}, nil, nil)
	assert.Error(t, err, "non-empty directory")
}

func TestAclRoundTrip(t *testing.T) {
	t.Parallel()
	b, root := setupTestTree(t)
	ctx := context.Background()
	acl := remote.AclFromMode(0o600)

	require.NoError(t, b.WriteAcl(ctx, remote.Parse("/sub", remote.Directory), remote.AclFromMode(0o700), true))
	info, err := os.Stat(filepath.Join(root, "sub", "deep", "deep.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	p := remote.Parse("/file.txt", remote.File)
	require.NoError(t, b.WriteAcl(ctx, p, acl, false))
	got, err := b.ReadAcl(ctx, p)
	require.NoError(t, err)
	assert.True(t, acl.Equal(got))
}

func TestMkdirAndStat(t *testing.T) {
	t.Parallel()
	b, _ := setupTestTree(t)
	ctx := context.Background()

	dir, err := b.Mkdir(ctx, remote.Parse("/made", remote.Directory), transfer.NewStatus())
	require.NoError(t, err)
	assert.True(t, dir.IsDirectory())
	_, err = b.Mkdir(ctx, remote.Parse("/made", remote.Directory), transfer.NewStatus())
	require.NoError(t, err)
	_, err = b.Mkdir(ctx, remote.Parse("/file.txt", remote.Directory), transfer.NewStatus())
	require.Error(t, err)

	attrs, err := b.Stat(ctx, remote.Parse("/sub/deep/deep.txt", remote.File))
	require.NoError(t, err)
	assert.Equal(t, int64(4), attrs.Size)
	_, err = b.Stat(ctx, remote.Parse("/nope", remote.File))
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}
