package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/checksum"
	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/remote"
	"github.com/bamsammich/ferry/internal/stats"
	"github.com/bamsammich/ferry/internal/transfer"
	"github.com/bamsammich/ferry/internal/transport/memory"
)

func sha256Of(t *testing.T, s string) checksum.Checksum {
	t.Helper()
	c, err := checksum.Sum(checksum.SHA256, []byte(s))
	require.NoError(t, err)
	return c
}

func TestUploadFillsLengthFromFile(t *testing.T) {
	t.Parallel()
	src := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))
	b := memory.New()
	b.Put("/bucket/.keep", nil)

	events := make(chan event.Event, 8)
	collector := stats.NewCollector()
	w := &Upload{
		Source:  src,
		Target:  remote.Parse("/bucket/a.txt", remote.File),
		Writer:  b,
		Options: transfer.Options{Listener: collector},
		Events:  events,
	}
	task := Start[transfer.Reply](context.Background(), w)
	reply, err := task.Wait()
	require.NoError(t, err)

	assert.Equal(t, int64(5), reply.Size)
	assert.Equal(t, "Uploading a.txt", task.Activity())
	got, ok := b.Get("/bucket/a.txt")
	require.True(t, ok)
	assert.Equal(t, "hello", string(got))
	assert.Equal(t, int64(5), collector.Snapshot().BytesMoved)

	var types []event.Type
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	assert.Equal(t, []event.Type{event.FileStarted, event.FileCompleted}, types)
}

func TestUploadChecksumMismatchReportsFailure(t *testing.T) {
	t.Parallel()
	src := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))
	b := memory.New()
	b.Put("/bucket/.keep", nil)

	status := transfer.NewStatus()
	status.Checksum = sha256Of(t, "other")
	events := make(chan event.Event, 8)
	_, err := Start[transfer.Reply](context.Background(), &Upload{
		Source: src,
		Target: remote.Parse("/bucket/a.txt", remote.File),
		Writer: b,
		Status: status,
		Events: events,
	}).Wait()
	require.ErrorIs(t, err, errdefs.ErrChecksumMismatch)

	_, ok := b.Get("/bucket/a.txt")
	assert.False(t, ok)
	<-events
	failed := <-events
	assert.Equal(t, event.FileFailed, failed.Type)
	assert.Equal(t, "/bucket/a.txt", failed.Path)
}

func TestUploadMissingSource(t *testing.T) {
	t.Parallel()
	_, err := Start[transfer.Reply](context.Background(), &Upload{
		Source: filepath.Join(t.TempDir(), "missing"),
		Target: remote.Parse("/bucket/a.txt", remote.File),
		Writer: memory.New(),
	}).Wait()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDownloadReplacesTargetOnSuccess(t *testing.T) {
	t.Parallel()
	b := memory.New()
	b.Put("/bucket/a.txt", []byte("fresh"))
	target := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(target, []byte("stale"), 0o644))

	n, err := Start[int64](context.Background(), &Download{
		Source: remote.Parse("/bucket/a.txt", remote.File),
		Target: target,
		Reader: b,
	}).Wait()
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(got))
	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDownloadMismatchKeepsTarget(t *testing.T) {
	t.Parallel()
	b := memory.New()
	b.Put("/bucket/a.txt", []byte("fresh"))
	target := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(target, []byte("stale"), 0o644))

	status := transfer.NewStatus()
	status.Checksum = sha256Of(t, "other")
	_, err := Start[int64](context.Background(), &Download{
		Source: remote.Parse("/bucket/a.txt", remote.File),
		Target: target,
		Reader: b,
		Status: status,
	}).Wait()
	require.ErrorIs(t, err, errdefs.ErrChecksumMismatch)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "stale", string(got))
	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
