package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/checksum"
	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/remote"
)

type fakeWriter struct{ sink *stagingSink }

func (f *fakeWriter) Write(_ context.Context, p *remote.Path, status *Status) (StatusWriter, error) {
	return Verify(p.Abs(), status, f.sink), nil
}

type fakeReader struct{ data []byte }

func (f *fakeReader) Read(_ context.Context, _ *remote.Path, status *Status) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data[status.Offset:])), nil
}

type countingListener struct{ sent, received atomic.Int64 }

func (c *countingListener) Sent(n int64)     { c.sent.Add(n) }
func (c *countingListener) Received(n int64) { c.received.Add(n) }

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestUploadUpdatesAttributes(t *testing.T) {
	data := strings.Repeat("x", 100_000)
	p := remote.Parse("/bucket/obj", remote.File)
	status := NewStatus()
	status.Length = int64(len(data))
	status.MimeType = "text/plain"
	status.StorageClass = "REDUCED_REDUNDANCY"

	listener := &countingListener{}
	w := &fakeWriter{sink: &stagingSink{}}
	reply, err := Upload(context.Background(), w, p, strings.NewReader(data), status, Options{Listener: listener})
	require.NoError(t, err)

	assert.Equal(t, int64(len(data)), reply.Size)
	assert.Equal(t, int64(len(data)), listener.sent.Load())
	attrs := p.Attributes()
	assert.Equal(t, int64(len(data)), attrs.Size)
	assert.Equal(t, "text/plain", attrs.MimeType)
	assert.Equal(t, "REDUCED_REDUNDANCY", attrs.StorageClass)
	assert.Equal(t, reply.Checksum, attrs.Checksum)
}

func TestUploadSourceFailureAborts(t *testing.T) {
	sink := &stagingSink{}
	_, err := Upload(context.Background(), &fakeWriter{sink: sink}, remote.Parse("/f", remote.File),
		failingReader{}, NewStatus(), Options{})
	require.Error(t, err)
	assert.True(t, sink.aborted)
	assert.Zero(t, sink.commits)
}

func TestUploadCanceledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &stagingSink{}
	_, err := Upload(ctx, &fakeWriter{sink: sink}, remote.Parse("/f", remote.File),
		strings.NewReader("data"), NewStatus(), Options{})
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, sink.aborted)
}

func TestDownloadVerifies(t *testing.T) {
	data := []byte("download me")
	p := remote.Parse("/f", remote.File)

	status := NewStatus()
	status.Length = int64(len(data))
	status.Checksum = sum(t, checksum.MD5, data)

	var out bytes.Buffer
	listener := &countingListener{}
	n, err := Download(context.Background(), &fakeReader{data: data}, p, &out, status, Options{Listener: listener})
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, data, out.Bytes())
	assert.Equal(t, n, listener.received.Load())

	status.Checksum = sum(t, checksum.MD5, []byte("other"))
	out.Reset()
	_, err = Download(context.Background(), &fakeReader{data: data}, p, &out, status, Options{})
	assert.ErrorIs(t, err, errdefs.ErrChecksumMismatch)
}

func TestDownloadResumeSkipsVerification(t *testing.T) {
	data := []byte("0123456789")
	status := NewStatus()
	status.Length = int64(len(data))
	status.Offset = 4
	status.Checksum = sum(t, checksum.MD5, []byte("unrelated"))

	var out bytes.Buffer
	n, err := Download(context.Background(), &fakeReader{data: data}, remote.Parse("/f", remote.File), &out, status, Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
	assert.Equal(t, "456789", out.String())
}

func TestThrottle(t *testing.T) {
	assert.Nil(t, NewBandwidthLimiter(0))

	r := strings.NewReader("abc")
	assert.Same(t, r, Throttle(context.Background(), r, nil))

	limiter := NewBandwidthLimiter(1 << 30)
	require.NotNil(t, limiter)
	got, err := io.ReadAll(Throttle(context.Background(), strings.NewReader("throttled"), limiter))
	require.NoError(t, err)
	assert.Equal(t, "throttled", string(got))

	small := NewBandwidthLimiter(512)
	assert.Equal(t, 512, small.Burst())
}

func TestStatusClone(t *testing.T) {
	s := NewStatus()
	assert.False(t, s.HasLength())
	s.Metadata = map[string]string{"k": "v"}
	c := s.Clone()
	c.Metadata["k"] = "changed"
	c.Length = 3
	assert.Equal(t, "v", s.Metadata["k"])
	assert.Equal(t, UnknownLength, s.Length)
}
