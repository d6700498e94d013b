package transfer

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"io"

	"golang.org/x/time/rate"

	"github.com/bamsammich/ferry/internal/checksum"
	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/remote"
)

// Writer opens a verified sink for p. feature.Write satisfies it.
type Writer interface {
	Write(ctx context.Context, p *remote.Path, status *Status) (StatusWriter, error)
}

// Reader opens a byte stream for p. feature.Read satisfies it.
type Reader interface {
	Read(ctx context.Context, p *remote.Path, status *Status) (io.ReadCloser, error)
}

// StreamListener observes bytes as they move.
type StreamListener interface {
	Sent(n int64)
	Received(n int64)
}

// DisabledStreamListener ignores progress.
type DisabledStreamListener struct{}

func (DisabledStreamListener) Sent(int64)     {}
func (DisabledStreamListener) Received(int64) {}

const copyBufferSize = 32 * 1024

// Options tune Upload and Download.
type Options struct {
	Limiter  *rate.Limiter
	Listener StreamListener
}

func (o Options) listener() StreamListener {
	if o.Listener == nil {
		return DisabledStreamListener{}
	}
	return o.Listener
}

// Upload streams src to p through w. The returned Reply comes from a
// verified Close; on any copy failure the sink is aborted.
func Upload(ctx context.Context, w Writer, p *remote.Path, src io.Reader, status *Status, opts Options) (Reply, error) {
	sink, err := w.Write(ctx, p, status)
	if err != nil {
		return Reply{}, fmt.Errorf("open %s: %w", p, err)
	}

	listener := opts.listener()
	in := Throttle(ctx, src, opts.Limiter)
	buf := make([]byte, copyBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			abortSink(sink)
			return Reply{}, err
		}
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := sink.Write(buf[:n]); werr != nil {
				abortSink(sink)
				return Reply{}, fmt.Errorf("upload %s: %w", p, werr)
			}
			listener.Sent(int64(n))
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			abortSink(sink)
			return Reply{}, fmt.Errorf("upload %s: read source: %w", p, rerr)
		}
	}

	if err := sink.Close(); err != nil {
		return Reply{}, err
	}
	reply := sink.Reply()
	p.UpdateAttributes(func(a *remote.Attributes) {
		a.Size = reply.Size
		a.Checksum = reply.Checksum
		a.VersionID = reply.VersionID
		if status.MimeType != "" {
			a.MimeType = status.MimeType
		}
		if status.StorageClass != "" {
			a.StorageClass = status.StorageClass
		}
	})
	return reply, nil
}

func abortSink(sink StatusWriter) {
	if a, ok := sink.(Aborter); ok {
		_ = a.Abort()
		return
	}
	_ = sink.Close()
}

// Download copies p to dst through r and returns the number of bytes
// written. When status carries a checksum and the whole object is read, the
// received bytes are verified against it.
func Download(ctx context.Context, r Reader, p *remote.Path, dst io.Writer, status *Status, opts Options) (int64, error) {
	body, err := r.Read(ctx, p, status)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", p, err)
	}
	defer body.Close()

	var h hash.Hash
	out := dst
	verify := !status.Checksum.IsNone() && status.Offset == 0
	if verify {
		h, err = checksum.NewHasher(status.Checksum.Algorithm)
		if err != nil {
			return 0, err
		}
		out = io.MultiWriter(dst, h)
	}

	listener := opts.listener()
	in := Throttle(ctx, body, opts.Limiter)
	buf := make([]byte, copyBufferSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return total, fmt.Errorf("download %s: %w", p, werr)
			}
			total += int64(n)
			listener.Received(int64(n))
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return total, fmt.Errorf("download %s: %w", p, rerr)
		}
	}

	if status.HasLength() && total != status.Length-status.Offset {
		return total, fmt.Errorf("%w: %s received %d of %d bytes", errdefs.ErrLengthMismatch, p, total, status.Length-status.Offset)
	}
	if verify {
		if got := checksum.FromHash(status.Checksum.Algorithm, h); !got.Equal(status.Checksum) {
			return total, &errdefs.ChecksumError{Path: p.Abs(), Expected: status.Checksum.String(), Actual: got.String()}
		}
	}
	return total, nil
}
