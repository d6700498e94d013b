package transfer

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/bamsammich/ferry/internal/checksum"
)

// Reply is what the backend confirmed for a completed write.
type Reply struct {
	Size      int64
	Checksum  checksum.Checksum
	VersionID string
}

// StatusWriter is a sink bound to a pending backend response. Reply is valid
// only after Close returned nil.
type StatusWriter interface {
	io.WriteCloser
	Reply() Reply
}

// Aborter is implemented by sinks that can discard a write in progress.
type Aborter interface {
	Abort() error
}

// Committer is implemented by sinks whose Close only stages the object.
// Commit makes it addressable; Abort discards it.
type Committer interface {
	Aborter
	Commit() error
}

// NativeChecksummer is implemented by sinks whose backend reports a digest
// of its own in the Reply.
type NativeChecksummer interface {
	NativeChecksum() checksum.Algorithm
}

// ErrAborted is delivered to the backend side of a PipeWriter on Abort.
var ErrAborted = errors.New("write aborted")

// UploadFunc consumes the request body and returns the backend's reply.
type UploadFunc func(ctx context.Context, body io.Reader) (Reply, error)

// PipeWriter feeds an UploadFunc running on its own goroutine. Writes block
// until the backend consumes them.
type PipeWriter struct {
	pw     *io.PipeWriter
	done   chan struct{}
	reply  Reply
	err    error
	native checksum.Algorithm
	once   sync.Once
}

// NewPipeWriter starts upload and returns the sink feeding it. native is the
// algorithm of the digest the backend returns, or "" if none.
func NewPipeWriter(ctx context.Context, native checksum.Algorithm, upload UploadFunc) *PipeWriter {
	pr, pw := io.Pipe()
	w := &PipeWriter{pw: pw, done: make(chan struct{}), native: native}
	go func() {
		defer close(w.done)
		w.reply, w.err = upload(ctx, pr)
		if w.err != nil {
			pr.CloseWithError(w.err)
			return
		}
		pr.Close()
	}()
	return w
}

func (w *PipeWriter) Write(p []byte) (int, error) { return w.pw.Write(p) }

// Close signals end of body and waits for the backend reply.
func (w *PipeWriter) Close() error {
	w.once.Do(func() { w.pw.Close() })
	<-w.done
	return w.err
}

// Abort fails the body stream so the backend discards the request.
func (w *PipeWriter) Abort() error {
	w.once.Do(func() { w.pw.CloseWithError(ErrAborted) })
	<-w.done
	return nil
}

func (w *PipeWriter) Reply() Reply { return w.reply }

func (w *PipeWriter) NativeChecksum() checksum.Algorithm { return w.native }

var (
	_ StatusWriter      = (*PipeWriter)(nil)
	_ Aborter           = (*PipeWriter)(nil)
	_ NativeChecksummer = (*PipeWriter)(nil)
)
