package transfer

import (
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"sync"

	"github.com/bamsammich/ferry/internal/checksum"
	"github.com/bamsammich/ferry/internal/errdefs"
)

// DefaultAlgorithm digests writes that declare no expected checksum.
const DefaultAlgorithm = checksum.SHA256

var errClosed = errors.New("write on closed sink")

// VerifyingWriter digests bytes on their way to a backend sink and checks
// them once on Close.
//
// The digest covers exactly the bytes the sink accepted. Close first checks
// the declared length and checksum and aborts the sink before the backend
// confirms anything, so a mismatch never produces a named object. It then
// closes the sink, compares the backend-reported digest, and commits staging
// sinks (see Committer). A backend digest mismatch on a sink without a commit
// step leaves the object in place until Abort's best-effort cleanup runs.
type VerifyingWriter struct {
	dst      StatusWriter
	path     string
	expected checksum.Checksum
	length   int64
	primary  checksum.Algorithm
	hashers  map[checksum.Algorithm]hash.Hash
	hash     io.Writer
	logger   *slog.Logger

	written  int64
	writeErr error
	reply    Reply

	once      sync.Once
	closed    bool
	dstClosed bool
	closeErr  error
}

// Verify wraps dst so that Close fails with a *errdefs.ChecksumError when the
// transmitted bytes disagree with status or with the backend.
func Verify(path string, status *Status, dst StatusWriter) *VerifyingWriter {
	v := &VerifyingWriter{
		dst:      dst,
		path:     path,
		expected: status.Checksum,
		length:   status.Length,
		hashers:  make(map[checksum.Algorithm]hash.Hash),
		logger:   slog.Default(),
	}

	algs := []checksum.Algorithm{}
	if !status.Checksum.IsNone() {
		algs = append(algs, status.Checksum.Algorithm)
	}
	if n, ok := dst.(NativeChecksummer); ok && n.NativeChecksum() != "" {
		algs = append(algs, n.NativeChecksum())
	}
	if len(algs) == 0 {
		algs = append(algs, DefaultAlgorithm)
	}
	v.primary = algs[0]

	writers := make([]io.Writer, 0, len(algs))
	for _, alg := range algs {
		if _, dup := v.hashers[alg]; dup {
			continue
		}
		h, err := checksum.NewHasher(alg)
		if err != nil {
			// Unknown algorithm tags cannot be verified; fail on Close.
			v.writeErr = err
			continue
		}
		v.hashers[alg] = h
		writers = append(writers, h)
	}
	v.hash = io.MultiWriter(writers...)
	return v
}

// WithLogger sets the logger used for verification results.
func (v *VerifyingWriter) WithLogger(l *slog.Logger) *VerifyingWriter {
	if l != nil {
		v.logger = l
	}
	return v
}

// Write forwards p to the sink and digests exactly the bytes it accepted.
func (v *VerifyingWriter) Write(p []byte) (int, error) {
	if v.closed {
		return 0, errClosed
	}
	n, err := v.dst.Write(p)
	if n > 0 {
		_, _ = v.hash.Write(p[:n])
		v.written += int64(n)
	}
	if err != nil && v.writeErr == nil {
		v.writeErr = err
	}
	return n, err
}

// Written returns the number of bytes the sink accepted so far.
func (v *VerifyingWriter) Written() int64 { return v.written }

// Close flushes the sink, awaits the backend reply and verifies. It runs
// once; later calls return the first result.
func (v *VerifyingWriter) Close() error {
	v.once.Do(func() {
		v.closed = true
		v.closeErr = v.finish()
	})
	return v.closeErr
}

// Abort discards the write without verifying.
func (v *VerifyingWriter) Abort() error {
	var err error
	v.once.Do(func() {
		v.closed = true
		v.closeErr = fmt.Errorf("write %s: %w", v.path, ErrAborted)
		err = v.abort()
	})
	return err
}

// Reply returns the backend reply, with the computed digest filled in when
// the backend reported none. Valid after Close returned nil.
func (v *VerifyingWriter) Reply() Reply { return v.reply }

func (v *VerifyingWriter) finish() error {
	if v.writeErr != nil {
		_ = v.abort()
		return fmt.Errorf("write %s: %w", v.path, v.writeErr)
	}

	computed := make(map[checksum.Algorithm]checksum.Checksum, len(v.hashers))
	for alg, h := range v.hashers {
		computed[alg] = checksum.FromHash(alg, h)
	}

	if err := v.checkTransmitted(computed); err != nil {
		return v.fail(err)
	}

	err := v.dst.Close()
	v.dstClosed = true
	if err != nil {
		_ = v.abort()
		return fmt.Errorf("close %s: %w", v.path, err)
	}
	v.reply = v.dst.Reply()

	if err := v.checkReply(computed); err != nil {
		return v.fail(err)
	}

	if c, ok := v.dst.(Committer); ok {
		if err := c.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", v.path, err)
		}
	}
	v.logger.Debug("transfer verified", "path", v.path, "checksum", v.reply.Checksum.String(), "size", v.written)
	return nil
}

func (v *VerifyingWriter) fail(err error) error {
	v.logger.Warn("transfer verification failed", "path", v.path, "error", err)
	_ = v.abort()
	return err
}

// checkTransmitted compares the declared length and checksum with what was
// actually written.
func (v *VerifyingWriter) checkTransmitted(computed map[checksum.Algorithm]checksum.Checksum) error {
	if v.length >= 0 && v.written != v.length {
		return fmt.Errorf("%w: %s transmitted %d of %d bytes", errdefs.ErrLengthMismatch, v.path, v.written, v.length)
	}
	if !v.expected.IsNone() {
		if got := computed[v.expected.Algorithm]; !got.Equal(v.expected) {
			return &errdefs.ChecksumError{Path: v.path, Expected: v.expected.String(), Actual: got.String()}
		}
	}
	return nil
}

// checkReply compares the backend's digest, when it reported one in an
// algorithm we computed, and completes the reply.
func (v *VerifyingWriter) checkReply(computed map[checksum.Algorithm]checksum.Checksum) error {
	reported := v.reply.Checksum
	if !reported.IsNone() {
		if got, ok := computed[reported.Algorithm]; ok && !got.Equal(reported) {
			return &errdefs.ChecksumError{Path: v.path, Expected: got.String(), Actual: reported.String()}
		}
	} else {
		v.reply.Checksum = computed[v.primary]
	}
	if v.reply.Size == 0 {
		v.reply.Size = v.written
	}
	return nil
}

func (v *VerifyingWriter) abort() error {
	if a, ok := v.dst.(Aborter); ok {
		return a.Abort()
	}
	if !v.dstClosed {
		v.dstClosed = true
		return v.dst.Close()
	}
	return nil
}

var (
	_ StatusWriter = (*VerifyingWriter)(nil)
	_ Aborter      = (*VerifyingWriter)(nil)
)
