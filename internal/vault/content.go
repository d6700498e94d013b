package vault

import (
	"bufio"
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bamsammich/ferry/internal/checksum"
	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/transfer"
)

// Encrypted content layout:
//
//	magic(4) | prefix(16) | chunk_0 | ... | chunk_n
//
// Each chunk seals up to chunkSize cleartext bytes with a 16-byte tag. The
// nonce is prefix || big-endian chunk index and the additional data is one
// byte flagging the final chunk, so truncation and reordering fail to open.
// The final chunk may be empty (zero-length content) or full.
const (
	chunkSize  = 64 << 10
	tagSize    = 16
	prefixSize = 16
	headerSize = len(contentMagic) + prefixSize
)

const contentMagic = "FRV1"

var errBadHeader = errors.New("vault: bad content header")

// CiphertextSize returns the stored size of n cleartext bytes. Unknown
// lengths stay unknown.
func CiphertextSize(n int64) int64 {
	if n < 0 {
		return n
	}
	full := n / chunkSize
	rem := n % chunkSize
	if n > 0 && rem == 0 {
		return int64(headerSize) + full*(chunkSize+tagSize)
	}
	return int64(headerSize) + full*(chunkSize+tagSize) + rem + tagSize
}

// CleartextSize inverts CiphertextSize. It returns -1 for sizes no
// encryption could produce.
func CleartextSize(n int64) int64 {
	body := n - int64(headerSize)
	if body < tagSize {
		return -1
	}
	full := body / (chunkSize + tagSize)
	rem := body % (chunkSize + tagSize)
	if rem == 0 {
		return full * chunkSize
	}
	if rem < tagSize {
		return -1
	}
	return full*chunkSize + rem - tagSize
}

func chunkNonce(prefix []byte, index uint64) []byte {
	nonce := make([]byte, prefixSize+8)
	copy(nonce, prefix)
	binary.BigEndian.PutUint64(nonce[prefixSize:], index)
	return nonce
}

func chunkAD(final bool) []byte {
	if final {
		return []byte{1}
	}
	return []byte{0}
}

// decryptReader opens chunks lazily as the caller reads.
type decryptReader struct {
	src    io.ReadCloser
	in     *bufio.Reader
	aead   cipher.AEAD
	prefix []byte
	index  uint64
	buf    []byte
	chunk  []byte
	done   bool
	err    error
}

func newDecryptReader(src io.ReadCloser, aead cipher.AEAD) *decryptReader {
	return &decryptReader{
		src:   src,
		in:    bufio.NewReaderSize(src, chunkSize+tagSize+1),
		aead:  aead,
		chunk: make([]byte, chunkSize+tagSize),
	}
}

func (d *decryptReader) Read(p []byte) (int, error) {
	for len(d.buf) == 0 {
		if d.err != nil {
			return 0, d.err
		}
		if d.done {
			return 0, io.EOF
		}
		d.err = d.next()
	}
	n := copy(p, d.buf)
	d.buf = d.buf[n:]
	return n, nil
}

func (d *decryptReader) next() error {
	if d.prefix == nil {
		header := make([]byte, headerSize)
		if _, err := io.ReadFull(d.in, header); err != nil {
			return fmt.Errorf("%w: %w", errBadHeader, err)
		}
		if string(header[:len(contentMagic)]) != contentMagic {
			return errBadHeader
		}
		d.prefix = header[len(contentMagic):]
	}

	n, err := io.ReadFull(d.in, d.chunk)
	final := false
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		final = true
	case err != nil:
		return err
	default:
		if _, perr := d.in.Peek(1); errors.Is(perr, io.EOF) {
			final = true
		} else if perr != nil {
			return perr
		}
	}
	if n < tagSize {
		return fmt.Errorf("%w: truncated chunk %d", errdefs.ErrChecksumMismatch, d.index)
	}

	plain, err := d.aead.Open(d.chunk[:0], chunkNonce(d.prefix, d.index), d.chunk[:n], chunkAD(final))
	if err != nil {
		return fmt.Errorf("%w: chunk %d failed authentication", errdefs.ErrChecksumMismatch, d.index)
	}
	d.index++
	d.buf = plain
	d.done = final
	return nil
}

func (d *decryptReader) Close() error { return d.src.Close() }

// encryptWriter seals cleartext into the inner sink. A chunk is sealed only
// once more than chunkSize bytes are buffered, so the last chunk is known to
// be final when Close seals it.
type encryptWriter struct {
	dst     transfer.StatusWriter
	aead    cipher.AEAD
	prefix  []byte
	index   uint64
	buf     bytes.Buffer
	sealed  []byte
	written int64
	header  bool
}

func newEncryptWriter(dst transfer.StatusWriter, aead cipher.AEAD) (*encryptWriter, error) {
	prefix := make([]byte, prefixSize)
	if _, err := rand.Read(prefix); err != nil {
		return nil, err
	}
	return &encryptWriter{
		dst:    dst,
		aead:   aead,
		prefix: prefix,
		sealed: make([]byte, 0, chunkSize+tagSize),
	}, nil
}

// Write reports the whole of p accepted once it is buffered; seal failures
// surface from the inner sink.
func (e *encryptWriter) Write(p []byte) (int, error) {
	e.buf.Write(p)
	for e.buf.Len() > chunkSize {
		if err := e.seal(e.buf.Next(chunkSize), false); err != nil {
			return 0, err
		}
	}
	e.written += int64(len(p))
	return len(p), nil
}

func (e *encryptWriter) seal(plain []byte, final bool) error {
	if !e.header {
		e.header = true
		if _, err := io.WriteString(e.dst, contentMagic); err != nil {
			return err
		}
		if _, err := e.dst.Write(e.prefix); err != nil {
			return err
		}
	}
	e.sealed = e.aead.Seal(e.sealed[:0], chunkNonce(e.prefix, e.index), plain, chunkAD(final))
	e.index++
	_, err := e.dst.Write(e.sealed)
	return err
}

func (e *encryptWriter) Close() error {
	if err := e.seal(e.buf.Next(e.buf.Len()), true); err != nil {
		_ = e.Abort()
		return err
	}
	return e.dst.Close()
}

func (e *encryptWriter) Abort() error {
	if a, ok := e.dst.(transfer.Aborter); ok {
		return a.Abort()
	}
	return e.dst.Close()
}

// Reply reports the cleartext size. The inner digest covers ciphertext and
// means nothing to the caller.
func (e *encryptWriter) Reply() transfer.Reply {
	r := e.dst.Reply()
	r.Size = e.written
	r.Checksum = checksum.None
	return r
}

var (
	_ transfer.StatusWriter = (*encryptWriter)(nil)
	_ transfer.Aborter      = (*encryptWriter)(nil)
)
