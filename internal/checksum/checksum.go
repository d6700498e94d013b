// Package checksum models content digests: an algorithm tag plus a lowercase
// hex digest.
package checksum

import (
	"bytes"
	"crypto/md5"  //nolint:gosec // integrity, not security
	"crypto/sha1" //nolint:gosec // integrity, not security
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
)

// Algorithm identifies a digest function.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
	CRC32  Algorithm = "crc32"
	XXHash Algorithm = "xxhash"
	BLAKE3 Algorithm = "blake3"
)

// ErrFormat is returned by Parse for malformed input.
var ErrFormat = errors.New("malformed checksum")

// hexLen is the digest length in hex characters per algorithm.
var hexLen = map[Algorithm]int{
	CRC32:  8,
	XXHash: 16,
	MD5:    32,
	SHA1:   40,
	SHA256: 64,
	BLAKE3: 64,
	SHA512: 128,
}

// byLength resolves a bare hex digest to an algorithm. 64 characters is
// ambiguous between sha256 and blake3; bare digests resolve to sha256.
var byLength = map[int]Algorithm{
	8:   CRC32,
	16:  XXHash,
	32:  MD5,
	40:  SHA1,
	64:  SHA256,
	128: SHA512,
}

// Valid reports whether a is a known algorithm.
func (a Algorithm) Valid() bool {
	_, ok := hexLen[a]
	return ok
}

// NewHasher returns a fresh hash.Hash for alg.
func NewHasher(alg Algorithm) (hash.Hash, error) {
	switch alg {
	case MD5:
		return md5.New(), nil //nolint:gosec // integrity
	case SHA1:
		return sha1.New(), nil //nolint:gosec // integrity
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case CRC32:
		return crc32.NewIEEE(), nil
	case XXHash:
		return xxhash.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm %q", alg)
	}
}

// Checksum is a digest tagged with its algorithm. The zero value is None.
type Checksum struct {
	Algorithm Algorithm
	Hash      string
}

// None is the unknown checksum; it disables verification.
var None = Checksum{}

// New builds a checksum from alg and a hex digest, lowercasing the digest.
func New(alg Algorithm, digest string) Checksum {
	return Checksum{Algorithm: alg, Hash: strings.ToLower(digest)}
}

// FromHash finalizes h into a Checksum tagged alg.
func FromHash(alg Algorithm, h hash.Hash) Checksum {
	return Checksum{Algorithm: alg, Hash: hex.EncodeToString(h.Sum(nil))}
}

// IsNone reports whether c is the unknown checksum.
func (c Checksum) IsNone() bool { return c.Algorithm == "" || c.Hash == "" }

// Equal reports whether both checksums use the same algorithm and digest.
// None never equals anything, itself included.
func (c Checksum) Equal(o Checksum) bool {
	if c.IsNone() || o.IsNone() {
		return false
	}
	return c.Algorithm == o.Algorithm && strings.EqualFold(c.Hash, o.Hash)
}

func (c Checksum) String() string {
	if c.IsNone() {
		return "none"
	}
	return string(c.Algorithm) + ":" + c.Hash
}

// Parse reads "algorithm:hex" or a bare hex digest whose algorithm is
// inferred from its length.
func Parse(s string) (Checksum, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return None, fmt.Errorf("%w: empty", ErrFormat)
	}

	var alg Algorithm
	digest := s
	if i := strings.IndexByte(s, ':'); i >= 0 {
		alg = Algorithm(strings.ToLower(s[:i]))
		digest = s[i+1:]
		if !alg.Valid() {
			return None, fmt.Errorf("%w: unknown algorithm %q", ErrFormat, s[:i])
		}
		if len(digest) != hexLen[alg] {
			return None, fmt.Errorf("%w: %s digest must be %d hex characters", ErrFormat, alg, hexLen[alg])
		}
	} else {
		var ok bool
		alg, ok = byLength[len(digest)]
		if !ok {
			return None, fmt.Errorf("%w: no algorithm with %d hex characters", ErrFormat, len(digest))
		}
	}

	if _, err := hex.DecodeString(digest); err != nil {
		return None, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return New(alg, digest), nil
}

// Compute digests r with alg.
func Compute(alg Algorithm, r io.Reader) (Checksum, error) {
	h, err := NewHasher(alg)
	if err != nil {
		return None, err
	}
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return None, fmt.Errorf("hash: %w", err)
	}
	return FromHash(alg, h), nil
}

// Sum digests b with alg.
func Sum(alg Algorithm, b []byte) (Checksum, error) {
	return Compute(alg, bytes.NewReader(b))
}
