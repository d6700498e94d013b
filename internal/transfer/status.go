// Package transfer carries per-operation transfer state and the
// checksum-verifying write pipeline.
package transfer

import (
	"maps"
	"time"

	"github.com/bamsammich/ferry/internal/checksum"
)

// UnknownLength marks a Status whose length was not declared.
const UnknownLength int64 = -1

// Status describes one read or write in flight. Create a fresh Status per
// operation; never share one between concurrent operations on a path.
type Status struct {
	// Length is the expected byte count, or UnknownLength. Once set, the
	// write fails unless exactly Length bytes are transmitted.
	Length int64
	// Checksum is the expected digest; checksum.None disables verification.
	Checksum checksum.Checksum
	// Offset is where a resumed transfer starts.
	Offset int64
	// Append continues an existing object from Offset.
	Append       bool
	MimeType     string
	StorageClass string
	// Modified reports whether the semantic content changed; unchanged
	// metadata writes may be skipped.
	Modified  bool
	Timestamp time.Time
	Metadata  map[string]string
}

// NewStatus returns a Status with no declared length or checksum.
func NewStatus() *Status {
	return &Status{Length: UnknownLength}
}

// HasLength reports whether an expected length was declared.
func (s *Status) HasLength() bool { return s.Length >= 0 }

// Clone returns a copy safe to modify independently.
func (s *Status) Clone() *Status {
	c := *s
	c.Metadata = maps.Clone(s.Metadata)
	return &c
}
