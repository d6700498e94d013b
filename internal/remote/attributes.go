package remote

import (
	"io/fs"
	"time"

	"github.com/bamsammich/ferry/internal/checksum"
)

// Attributes is the last-known remote state of an entry. Listings, stats and
// reads populate it; callers never set fields speculatively.
type Attributes struct {
	Size         int64
	Checksum     checksum.Checksum
	Acl          Acl
	StorageClass string
	MimeType     string
	Permission   fs.FileMode
	Modified     time.Time
	Region       string
	VersionID    string
}

func (a Attributes) clone() Attributes {
	a.Acl = a.Acl.Clone()
	return a
}
