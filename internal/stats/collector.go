// Package stats aggregates the event stream into counters and a rolling
// throughput window.
package stats

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/event"
)

const window = 60

// Collector counts task and transfer outcomes. Counters are atomic so
// workers and streams may record concurrently.
type Collector struct {
	tasksDone     atomic.Int64
	tasksFailed   atomic.Int64
	tasksCanceled atomic.Int64
	filesDone     atomic.Int64
	filesFailed   atomic.Int64
	filesSkipped  atomic.Int64
	mismatches    atomic.Int64
	dirsCreated   atomic.Int64
	deleted       atomic.Int64
	bytesMoved    atomic.Int64
	bytesTotal    atomic.Int64
	startTime     time.Time

	// samples is written only by Tick.
	mu        sync.Mutex
	samples   [window]int64
	next      int
	count     int
	lastBytes int64
}

// NewCollector returns a Collector whose clock starts now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	TasksDone     int64
	TasksFailed   int64
	TasksCanceled int64
	FilesDone     int64
	FilesFailed   int64
	FilesSkipped  int64
	Mismatches    int64
	DirsCreated   int64
	Deleted       int64
	BytesMoved    int64
	BytesTotal    int64
	Elapsed       time.Duration
}

func (c *Collector) AddBytesMoved(n int64) { c.bytesMoved.Add(n) }
func (c *Collector) AddBytesTotal(n int64) { c.bytesTotal.Add(n) }

// Sent and Received let a Collector observe transfer streams directly.
func (c *Collector) Sent(n int64)     { c.bytesMoved.Add(n) }
func (c *Collector) Received(n int64) { c.bytesMoved.Add(n) }

// Record folds one event into the counters.
func (c *Collector) Record(e event.Event) {
	switch e.Type {
	case event.TaskCompleted:
		c.tasksDone.Add(1)
	case event.TaskFailed:
		c.tasksFailed.Add(1)
	case event.TaskCanceled:
		c.tasksCanceled.Add(1)
	case event.FileCompleted:
		c.filesDone.Add(1)
	case event.FileFailed:
		c.filesFailed.Add(1)
		if errors.Is(e.Error, errdefs.ErrChecksumMismatch) {
			c.mismatches.Add(1)
		}
	case event.FileSkipped:
		c.filesSkipped.Add(1)
	case event.FileProgress:
		c.bytesMoved.Add(e.Size)
	case event.DirCreated:
		c.dirsCreated.Add(1)
	case event.DeleteFile:
		c.deleted.Add(1)
	case event.SizeUpdated:
		c.bytesTotal.Store(e.TotalSize)
	}
}

// Snapshot returns the current counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		TasksDone:     c.tasksDone.Load(),
		TasksFailed:   c.tasksFailed.Load(),
		TasksCanceled: c.tasksCanceled.Load(),
		FilesDone:     c.filesDone.Load(),
		FilesFailed:   c.filesFailed.Load(),
		FilesSkipped:  c.filesSkipped.Load(),
		Mismatches:    c.mismatches.Load(),
		DirsCreated:   c.dirsCreated.Load(),
		Deleted:       c.deleted.Load(),
		BytesMoved:    c.bytesMoved.Load(),
		BytesTotal:    c.bytesTotal.Load(),
		Elapsed:       c.Elapsed(),
	}
}

// Tick samples the bytes moved since the previous call. The presenter calls
// it once a second.
func (c *Collector) Tick() {
	current := c.bytesMoved.Load()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples[c.next] = current - c.lastBytes
	c.lastBytes = current
	c.next = (c.next + 1) % window
	if c.count < window {
		c.count++
	}
}

// RollingSpeed returns the mean bytes/sec over the last n samples.
func (c *Collector) RollingSpeed(n int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n = min(n, c.count)
	if n == 0 {
		return 0
	}
	var sum int64
	for i := range n {
		sum += c.samples[(c.next-1-i+window)%window]
	}
	return float64(sum) / float64(n)
}

// ETA estimates the time left from the 10-second rolling speed.
func (c *Collector) ETA() time.Duration {
	speed := c.RollingSpeed(10)
	if speed <= 0 {
		return 0
	}
	remaining := c.bytesTotal.Load() - c.bytesMoved.Load()
	if remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining)/speed) * time.Second
}

// Elapsed returns the time since the collector was created.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"tasks=%d failed=%d canceled=%d files=%d skipped=%d errors=%d mismatches=%d deleted=%d bytes=%d",
		s.TasksDone, s.TasksFailed, s.TasksCanceled, s.FilesDone, s.FilesSkipped,
		s.FilesFailed, s.Mismatches, s.Deleted, s.BytesMoved,
	)
}

// FormatBytes renders b in IEC units.
func FormatBytes(b int64) string {
	if b < 0 {
		return "unknown"
	}
	return humanize.IBytes(uint64(b))
}
