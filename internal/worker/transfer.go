package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/remote"
	"github.com/bamsammich/ferry/internal/transfer"
)

// Upload copies the local file Source to Target through Writer. Length and
// timestamp default from the file when Status leaves them unset.
type Upload struct {
	Source  string
	Target  *remote.Path
	Writer  transfer.Writer
	Status  *transfer.Status
	Options transfer.Options
	Events  chan<- event.Event
}

func (w *Upload) Activity() string { return "Uploading " + label(w.Target) }

func (w *Upload) Run(ctx context.Context) (transfer.Reply, error) {
	if err := Checkpoint(ctx); err != nil {
		return transfer.Reply{}, err
	}
	f, err := os.Open(w.Source)
	if err != nil {
		return transfer.Reply{}, w.fail(fmt.Errorf("open %s: %w", w.Source, err))
	}
	defer f.Close()

	status := transfer.NewStatus()
	if w.Status != nil {
		status = w.Status.Clone()
	}
	if info, err := f.Stat(); err == nil {
		if !status.HasLength() {
			status.Length = info.Size()
		}
		if status.Timestamp.IsZero() {
			status.Timestamp = info.ModTime()
		}
	}

	event.Emit(w.Events, event.Event{Type: event.FileStarted, Path: w.Target.Abs(), Size: status.Length})
	reply, err := transfer.Upload(ctx, w.Writer, w.Target, f, status, w.Options)
	if err != nil {
		return transfer.Reply{}, w.fail(err)
	}
	event.Emit(w.Events, event.Event{Type: event.FileCompleted, Path: w.Target.Abs(), Size: reply.Size})
	return reply, nil
}

func (w *Upload) fail(err error) error {
	event.Emit(w.Events, event.Event{Type: event.FileFailed, Path: w.Target.Abs(), Error: err})
	return err
}

// Download copies Source to the local file Target through Reader. Bytes
// land in a temp file beside Target that replaces it only after the whole
// object arrived and, when Status carries a checksum, verified.
type Download struct {
	Source  *remote.Path
	Target  string
	Reader  transfer.Reader
	Status  *transfer.Status
	Options transfer.Options
	Events  chan<- event.Event
}

func (w *Download) Activity() string { return "Downloading " + label(w.Source) }

func (w *Download) Run(ctx context.Context) (int64, error) {
	if err := Checkpoint(ctx); err != nil {
		return 0, err
	}
	status := transfer.NewStatus()
	if w.Status != nil {
		status = w.Status.Clone()
	}
	attrs := w.Source.Attributes()
	if !status.HasLength() && attrs.Size > 0 {
		status.Length = attrs.Size
	}

	tmp, err := os.CreateTemp(filepath.Dir(w.Target), "."+filepath.Base(w.Target)+".*.part")
	if err != nil {
		return 0, w.fail(err)
	}
	defer os.Remove(tmp.Name()) // no-op after the rename

	event.Emit(w.Events, event.Event{Type: event.FileStarted, Path: w.Source.Abs(), Size: status.Length})
	n, err := transfer.Download(ctx, w.Reader, w.Source, tmp, status, w.Options)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, w.fail(err)
	}
	if err := os.Rename(tmp.Name(), w.Target); err != nil {
		return n, w.fail(err)
	}
	if !attrs.Modified.IsZero() {
		_ = os.Chtimes(w.Target, attrs.Modified, attrs.Modified)
	}
	event.Emit(w.Events, event.Event{Type: event.FileCompleted, Path: w.Source.Abs(), Size: n})
	return n, nil
}

func (w *Download) fail(err error) error {
	event.Emit(w.Events, event.Event{Type: event.FileFailed, Path: w.Source.Abs(), Error: err})
	return err
}
