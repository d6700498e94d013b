// Package event defines the progress stream emitted by background tasks and
// transfers.
package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	TaskStarted Type = iota + 1
	TaskCompleted
	TaskFailed
	TaskCanceled
	FileStarted
	FileProgress
	FileCompleted
	FileFailed
	FileSkipped
	DirListed
	DirCreated
	DeleteFile
	SizeUpdated
)

var typeNames = [...]string{
	TaskStarted:   "TaskStarted",
	TaskCompleted: "TaskCompleted",
	TaskFailed:    "TaskFailed",
	TaskCanceled:  "TaskCanceled",
	FileStarted:   "FileStarted",
	FileProgress:  "FileProgress",
	FileCompleted: "FileCompleted",
	FileFailed:    "FileFailed",
	FileSkipped:   "FileSkipped",
	DirListed:     "DirListed",
	DirCreated:    "DirCreated",
	DeleteFile:    "DeleteFile",
	SizeUpdated:   "SizeUpdated",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Terminal reports whether t ends a task.
func (t Type) Terminal() bool {
	return t == TaskCompleted || t == TaskFailed || t == TaskCanceled
}

// Event is a single progress notification.
type Event struct {
	Type      Type
	Timestamp time.Time
	Activity  string // task label, e.g. "Getting size of /a"
	Path      string // absolute remote path
	Size      int64  // file size or bytes-so-far
	Total     int64  // entries seen (DirListed)
	TotalSize int64  // running byte total (SizeUpdated)
	Error     error
}

// Emit sends e on ch without blocking. Slow consumers drop events; a nil
// channel discards them.
func Emit(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	select {
	case ch <- e:
	default:
	}
}
