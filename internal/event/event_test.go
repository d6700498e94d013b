package event

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeString(t *testing.T) {
	tests := []struct {
		want string
		typ  Type
	}{
		{want: "TaskStarted", typ: TaskStarted},
		{want: "TaskCompleted", typ: TaskCompleted},
		{want: "TaskFailed", typ: TaskFailed},
		{want: "TaskCanceled", typ: TaskCanceled},
		{want: "FileStarted", typ: FileStarted},
		{want: "FileProgress", typ: FileProgress},
		{want: "FileCompleted", typ: FileCompleted},
		{want: "FileFailed", typ: FileFailed},
		{want: "FileSkipped", typ: FileSkipped},
		{want: "DirListed", typ: DirListed},
		{want: "DirCreated", typ: DirCreated},
		{want: "DeleteFile", typ: DeleteFile},
		{want: "SizeUpdated", typ: SizeUpdated},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.String())
		})
	}
}

func TestTypeStringUnknown(t *testing.T) {
	assert.Equal(t, "Unknown", Type(999).String())
	assert.Equal(t, "Unknown", Type(0).String())
}

func TestTerminal(t *testing.T) {
	assert.True(t, TaskCompleted.Terminal())
	assert.True(t, TaskFailed.Terminal())
	assert.True(t, TaskCanceled.Terminal())
	assert.False(t, TaskStarted.Terminal())
	assert.False(t, FileCompleted.Terminal())
}

func TestEmitStampsAndNeverBlocks(t *testing.T) {
	ch := make(chan Event, 1)
	Emit(ch, Event{Type: FileCompleted, Path: "/a"})
	Emit(ch, Event{Type: FileFailed, Error: errors.New("dropped")})

	require.Len(t, ch, 1)
	e := <-ch
	assert.Equal(t, FileCompleted, e.Type)
	assert.WithinDuration(t, time.Now(), e.Timestamp, time.Minute)

	Emit(nil, Event{Type: TaskStarted})
}
