package transport

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/ferry/internal/errdefs"
)

func TestTempNameIsHiddenSibling(t *testing.T) {
	t.Parallel()
	a := TempName("/dir/report.pdf")
	b := TempName("/dir/report.pdf")

	assert.NotEqual(t, a, b)
	assert.Equal(t, "/dir", path.Dir(a))
	assert.True(t, IsTempName(a))
	assert.True(t, IsTempName(path.Base(b)))
	assert.False(t, IsTempName("/dir/report.pdf"))
	assert.False(t, IsTempName(".ferry-tmp"))
}

func TestMapError(t *testing.T) {
	t.Parallel()
	assert.NoError(t, MapError("read", "/a", nil))

	err := MapError("read", "/a", fmt.Errorf("open: %w", fs.ErrNotExist))
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	err = MapError("write", "/a", fs.ErrPermission)
	assert.ErrorIs(t, err, errdefs.ErrAccessDenied)

	other := errors.New("disk on fire")
	err = MapError("write", "/a", other)
	assert.ErrorIs(t, err, other)
	var bg *errdefs.BackgroundError
	assert.ErrorAs(t, err, &bg)
	assert.Equal(t, "/a", bg.Path)
}
