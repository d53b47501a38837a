package system

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify(nil))

	gone := Classify(process.ErrorProcessNotRunning)
	assert.True(t, IsGone(gone))

	gone = Classify(&fs.PathError{Op: "open", Path: "/proc/1/stat", Err: fs.ErrNotExist})
	assert.True(t, IsGone(gone))

	denied := Classify(&fs.PathError{Op: "open", Path: "/proc/1/fd", Err: fs.ErrPermission})
	assert.True(t, IsDenied(denied))
	assert.True(t, IsSoft(denied))
	assert.False(t, IsGone(denied))

	notImpl := Classify(errors.New("not implemented yet"))
	assert.True(t, errors.Is(notImpl, ErrNotImplemented))
	assert.True(t, IsSoft(notImpl))

	already := fmt.Errorf("%w: pid 3", ErrProcessGone)
	assert.Equal(t, already, Classify(already))

	other := errors.New("boom")
	assert.Equal(t, other, Classify(other))
}

func TestHostCapabilityOpenSelf(t *testing.T) {
	ctx := context.Background()
	c := NewCapability()

	ok, err := c.Alive(ctx, os.Getpid())
	require.NoError(t, err)
	assert.True(t, ok)

	h, err := c.Open(ctx, os.Getpid())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), h.Pid())

	running, err := h.IsRunning(ctx)
	require.NoError(t, err)
	assert.True(t, running)

	mem, err := h.MemoryInfo(ctx)
	require.NoError(t, err)
	assert.NotZero(t, mem.RSS)
}

func TestHostCapabilityInvalidPid(t *testing.T) {
	ctx := context.Background()
	c := NewCapability()

	ok, err := c.Alive(ctx, -1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Open(ctx, 0)
	assert.True(t, IsGone(err))
}
