//go:build !windows

package system

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startChild(t *testing.T, name string, args ...string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(name, args...)
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	return cmd
}

func TestHostHandleDetectsReusedPid(t *testing.T) {
	ctx := context.Background()
	first := startChild(t, "sleep", "30")

	h, err := NewCapability().Open(ctx, first.Process.Pid)
	require.NoError(t, err)
	created, err := h.CreateTime(ctx)
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	second := startChild(t, "sleep", "31")

	// the handle now points at a different process owning the same pid
	h.(*psHandle).proc.Pid = int32(second.Process.Pid)

	_, err = h.CreateTime(ctx)
	assert.True(t, IsGone(err), "got %v", err)

	running, err := h.IsRunning(ctx)
	require.NoError(t, err)
	assert.False(t, running)

	h.(*psHandle).proc.Pid = int32(first.Process.Pid)
	again, err := h.CreateTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, created, again)
}

func TestHostHandleExitedProcessIsGone(t *testing.T) {
	ctx := context.Background()
	cmd := startChild(t, "sleep", "30")

	h, err := NewCapability().Open(ctx, cmd.Process.Pid)
	require.NoError(t, err)

	require.NoError(t, cmd.Process.Kill())
	_ = cmd.Wait()

	_, err = h.CreateTime(ctx)
	assert.True(t, IsGone(err), "got %v", err)
}

func TestHostHandleFirstCPUReadingIsMeasured(t *testing.T) {
	ctx := context.Background()
	busy := startChild(t, "sh", "-c", "while :; do :; done")
	time.Sleep(300 * time.Millisecond)

	h, err := NewCapability().Open(ctx, busy.Process.Pid)
	require.NoError(t, err)

	percent, err := h.CPUPercent(ctx)
	require.NoError(t, err)
	assert.Greater(t, percent, 10.0)

	// later readings measure since the previous one
	time.Sleep(100 * time.Millisecond)
	percent, err = h.CPUPercent(ctx)
	require.NoError(t, err)
	assert.Greater(t, percent, 10.0)
}
