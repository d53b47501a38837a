package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamsxin/procwatch/config"
	"github.com/dreamsxin/procwatch/system"
	"github.com/dreamsxin/procwatch/system/systemtest"
)

func newTestService(procs ...systemtest.Process) (*Service, *systemtest.Capability) {
	capability := systemtest.NewCapability(procs...)
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	return NewService(capability, config.Default().Discovery, log), capability
}

func pids(t *testing.T, s *Service, exclude map[int]bool) []int {
	t.Helper()
	candidates, err := s.Discover(context.Background(), exclude)
	require.NoError(t, err)
	var out []int
	for _, c := range candidates {
		out = append(out, c.PID)
	}
	return out
}

func TestDiscoverMatchesInterpreterAndMarker(t *testing.T) {
	s, _ := newTestService(
		systemtest.Process{PID: 30, Name: "python3", Cmdline: "python3 -m mcp_server_git"},
		systemtest.Process{PID: 10, Name: "node", Cmdline: "node /srv/mcp-server.js"},
		systemtest.Process{PID: 20, Name: "bash", Cmdline: "bash -c mcp"},
		systemtest.Process{PID: 40, Name: "python3.12", Cmdline: "python3.12 app.py"},
		systemtest.Process{PID: 50, Name: "npx", Cmdline: "npx -y @modelcontextprotocol/server-MCP"},
	)

	candidates, err := s.Discover(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	assert.Equal(t, 10, candidates[0].PID)
	assert.Equal(t, "node", candidates[0].Name)
	assert.Equal(t, "node /srv/mcp-server.js", candidates[0].Cmdline)
	assert.False(t, candidates[0].CreateTime.IsZero())
	assert.Equal(t, 30, candidates[1].PID)
	assert.Equal(t, 50, candidates[2].PID)
}

func TestDiscoverExcludesRegistered(t *testing.T) {
	s, _ := newTestService(
		systemtest.Process{PID: 1, Name: "python", Cmdline: "python mcp.py"},
		systemtest.Process{PID: 2, Name: "python", Cmdline: "python mcp.py"},
	)
	assert.Equal(t, []int{2}, pids(t, s, map[int]bool{1: true}))
}

func TestDiscoverFallsBackToExe(t *testing.T) {
	s, _ := newTestService(
		systemtest.Process{PID: 7, Name: "worker", Exe: "/usr/local/bin/deno", Cmdline: "deno run mcp.ts"},
		systemtest.Process{PID: 8, Name: "worker", Exe: "/usr/bin/ruby", Cmdline: "ruby mcp.rb"},
	)
	assert.Equal(t, []int{7}, pids(t, s, nil))
}

func TestDiscoverSkipsUnreadableProcesses(t *testing.T) {
	s, _ := newTestService(
		systemtest.Process{PID: 1, Name: "python", Cmdline: "python mcp.py",
			Errors: map[string]error{"cmdline": system.ErrAccessDenied}},
		systemtest.Process{PID: 2, Name: "node", Cmdline: "node mcp.js",
			Errors: map[string]error{"name": system.ErrProcessGone}},
		systemtest.Process{PID: 3, Name: "uv", Cmdline: "uv run mcp-server"},
	)
	assert.Equal(t, []int{3}, pids(t, s, nil))
}

func TestDiscoverFailsOnUnexpectedError(t *testing.T) {
	boom := errors.New("boom")
	s, _ := newTestService(
		systemtest.Process{PID: 1, Name: "python", Cmdline: "python mcp.py",
			Errors: map[string]error{"cmdline": boom}},
	)
	_, err := s.Discover(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
}

func TestDiscoverCustomHeuristic(t *testing.T) {
	capability := systemtest.NewCapability(
		systemtest.Process{PID: 1, Name: "ruby", Cmdline: "ruby worker.rb --queue"},
		systemtest.Process{PID: 2, Name: "python", Cmdline: "python mcp.py"},
	)
	s := NewService(capability, config.DiscoveryConfig{
		Interpreters: []string{" Ruby "},
		Markers:      []string{"WORKER"},
	}, nil)
	assert.Equal(t, []int{1}, pids(t, s, nil))
	assert.Equal(t, 1, s.concurrency)
}

func TestDiscoverEmptyHost(t *testing.T) {
	s, _ := newTestService()
	candidates, err := s.Discover(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestDiscoverCancelled(t *testing.T) {
	s, _ := newTestService(systemtest.Process{PID: 1, Name: "python", Cmdline: "python mcp.py"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Discover(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
