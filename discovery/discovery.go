// Package discovery scans the host for processes that look like workers
// nobody has registered yet. It only proposes candidates.
package discovery

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dreamsxin/procwatch/config"
	"github.com/dreamsxin/procwatch/system"
	"github.com/dreamsxin/procwatch/types"
)

// Service matches host processes against an interpreter and marker heuristic
type Service struct {
	capability   system.Capability
	interpreters []string
	markers      []string
	concurrency  int
	log          logrus.FieldLogger
}

// NewService returns a Service using cfg's heuristic. A nil logger falls
// back to the standard logger.
func NewService(capability system.Capability, cfg config.DiscoveryConfig, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{
		capability:   capability,
		interpreters: lower(cfg.Interpreters),
		markers:      lower(cfg.Markers),
		concurrency:  concurrency,
		log:          log.WithField("component", "discovery"),
	}
}

// Discover returns the matching processes whose pid is not in exclude,
// sorted by pid. Processes that vanish or deny access mid-scan are skipped.
func (s *Service) Discover(ctx context.Context, exclude map[int]bool) ([]types.CandidateProcess, error) {
	handles, err := s.capability.Processes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var (
		mu         sync.Mutex
		candidates []types.CandidateProcess
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, h := range handles {
		if exclude[h.Pid()] {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, ok, err := s.inspect(gctx, h)
			if err != nil {
				if system.IsGone(err) || system.IsSoft(err) {
					s.log.WithField("pid", h.Pid()).WithError(err).Debug("skipping process")
					return nil
				}
				return fmt.Errorf("inspect pid %d: %w", h.Pid(), err)
			}
			if ok {
				mu.Lock()
				candidates = append(candidates, c)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].PID < candidates[j].PID })
	s.log.WithField("candidates", len(candidates)).Debug("discovery scan finished")
	return candidates, nil
}

func (s *Service) inspect(ctx context.Context, h system.Handle) (types.CandidateProcess, bool, error) {
	name, err := h.Name(ctx)
	if err != nil {
		return types.CandidateProcess{}, false, err
	}

	if !s.isInterpreter(name) {
		// a renamed process still shows its interpreter in the exe path
		exe, err := h.Exe(ctx)
		if err != nil || !s.isInterpreter(filepath.Base(exe)) {
			return types.CandidateProcess{}, false, nil
		}
	}

	cmdline, err := h.Cmdline(ctx)
	if err != nil {
		return types.CandidateProcess{}, false, err
	}
	if !s.hasMarker(cmdline) {
		return types.CandidateProcess{}, false, nil
	}

	created, err := h.CreateTime(ctx)
	if err != nil && !system.IsSoft(err) {
		return types.CandidateProcess{}, false, err
	}

	return types.CandidateProcess{
		PID:        h.Pid(),
		Name:       name,
		Cmdline:    cmdline,
		CreateTime: created,
	}, true, nil
}

// isInterpreter matches versioned names like python3.12 or node18
func (s *Service) isInterpreter(name string) bool {
	name = strings.ToLower(strings.TrimSuffix(name, ".exe"))
	for _, prefix := range s.interpreters {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func (s *Service) hasMarker(cmdline string) bool {
	cmdline = strings.ToLower(cmdline)
	for _, m := range s.markers {
		if strings.Contains(cmdline, m) {
			return true
		}
	}
	return false
}

func lower(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
