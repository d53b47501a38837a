package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dreamsxin/procwatch/monitor"
	"github.com/dreamsxin/procwatch/system"
	"github.com/dreamsxin/procwatch/types"
)

var checkCmd = &cobra.Command{
	Use:   "check <pid>",
	Short: "Sample one process once and print its health",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := strconv.Atoi(args[0])
		if err != nil || pid <= 0 {
			return fmt.Errorf("invalid pid %q", args[0])
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.CollectionTimeout)
		defer cancel()

		h, err := system.NewCapability().Open(ctx, pid)
		if err != nil {
			return fmt.Errorf("open pid %d: %w", pid, err)
		}
		m, err := monitor.NewCollector(cfg.CollectionTimeout).Collect(ctx, args[0], h)
		if err != nil {
			return err
		}
		m.Health = monitor.NewAssessor(cfg.Health).Assess(args[0], m)

		printHealth(m)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func printHealth(m *types.ExtendedProcessMetrics) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("%s PID %d %s\n", cyan("Process"), m.PID, gray(m.Cmdline))
	fmt.Printf("  Status:   %s\n", m.Status)
	fmt.Printf("  CPU:      %.1f%%\n", m.CPUPercent)
	fmt.Printf("  Memory:   %.1f%% (%.1f MiB RSS)\n", m.MemoryPercent, m.MemoryMB)
	fmt.Printf("  Threads:  %d  FDs: %d\n", m.NumThreads, m.NumFDs)
	fmt.Printf("  Uptime:   %s\n", (time.Duration(m.UptimeSeconds) * time.Second).String())

	if m.Health.IsHealthy {
		fmt.Printf("  Health:   %s\n", green("healthy"))
		return
	}
	fmt.Printf("  Health:   %s (%d warnings, %d errors)\n", red("unhealthy"), m.Health.WarningCount, m.Health.ErrorCount)
	fmt.Printf("    %s\n", strings.Join(m.Health.Issues, "\n    "))
}
