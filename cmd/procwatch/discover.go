package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dreamsxin/procwatch/discovery"
	"github.com/dreamsxin/procwatch/system"
	"github.com/dreamsxin/procwatch/types"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List processes that look like unregistered workers",
	Long: `Scan the host for interpreter processes (python, node, deno, ...) whose
command line carries a worker marker. Nothing is registered; use
"procwatch watch --process name=pid" to monitor a candidate.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		svc := discovery.NewService(system.NewCapability(), cfg.Discovery, cfg.NewLogger())
		candidates, err := svc.Discover(cmd.Context(), nil)
		if err != nil {
			return err
		}
		printCandidates(candidates)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}

func printCandidates(candidates []types.CandidateProcess) {
	if len(candidates) == 0 {
		fmt.Println("No candidate processes found")
		return
	}
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("%s (%d)\n", cyan("Candidate processes"), len(candidates))
	for _, c := range candidates {
		fmt.Printf("  %-8d %-12s %s\n", c.PID, c.Name, gray(c.Cmdline))
	}
}
