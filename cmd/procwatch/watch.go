package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dreamsxin/procwatch/manager"
	"github.com/dreamsxin/procwatch/types"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Monitor processes until interrupted",
	Long: `Register processes and monitor them until SIGINT or SIGTERM.

Fired and resolved alerts are printed as they happen. Prometheus metrics are
served at /metrics on the configured metrics address.

Examples:
  # Watch two processes by logical name
  procwatch watch --process api=1234 --process worker=5678

  # Also list unregistered candidate processes at startup
  procwatch watch --process api=1234 --discover`,
	RunE: func(cmd *cobra.Command, args []string) error {
		processes, _ := cmd.Flags().GetStringArray("process")
		discover, _ := cmd.Flags().GetBool("discover")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		targets, err := parseTargets(processes)
		if err != nil {
			return err
		}
		if len(targets) == 0 && !discover {
			return errors.New("nothing to watch: pass --process name=pid or --discover")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if metricsAddr != "" {
			cfg.MetricsAddr = metricsAddr
		}
		log := cfg.NewLogger()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(prometheus.NewGoCollector())
		reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

		engine := manager.New(cfg, manager.Options{Logger: log, Registerer: reg})
		defer engine.Close()
		engine.AddAlertCallback(printAlert)

		for _, t := range targets {
			if err := engine.AddProcess(ctx, t.name, t.pid); err != nil {
				return err
			}
			fmt.Printf("Watching %s (PID %d)\n", t.name, t.pid)
		}

		if discover {
			candidates, err := engine.DiscoverCandidates(ctx)
			if err != nil {
				log.WithError(err).Warn("discovery failed")
			}
			printCandidates(candidates)
		}

		if err := engine.StartMonitoring(); err != nil {
			return err
		}
		return serve(ctx, cfg.MetricsAddr, reg, log)
	},
}

func init() {
	watchCmd.Flags().StringArrayP("process", "p", nil, "process to watch as name=pid (repeatable)")
	watchCmd.Flags().Bool("discover", false, "list unregistered candidate processes at startup")
	watchCmd.Flags().String("metrics-addr", "", "address for the /metrics endpoint (overrides config)")
	rootCmd.AddCommand(watchCmd)
}

// serve exposes /metrics until ctx is cancelled
func serve(ctx context.Context, addr string, reg *prometheus.Registry, log logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", addr).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type target struct {
	name string
	pid  int
}

// parseTargets accepts name=pid, or a bare pid named after itself
func parseTargets(args []string) ([]target, error) {
	targets := make([]target, 0, len(args))
	seen := make(map[string]bool, len(args))
	for _, arg := range args {
		name, pidText, found := strings.Cut(arg, "=")
		if !found {
			name, pidText = "pid-"+arg, arg
		}
		name = strings.TrimSpace(name)
		pid, err := strconv.Atoi(strings.TrimSpace(pidText))
		if err != nil || pid <= 0 {
			return nil, fmt.Errorf("invalid process %q: want name=pid", arg)
		}
		if name == "" {
			return nil, fmt.Errorf("invalid process %q: empty name", arg)
		}
		if seen[name] {
			return nil, fmt.Errorf("invalid process %q: duplicate name %q", arg, name)
		}
		seen[name] = true
		targets = append(targets, target{name: name, pid: pid})
	}
	return targets, nil
}

func printAlert(a types.MonitoringAlert, resolved bool) error {
	fmt.Println(formatAlert(a, resolved))
	return nil
}

func formatAlert(a types.MonitoringAlert, resolved bool) string {
	ts := a.Timestamp.Format(time.TimeOnly)
	if resolved {
		green := color.New(color.FgGreen).SprintFunc()
		if a.ResolvedAt != nil {
			ts = a.ResolvedAt.Format(time.TimeOnly)
		}
		return fmt.Sprintf("%s %s %s/%s", ts, green("RESOLVED"), a.ServerID, a.AlertType)
	}

	label := color.New(color.FgYellow, color.Bold).SprintFunc()
	if a.Severity == types.SeverityError {
		label = color.New(color.FgRed, color.Bold).SprintFunc()
	}
	return fmt.Sprintf("%s %s %s/%s: %s", ts, label(strings.ToUpper(string(a.Severity))), a.ServerID, a.AlertType, a.Message)
}
