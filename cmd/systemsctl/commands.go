package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/oriumgames/systems"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	ticks      int
	logLevel   string

	rootCmd = &cobra.Command{
		Use:           "systemsctl",
		Short:         "Run and inspect a systems scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Tick the demo simulation",
		Long: `Runs the projectile simulation at the configured tick rate until
interrupted, or for a fixed number of ticks with --ticks.`,
		RunE: runSimulation,
	}

	graphCmd = &cobra.Command{
		Use:   "graph",
		Short: "Print the execution order of the demo systems",
		RunE:  printGraph,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (.toml, .yaml or .yml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	runCmd.Flags().IntVarP(&ticks, "ticks", "n", 0, "number of ticks to run, 0 runs until interrupted")

	rootCmd.AddCommand(runCmd, graphCmd)
}

func loadConfig() (*systems.Config, error) {
	cfg := systems.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = systems.LoadConfig(configPath); err != nil {
			return nil, err
		}
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newScheduler builds the demo scheduler. reg may be nil.
func newScheduler(cfg *systems.Config, log *zap.Logger, reg prometheus.Registerer) (*systems.Scheduler, error) {
	return systems.NewBuilder().
		Config(cfg).
		Logger(log).
		Registerer(reg).
		Bundle(demoBundle(cfg.Scheduler.TickRate.Seconds())).
		OnUnhandled(func(err error) {
			log.Error("system failure", zap.Error(err))
		}).
		Init()
}

func runSimulation(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := systems.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
	}

	s, err := newScheduler(cfg, log, registerer(reg))
	if err != nil {
		return err
	}
	defer s.Dispose()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if reg != nil {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr))
	}

	log.Info("simulation started",
		zap.Duration("tick_rate", cfg.Scheduler.TickRate),
		zap.Int("ticks", ticks))

	if ticks > 0 {
		for range ticks {
			if ctx.Err() != nil {
				break
			}
			s.Update()
		}
	} else if err := s.Run(ctx, cfg.Scheduler.TickRate); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return summarize(cmd.OutOrStdout(), s)
}

// registerer avoids handing the builder a typed nil.
func registerer(reg *prometheus.Registry) prometheus.Registerer {
	if reg == nil {
		return nil
	}
	return reg
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

func summarize(w io.Writer, s *systems.Scheduler) error {
	body := systems.GetResource[Body](s)
	stats := systems.GetResource[Stats](s)
	clock := systems.GetResource[Clock](s)
	_, err := fmt.Fprintf(w, "ticks=%d position=(%.2f, %.2f, %.2f) bounces=%d max_speed=%.2f\n",
		clock.Tick, body.Position.X(), body.Position.Y(), body.Position.Z(), stats.Bounces, stats.MaxSpeed)
	return err
}

func printGraph(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := newScheduler(cfg, zap.NewNop(), nil)
	if err != nil {
		return err
	}
	defer s.Dispose()

	// Systems are sorted when a tick admits them.
	s.Update()
	writeGroup(cmd.OutOrStdout(), s, reflect.TypeFor[systems.RootGroup](), 0)
	return nil
}

func writeGroup(w io.Writer, s *systems.Scheduler, group reflect.Type, depth int) {
	for _, child := range s.Order(group) {
		marker := ""
		if s.Failed(child) {
			marker = " (failed)"
		}
		fmt.Fprintf(w, "%s%s%s\n", strings.Repeat("  ", depth), child, marker)
		writeGroup(w, s, child, depth+1)
	}
}
