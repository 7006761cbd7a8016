package commands

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/desktide/desktide/pkg/config"
	"github.com/desktide/desktide/pkg/engine"
	"github.com/desktide/desktide/pkg/stores"
	"github.com/desktide/desktide/pkg/telemetry"
)

func newApplyCommand() *cobra.Command {
	var (
		skip        []string
		gpu         string
		dryRun      bool
		parallelism int
		timeout     time.Duration
		watch       bool
		journalPath string
		noJournal   bool
		traceSpans  bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply the declared configuration to this machine",
		Long: `Apply loads the configuration, plans it against declared
dependencies and applies every resource that is not already satisfied.

Already-satisfied resources are skipped, so apply is safe to re-run.
A fatal resource failure halts the run; best-effort failures are
reported and the run continues.`,
		Example: `  # Apply the default configuration
  desktide apply

  # Preview without touching the system
  desktide apply --dry-run

  # Skip the gaming feature, select nvidia GPU resources
  desktide apply --skip gaming --gpu nvidia

  # Re-apply whenever the configuration changes
  desktide apply --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}

			metrics := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: true})
			tracer, err := telemetry.NewTracer(telemetry.TracingConfig{
				Enabled:  traceSpans,
				Exporter: "stdout",
			}, "desktide", buildVersion)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tracer.Shutdown(shutdownCtx)
			}()
			runner := newRunner(log, metrics)
			modes := config.Modes{Skip: skip, GPU: gpu}
			opts := engine.Options{
				DryRun:      dryRun,
				Parallelism: parallelism,
				StepTimeout: timeout,
			}

			var journal *stores.Journal
			if !noJournal && !dryRun {
				path := journalPath
				if path == "" {
					path, err = defaultJournalPath()
					if err != nil {
						return err
					}
				}
				journal, err = stores.NewJournal(stores.Config{Path: path})
				if err != nil {
					return err
				}
				if err := journal.Init(cmd.Context()); err != nil {
					return err
				}
				defer func() { _ = journal.Close() }()
			}

			runOnce := func(ctx context.Context) (*engine.RunReport, error) {
				resources, err := loadResources(modes)
				if err != nil {
					return nil, err
				}
				report, err := runner.Run(ctx, resources, opts)
				if err != nil {
					return nil, err
				}
				if journal != nil {
					if err := journal.SaveReport(ctx, configPath, report); err != nil {
						log.WithError(err).Warn("failed to record run in journal")
					}
				}
				renderReport(report)
				return report, nil
			}

			report, err := runOnce(cmd.Context())
			if err != nil {
				return err
			}

			if watch {
				if metricsAddr != "" {
					if handler := metrics.Handler(); handler != nil {
						mux := http.NewServeMux()
						mux.Handle("/metrics", handler)
						srv := &http.Server{Addr: metricsAddr, Handler: mux}
						go func() {
							if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
								log.WithError(err).Error("metrics server failed")
							}
						}()
						defer func() { _ = srv.Close() }()
					}
				}

				watcher := config.NewWatcher(log)
				err := watcher.Watch(cmd.Context(), configPath, func(*config.Document) error {
					_, err := runOnce(cmd.Context())
					return err
				})
				if err != nil {
					return err
				}
				<-cmd.Context().Done()
				return nil
			}

			if code := report.ExitCode(); code != 0 {
				return &runFailedError{code: code}
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&skip, "skip", nil, "feature label to skip (repeatable)")
	cmd.Flags().StringVar(&gpu, "gpu", "", "GPU vendor whose resources to include")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan and probe only, apply nothing")
	cmd.Flags().IntVar(&parallelism, "parallelism", 1, "max concurrent steps per level (1 = sequential)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-step timeout (default 10m)")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-apply when the configuration file changes")
	cmd.Flags().StringVar(&journalPath, "journal", "", "run journal database path")
	cmd.Flags().BoolVar(&noJournal, "no-journal", false, "do not record the run")
	cmd.Flags().BoolVar(&traceSpans, "trace", false, "emit trace spans for each step to stdout")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics at this address in watch mode")

	return cmd
}

func renderReport(report *engine.RunReport) {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		return
	}
	report.Render(os.Stdout)
}
