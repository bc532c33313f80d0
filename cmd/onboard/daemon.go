package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/matthewjhunter/onboard"
)

type jobRunner interface {
	RunJob(ctx context.Context, name string, now time.Time) (*onboard.JobResult, error)
	JobNames() []string
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// newScheduler registers one cron entry per schedule line. Entries for jobs
// the runner does not know are skipped with a warning; a bad spec is an error.
// Overlapping runs of the same job are skipped.
func newScheduler(ctx context.Context, runner jobRunner, schedule map[string]string, loc *time.Location, log zerolog.Logger) (*cron.Cron, int, error) {
	clog := cronLogger{log: log}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)

	known := make(map[string]bool)
	for _, name := range runner.JobNames() {
		known[name] = true
	}

	names := make([]string, 0, len(schedule))
	for name := range schedule {
		names = append(names, name)
	}
	sort.Strings(names)

	added := 0
	for _, name := range names {
		spec := schedule[name]
		if spec == "" {
			continue
		}
		if !known[name] {
			log.Warn().Str("job", name).Msg("scheduled job is not registered, skipping")
			continue
		}
		job := name
		if _, err := c.AddFunc(spec, func() {
			if ctx.Err() != nil {
				return
			}
			if _, err := runner.RunJob(ctx, job, time.Now()); err != nil {
				log.Error().Err(err).Str("job", job).Msg("scheduled job failed")
			}
		}); err != nil {
			return nil, 0, fmt.Errorf("schedule %s %q: %w", name, spec, err)
		}
		added++
	}
	return c, added, nil
}

func daemonCmd() *cobra.Command {
	var metricsAddr string
	var runNow bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run maintenance jobs on their cron schedules",
		Long: `Run every job listed in the config's schedule section on its cron spec.
Designed for running inside a container or as a background service.
Handles SIGINT/SIGTERM for graceful shutdown (waits for running jobs).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			c, n, err := newScheduler(ctx, eng, cfg.Schedule, time.Local, logger)
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("no jobs scheduled; add entries to the schedule section")
			}

			var srv *http.Server
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				srv = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error().Err(err).Msg("metrics server failed")
					}
				}()
			}

			if runNow {
				names := make([]string, 0, len(cfg.Schedule))
				for name := range cfg.Schedule {
					names = append(names, name)
				}
				sort.Strings(names)
				if _, err := eng.RunJobs(ctx, names, time.Now()); err != nil {
					logger.Warn().Err(err).Msg("initial run had failures")
				}
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

			logger.Info().Int("jobs", n).Msg("daemon started")
			c.Start()

			<-sig
			logger.Info().Msg("received shutdown signal, waiting for running jobs")
			cancel()
			<-c.Stop().Done()
			if srv != nil {
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				srv.Shutdown(shutdownCtx)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().BoolVar(&runNow, "run-now", false, "run every scheduled job once before waiting for the schedule")
	return cmd
}
