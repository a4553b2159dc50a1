package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/debris-avoidance-sim/core"
	"github.com/signalsfoundry/debris-avoidance-sim/internal/config"
	"github.com/signalsfoundry/debris-avoidance-sim/internal/logging"
	"github.com/signalsfoundry/debris-avoidance-sim/internal/observability"
	"github.com/signalsfoundry/debris-avoidance-sim/internal/recorder"
	"github.com/signalsfoundry/debris-avoidance-sim/internal/watch"
	"github.com/signalsfoundry/debris-avoidance-sim/timectrl"
)

const tracerName = "github.com/signalsfoundry/debris-avoidance-sim/cmd/simulator"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scenario",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().Uint64("ticks", 0, "number of ticks to run (0 = until the mission is over or interrupted)")
	runCmd.Flags().String("mode", "", "clock mode: accelerated or realtime")
	runCmd.Flags().Bool("realtime", false, "shorthand for --mode realtime")
	runCmd.Flags().Float64("speed", 0, "simulated seconds per wall second in realtime mode")
	runCmd.Flags().String("output", "", "snapshot output: text, jsonl or none")
	runCmd.Flags().Uint64("every", 0, "print a world summary every N ticks")
	runCmd.Flags().Bool("stop-on-mission-over", true, "stop once every satellite is gone")
	runCmd.Flags().Bool("watch", false, "reset the world when the scenario file changes")
	runCmd.Flags().String("db", "", "record the run into this SQLite database")
	runCmd.Flags().String("metrics-addr", "", "serve Prometheus /metrics on this address")

	for key, flag := range map[string]string{
		"ticks":                "ticks",
		"mode":                 "mode",
		"speed":                "speed",
		"output":               "output",
		"every":                "every",
		"stop_on_mission_over": "stop-on-mission-over",
		"watch":                "watch",
		"record.path":          "db",
		"metrics.addr":         "metrics-addr",
	} {
		_ = viper.BindPFlag(key, runCmd.Flags().Lookup(flag))
	}

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if rt, _ := cmd.Flags().GetBool("realtime"); rt {
		viper.Set("mode", "realtime")
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracing, err := observability.StartTracing(ctx, observability.TraceSettings{
		Enabled:     cfg.Tracing.Enabled,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
		Attributes:  map[string]string{"sim.scenario": cfg.Scenario},
	}, log)
	if err != nil {
		return fmt.Errorf("failed to initialise tracing: %w", err)
	}
	defer tracing.Close(context.Background())

	res, err := runSimulation(ctx, cfg, cmd.OutOrStdout(), log, core.WithTracer(tracing.Tracer(tracerName)))
	if err != nil {
		return err
	}
	printSummary(cmd.ErrOrStderr(), cfg, res)
	return nil
}

// runResult describes a finished run.
type runResult struct {
	RunID   string
	Final   core.Snapshot
	Reloads int
	Wall    time.Duration
}

// runSimulation loads the scenario, wires the engine to its collaborators and
// drives it with a TimeController until the run ends.
func runSimulation(ctx context.Context, cfg config.Config, out io.Writer, log logging.Logger, extra ...core.EngineOption) (runResult, error) {
	if log == nil {
		log = logging.Noop()
	}
	scenario, err := core.LoadScenarioFile(cfg.Scenario)
	if err != nil {
		return runResult{}, err
	}

	ctx, runID := logging.EnsureRunID(ctx)
	log.Info(ctx, "starting simulation",
		logging.String("scenario", cfg.Scenario),
		logging.Int("satellites", len(scenario.Satellites)),
		logging.Int("debris", len(scenario.Debris)),
		logging.String("mode", cfg.Mode),
	)

	opts := append([]core.EngineOption{core.WithLogger(log)}, extra...)
	var collector *observability.EngineCollector
	if cfg.Metrics.Addr != "" {
		collector, err = observability.NewEngineCollector(prometheus.NewRegistry())
		if err != nil {
			return runResult{}, fmt.Errorf("failed to initialise metrics: %w", err)
		}
		opts = append(opts, core.WithMetricsRecorder(collector))
		srv := serveMetrics(ctx, cfg.Metrics.Addr, collector, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	engine, err := core.NewEngine(scenario, opts...)
	if err != nil {
		return runResult{}, err
	}

	var rec *recorder.Recorder
	if cfg.Record.Path != "" {
		rec, err = recorder.Open(ctx, cfg.Record.Path, log)
		if err != nil {
			return runResult{}, err
		}
		defer rec.Close()
		if err := rec.BeginRun(ctx, runID, cfg.Scenario, scenario); err != nil {
			return runResult{}, err
		}
		engine.RegisterTickListener(rec.Listener(ctx))
	}

	p := newPrinter(out, cfg.Output, cfg.Every)
	engine.RegisterTickListener(p.Print)

	var reloads <-chan watch.Reload
	if cfg.Watch {
		w, err := watch.NewScenarioWatcher(cfg.Scenario)
		if err != nil {
			return runResult{}, fmt.Errorf("failed to watch scenario: %w", err)
		}
		if err := w.Start(); err != nil {
			return runResult{}, fmt.Errorf("failed to watch scenario: %w", err)
		}
		defer w.Stop()
		reloads = w.Changes
	}

	mode := timectrl.Accelerated
	if cfg.Mode == "realtime" {
		mode = timectrl.RealTime
	}
	tc := timectrl.NewTimeController(scenario.Epoch, scenario.Tick, mode)
	tc.Speed = cfg.Speed

	res := runResult{RunID: runID, Final: engine.Snapshot()}
	active := scenario
	tc.AddListener(func(time.Time) {
		if r, ok := latestReload(reloads); ok {
			if applyReload(ctx, engine, rec, r, log) {
				active = r.Config
				res.Reloads++
				res.Final = engine.Snapshot()
			}
		}

		next := res.Final.Tick + 1
		for _, sc := range active.CommandsAt(next) {
			err := engine.IssueCommand(sc.Satellite, sc.Command)
			collector.RecordCommand(sc.Command.Kind, err == nil)
			if err != nil {
				log.Warn(ctx, "scripted command rejected",
					logging.Uint64("tick", next),
					logging.String("satellite", sc.Satellite),
					logging.Err(err),
				)
			}
		}

		res.Final = engine.Tick(ctx)
		if cfg.StopOnMissionOver && res.Final.MissionOver {
			tc.Stop()
		}
	})

	began := time.Now()
	<-tc.Start(ctx, cfg.Ticks)
	res.Wall = time.Since(began)

	if rec != nil {
		if err := rec.Err(); err != nil {
			return res, err
		}
		if err := rec.FinishRun(context.Background()); err != nil {
			return res, err
		}
	}
	if err := p.Err(); err != nil {
		return res, fmt.Errorf("failed to write output: %w", err)
	}
	log.Info(ctx, "simulation finished",
		logging.Uint64("ticks", res.Final.Tick),
		logging.Float("score", res.Final.Score),
		logging.Bool("mission_over", res.Final.MissionOver),
		logging.Duration("wall", res.Wall),
	)
	return res, nil
}

// latestReload drains ch without blocking and returns the newest reload.
func latestReload(ch <-chan watch.Reload) (watch.Reload, bool) {
	var (
		last watch.Reload
		got  bool
	)
	for {
		select {
		case r, ok := <-ch:
			if !ok {
				return last, got
			}
			last, got = r, true
		default:
			return last, got
		}
	}
}

// applyReload resets the engine to a reloaded scenario. Invalid reloads are
// logged and the running world is kept.
func applyReload(ctx context.Context, engine *core.Engine, rec *recorder.Recorder, r watch.Reload, log logging.Logger) bool {
	if r.Err != nil {
		log.Warn(ctx, "ignoring invalid scenario change", logging.String("path", r.Path), logging.Err(r.Err))
		return false
	}
	if err := engine.Reset(r.Config); err != nil {
		log.Warn(ctx, "ignoring invalid scenario change", logging.String("path", r.Path), logging.Err(err))
		return false
	}
	log.Info(ctx, "scenario reloaded", logging.String("path", r.Path))
	if rec == nil {
		return true
	}
	if err := rec.FinishRun(ctx); err != nil && !errors.Is(err, recorder.ErrNoRun) {
		log.Warn(ctx, "failed to close recorded run", logging.Err(err))
	}
	if err := rec.BeginRun(ctx, logging.NewRunID(), r.Path, r.Config); err != nil {
		log.Warn(ctx, "failed to start recorded run", logging.Err(err))
	}
	return true
}

func serveMetrics(ctx context.Context, addr string, collector *observability.EngineCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(ctx, "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(ctx, "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func printSummary(w io.Writer, cfg config.Config, res runResult) {
	s := res.Final.Stats
	fmt.Fprintf(w, "run %s: %s ticks (%s simulated) in %s, score %s\n",
		res.RunID,
		humanize.Comma(int64(res.Final.Tick)),
		res.Final.Elapsed,
		res.Wall.Round(time.Millisecond),
		humanize.CommafWithDigits(res.Final.Score, 1),
	)
	fmt.Fprintf(w, "  satellites %d active, %d destroyed, %d deorbited; debris %d active, %s fragments, %d spawned\n",
		s.ActiveSatellites, s.Destroyed, s.Deorbited, s.ActiveDebris,
		humanize.Comma(int64(s.FragmentsSpawned)), s.DebrisSpawned)
	fmt.Fprintf(w, "  %s collisions, %s close approaches\n",
		humanize.Comma(int64(s.Collisions)), humanize.Comma(int64(s.CloseApproaches)))
	if res.Final.MissionOver {
		fmt.Fprintln(w, "  mission over: no satellites left")
	}
	if res.Reloads > 0 {
		fmt.Fprintf(w, "  scenario reloaded %d times\n", res.Reloads)
	}
	if cfg.Record.Path != "" {
		if info, err := os.Stat(cfg.Record.Path); err == nil {
			fmt.Fprintf(w, "  recorded to %s (%s)\n", cfg.Record.Path, humanize.Bytes(uint64(info.Size())))
		}
	}
}
