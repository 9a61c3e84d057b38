package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"reactor-sim/internal/admin"
	"reactor-sim/internal/analysis"
	"reactor-sim/internal/audio"
	"reactor-sim/internal/config"
	"reactor-sim/internal/logging"
	"reactor-sim/internal/metrics"
	"reactor-sim/internal/reactor"
	"reactor-sim/internal/scenario"
)

const adminDisabled = "off"

// greptimeQueue bounds the tables waiting for the database worker.
const greptimeQueue = 256

var (
	simPrintOnly  bool
	simConfigPath string
	simSchemaPath string
	simTick       time.Duration
	simLogFile    string
	simTUI        bool
	simAdminAddr  string
	simScript     string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the reactor core",
	Long:  "simulate starts the reactor engine, streams telemetry and operator logs, and accepts injections from the TUI, the admin UI or a script.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(); err != nil {
			return err
		}
		cfg, err := config.Load(simConfigPath, simSchemaPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("tick") {
			cfg.TickInterval = simTick
		}
		if cmd.Flags().Changed("admin") {
			cfg.Admin.Addr = simAdminAddr
		}

		var script *scenario.Scenario
		if simScript != "" {
			if script, err = scenario.Resolve(simScript); err != nil {
				return err
			}
		}

		// bubbletea owns the terminal; developer logs would corrupt it.
		var logOut io.Writer = os.Stderr
		if simTUI {
			logOut = io.Discard
		}
		logger := logging.New(logOut, logLevel)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, logger)

		client, err := analysis.NewGeminiClient(ctx, analysis.GeminiConfig{
			APIKey:      cfg.Analysis.APIKey,
			Model:       cfg.Analysis.Model,
			SpeechModel: cfg.Analysis.SpeechModel,
			Voice:       cfg.Analysis.Voice,
			Timeout:     cfg.Analysis.Timeout,
		})
		if err != nil {
			return err
		}
		var speaker analysis.Speaker
		player := audio.Discard
		if cfg.Audio.Enabled {
			speaker = client
			if cfg.Audio.OutputDir != "" {
				wp, err := audio.NewWAVFilePlayer(cfg.Audio.OutputDir)
				if err != nil {
					return err
				}
				player = wp
			}
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m := metrics.New(reg)

		var tui *reactor.TUIWriter
		var console reactor.Sink
		if simTUI {
			tui = reactor.NewTUIWriter(overview(cfg), stop)
			console = tui
		}
		writers, cleanup, err := newWriters(ctx, cfg, simPrintOnly, greptimeQueue, simLogFile, cmd.OutOrStdout(), console)
		if err != nil {
			if tui != nil {
				tui.Close()
			}
			return err
		}
		defer cleanup()

		adminOn := cfg.Admin.Addr != "" && cfg.Admin.Addr != adminDisabled
		var hub *admin.Hub
		if adminOn {
			hub = admin.NewHub()
			writers.Add(hub)
		}

		engine, err := reactor.NewEngine(reactor.Options{
			ClusterID:         cfg.ClusterID,
			TickInterval:      cfg.TickInterval,
			IdleDelay:         cfg.IdleDelay,
			TelemetryCapacity: cfg.Telemetry.Capacity,
			LogCapacity:       cfg.Logs.Capacity,
			Analyzer:          client,
			Speaker:           speaker,
			Player:            player,
			Telemetry:         writers,
			Logs:              writers,
			States:            writers,
			Reactions:         writers,
			Metrics:           m,
		})
		if err != nil {
			if tui != nil {
				tui.Close()
			}
			return err
		}

		if tui != nil {
			tui.SetSubmitter(func(input string) {
				if err := engine.Submit(ctx, input); err != nil {
					logger.Warn("tui injection not delivered", "err", err)
				}
			})
		}
		if adminOn {
			srv := admin.NewServer(engine, hub, m)
			go func() {
				if err := srv.Start(ctx, cfg.Admin.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("admin server failed", "addr", cfg.Admin.Addr, "err", err)
				}
			}()
			if tui != nil {
				tui.SetAdminAddr(cfg.Admin.Addr)
			}
		}
		if script != nil {
			go runScript(ctx, logger, script, engine)
		}

		err = engine.Run(ctx)
		if tui != nil {
			tui.Close()
		}
		logger.Info("reactor stopped")
		return err
	},
}

func runScript(ctx context.Context, logger *slog.Logger, sc *scenario.Scenario, engine *reactor.Engine) {
	if err := sc.Run(ctx, engine, nil); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scenario aborted", "scenario", sc.Name, "err", err)
	}
}

func init() {
	simulateCmd.Flags().BoolVar(&simPrintOnly, "print-only", false, "Print engine output to STDOUT instead of writing to DB")
	simulateCmd.Flags().StringVar(&simConfigPath, "config", "config/reactor.yaml", "Path to reactor configuration YAML")
	simulateCmd.Flags().StringVar(&simSchemaPath, "schema", "schemas/reactor.cue", "Path to CUE schema file")
	simulateCmd.Flags().DurationVar(&simTick, "tick", config.DefaultTickInterval, "Telemetry tick interval (e.g. 500ms, 2s)")
	simulateCmd.Flags().StringVar(&simLogFile, "log-file", "", "Path to export telemetry, logs, state and reactions (JSONL)")
	simulateCmd.Flags().BoolVar(&simTUI, "tui", false, "Run the interactive terminal dashboard")
	simulateCmd.Flags().StringVar(&simAdminAddr, "admin", config.DefaultAdminAddr, fmt.Sprintf("Admin UI listen address (%q disables)", adminDisabled))
	simulateCmd.Flags().StringVar(&simScript, "script", "", "Built-in scenario name (demo, stress) or path to a scenario YAML")
}
