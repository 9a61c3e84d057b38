package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"reactor-sim/internal/config"
	"reactor-sim/internal/logging"
	"reactor-sim/internal/reactor"
)

var (
	replayInput     string
	replaySpeed     float64
	replayPrintOnly bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a telemetry log file",
	Long:  "replay feeds telemetry samples recorded with simulate --log-file back into GreptimeDB or STDOUT.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		cfg, err := config.Load("", "")
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger := logging.New(nil, logLevel)
		ctx = logging.NewContext(ctx, logger)

		writer, cleanup, err := newWriters(ctx, cfg, replayPrintOnly, 0, "", cmd.OutOrStdout(), nil)
		if err != nil {
			return err
		}
		defer cleanup()

		n, err := reactor.ReplayLogFile(ctx, replayInput, writer, replaySpeed)
		logger.Info("replay finished", "input", replayInput, "samples", n)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to telemetry log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print telemetry to STDOUT instead of writing to DB")
	replayCmd.MarkFlagRequired("input")
}
