package main

import (
	"context"
	"io"

	"reactor-sim/internal/config"
	"reactor-sim/internal/reactor"
)

// newWriters builds the engine output fan-out. console replaces the stdout
// writer when set (the TUI). GreptimeDB is used when an endpoint is
// configured and printOnly is false; otherwise records go to out. ctx
// parents database writes, and a positive dbQueue moves them off the
// caller's goroutine. logFile adds JSONL exports next to it. The returned
// cleanup flushes the database queue and closes any files.
func newWriters(ctx context.Context, cfg *config.Config, printOnly bool, dbQueue int, logFile string, out io.Writer, console reactor.Sink) (*reactor.MultiWriter, func(), error) {
	var closers []func()
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}
	mw := reactor.NewMultiWriter(nil, nil, nil, nil)

	useDB := !printOnly && cfg.Greptime.Endpoint != ""
	switch {
	case console != nil:
		mw.Add(console)
	case !useDB:
		mw.Add(reactor.NewStdoutWriter(out, overview(cfg)))
	}
	if useDB {
		gw, err := reactor.NewGreptimeDBWriter(ctx, cfg.Greptime.Endpoint, cfg.Greptime.Database)
		if err != nil {
			return nil, nil, err
		}
		if dbQueue > 0 {
			gw.Start(dbQueue)
		}
		closers = append(closers, func() { gw.Close() })
		mw.Add(gw)
	}

	if logFile == "" {
		return mw, cleanup, nil
	}
	fw, err := reactor.NewFileWriter(logFile, logFile+".logs", logFile+".state", logFile+".reactions")
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	mw.Add(fw)
	closers = append(closers, func() { fw.Close() })
	return mw, cleanup, nil
}

func overview(cfg *config.Config) *reactor.Overview {
	return &reactor.Overview{
		ClusterID:    cfg.ClusterID,
		TickInterval: cfg.TickInterval,
		IdleDelay:    cfg.IdleDelay,
		Model:        cfg.Analysis.Model,
		SpeechModel:  cfg.Analysis.SpeechModel,
	}
}
