package reactor

import (
	"reactor-sim/internal/eventlog"
	"reactor-sim/internal/telemetry"
)

// TelemetryWriter receives every telemetry sample the engine produces.
type TelemetryWriter interface {
	Write(telemetry.Sample) error
}

// Optional: telemetry writers may support batch mode.
type batchWriter interface {
	WriteBatch([]telemetry.Sample) error
}

// LogWriter receives user-visible log entries.
type LogWriter interface {
	WriteLog(eventlog.Entry) error
}

// Optional: log writers may support batch mode.
type batchLogWriter interface {
	WriteLogs([]eventlog.Entry) error
}

// StateWriter receives controller state rows.
type StateWriter interface {
	WriteState(telemetry.StateRow) error
}

// ReactionWriter receives one row per resolved injection.
type ReactionWriter interface {
	WriteReaction(telemetry.ReactionRow) error
}

func writeSamples(w TelemetryWriter, rows []telemetry.Sample) error {
	if bw, ok := w.(batchWriter); ok {
		return bw.WriteBatch(rows)
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

func writeEntries(w LogWriter, entries []eventlog.Entry) error {
	if bw, ok := w.(batchLogWriter); ok {
		return bw.WriteLogs(entries)
	}
	for _, e := range entries {
		if err := w.WriteLog(e); err != nil {
			return err
		}
	}
	return nil
}
