package reactor

import (
	"errors"

	"reactor-sim/internal/eventlog"
	"reactor-sim/internal/telemetry"
)

// MultiWriter fans engine output out to several writers. A failing writer
// does not stop the others; errors are joined.
type MultiWriter struct {
	telewriters  []TelemetryWriter
	logwriters   []LogWriter
	statewriters []StateWriter
	reactwriters []ReactionWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(tws []TelemetryWriter, lws []LogWriter, sws []StateWriter, rws []ReactionWriter) *MultiWriter {
	return &MultiWriter{telewriters: tws, logwriters: lws, statewriters: sws, reactwriters: rws}
}

// Add registers w for every writer interface it implements.
func (mw *MultiWriter) Add(w any) {
	if tw, ok := w.(TelemetryWriter); ok {
		mw.telewriters = append(mw.telewriters, tw)
	}
	if lw, ok := w.(LogWriter); ok {
		mw.logwriters = append(mw.logwriters, lw)
	}
	if sw, ok := w.(StateWriter); ok {
		mw.statewriters = append(mw.statewriters, sw)
	}
	if rw, ok := w.(ReactionWriter); ok {
		mw.reactwriters = append(mw.reactwriters, rw)
	}
}

// Write sends a sample to all telemetry writers.
func (mw *MultiWriter) Write(s telemetry.Sample) error {
	var errs []error
	for _, w := range mw.telewriters {
		errs = append(errs, w.Write(s))
	}
	return errors.Join(errs...)
}

// WriteBatch sends samples to all telemetry writers, using batch if supported.
func (mw *MultiWriter) WriteBatch(rows []telemetry.Sample) error {
	var errs []error
	for _, w := range mw.telewriters {
		errs = append(errs, writeSamples(w, rows))
	}
	return errors.Join(errs...)
}

// WriteLog sends a log entry to all log writers.
func (mw *MultiWriter) WriteLog(e eventlog.Entry) error {
	var errs []error
	for _, w := range mw.logwriters {
		errs = append(errs, w.WriteLog(e))
	}
	return errors.Join(errs...)
}

// WriteLogs sends entries to all log writers, using batch if supported.
func (mw *MultiWriter) WriteLogs(entries []eventlog.Entry) error {
	var errs []error
	for _, w := range mw.logwriters {
		errs = append(errs, writeEntries(w, entries))
	}
	return errors.Join(errs...)
}

// WriteState sends a state row to all state writers.
func (mw *MultiWriter) WriteState(row telemetry.StateRow) error {
	var errs []error
	for _, w := range mw.statewriters {
		errs = append(errs, w.WriteState(row))
	}
	return errors.Join(errs...)
}

// WriteReaction sends a reaction row to all reaction writers.
func (mw *MultiWriter) WriteReaction(row telemetry.ReactionRow) error {
	var errs []error
	for _, w := range mw.reactwriters {
		errs = append(errs, w.WriteReaction(row))
	}
	return errors.Join(errs...)
}
