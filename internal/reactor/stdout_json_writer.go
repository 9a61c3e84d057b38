package reactor

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"reactor-sim/internal/eventlog"
	"reactor-sim/internal/telemetry"
)

// JSONStdoutWriter prints every engine record as one JSON line.
type JSONStdoutWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

type jsonRecord struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

func (w *JSONStdoutWriter) emit(kind string, v any) error {
	data, err := json.Marshal(jsonRecord{Kind: kind, Data: v})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// Write outputs a telemetry sample.
func (w *JSONStdoutWriter) Write(s telemetry.Sample) error { return w.emit("telemetry", s) }

// WriteLog outputs a log entry.
func (w *JSONStdoutWriter) WriteLog(e eventlog.Entry) error { return w.emit("log", e) }

// WriteState outputs a state row.
func (w *JSONStdoutWriter) WriteState(row telemetry.StateRow) error { return w.emit("state", row) }

// WriteReaction outputs a reaction row.
func (w *JSONStdoutWriter) WriteReaction(row telemetry.ReactionRow) error {
	return w.emit("reaction", row)
}
