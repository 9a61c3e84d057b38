package reactor

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"reactor-sim/internal/eventlog"
	"reactor-sim/internal/telemetry"
)

// FileWriter writes engine output to JSONL files. The telemetry file holds
// bare samples so it can be replayed.
type FileWriter struct {
	mu       sync.Mutex
	files    []*os.File
	teleEnc  *json.Encoder
	logEnc   *json.Encoder
	stateEnc *json.Encoder
	reactEnc *json.Encoder
}

// NewFileWriter creates a FileWriter. logPath, statePath or reactionPath
// may be empty to skip those records.
func NewFileWriter(telemetryPath, logPath, statePath, reactionPath string) (*FileWriter, error) {
	fw := &FileWriter{}
	open := func(path string) (*json.Encoder, error) {
		if path == "" {
			return nil, nil
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", path, err)
		}
		fw.files = append(fw.files, f)
		return json.NewEncoder(f), nil
	}
	var err error
	if fw.teleEnc, err = open(telemetryPath); err != nil {
		fw.Close()
		return nil, err
	}
	if fw.logEnc, err = open(logPath); err != nil {
		fw.Close()
		return nil, err
	}
	if fw.stateEnc, err = open(statePath); err != nil {
		fw.Close()
		return nil, err
	}
	if fw.reactEnc, err = open(reactionPath); err != nil {
		fw.Close()
		return nil, err
	}
	return fw, nil
}

func (f *FileWriter) encode(enc *json.Encoder, v any) error {
	if enc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return enc.Encode(v)
}

// Write logs a single telemetry sample.
func (f *FileWriter) Write(s telemetry.Sample) error { return f.encode(f.teleEnc, s) }

// WriteBatch logs multiple samples.
func (f *FileWriter) WriteBatch(rows []telemetry.Sample) error {
	for _, r := range rows {
		if err := f.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteLog logs a log entry, if enabled.
func (f *FileWriter) WriteLog(e eventlog.Entry) error { return f.encode(f.logEnc, e) }

// WriteLogs logs multiple entries.
func (f *FileWriter) WriteLogs(entries []eventlog.Entry) error {
	for _, e := range entries {
		if err := f.WriteLog(e); err != nil {
			return err
		}
	}
	return nil
}

// WriteState logs a state row, if enabled.
func (f *FileWriter) WriteState(row telemetry.StateRow) error { return f.encode(f.stateEnc, row) }

// WriteReaction logs a reaction row, if enabled.
func (f *FileWriter) WriteReaction(row telemetry.ReactionRow) error {
	return f.encode(f.reactEnc, row)
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	for _, file := range f.files {
		if e := file.Close(); e != nil && err == nil {
			err = e
		}
	}
	f.files = nil
	return err
}
