package reactor

import (
	"errors"
	"testing"

	"reactor-sim/internal/eventlog"
	"reactor-sim/internal/telemetry"
)

type failingWriter struct{ calls int }

func (f *failingWriter) Write(telemetry.Sample) error {
	f.calls++
	return errors.New("sink down")
}

type singleLogWriter struct{ entries []eventlog.Entry }

func (s *singleLogWriter) WriteLog(e eventlog.Entry) error {
	s.entries = append(s.entries, e)
	return nil
}

func TestMultiWriterContinuesPastErrors(t *testing.T) {
	bad := &failingWriter{}
	good := &recordingWriter{}
	mw := NewMultiWriter([]TelemetryWriter{bad, good}, nil, nil, nil)
	err := mw.Write(telemetry.Sample{Sequence: 3})
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if bad.calls != 1 || len(good.samples) != 1 {
		t.Fatalf("fan-out stopped early: bad=%d good=%d", bad.calls, len(good.samples))
	}
}

func TestMultiWriterBatchFallback(t *testing.T) {
	single := &singleLogWriter{}
	batch := &recordingWriter{}
	mw := NewMultiWriter(nil, []LogWriter{single, batch}, nil, nil)
	entries := []eventlog.Entry{{Message: "a"}, {Message: "b"}}
	if err := mw.WriteLogs(entries); err != nil {
		t.Fatalf("WriteLogs: %v", err)
	}
	if len(single.entries) != 2 {
		t.Fatalf("single writer got %d entries", len(single.entries))
	}
	if len(batch.batches) != 1 || len(batch.batches[0]) != 2 {
		t.Fatalf("batch writer got %v", batch.batches)
	}
}

func TestMultiWriterAdd(t *testing.T) {
	mw := NewMultiWriter(nil, nil, nil, nil)
	rec := &recordingWriter{}
	mw.Add(rec)
	mw.Add(&singleLogWriter{})
	if len(mw.telewriters) != 1 || len(mw.logwriters) != 2 || len(mw.statewriters) != 1 || len(mw.reactwriters) != 1 {
		t.Fatalf("unexpected registration: %d %d %d %d", len(mw.telewriters), len(mw.logwriters), len(mw.statewriters), len(mw.reactwriters))
	}
	_ = mw.WriteState(telemetry.StateRow{Mode: "idle"})
	_ = mw.WriteReaction(telemetry.ReactionRow{Outcome: telemetry.OutcomeComplete})
	if len(rec.states) != 1 || len(rec.reactions) != 1 {
		t.Fatalf("state/reaction not forwarded")
	}
}
