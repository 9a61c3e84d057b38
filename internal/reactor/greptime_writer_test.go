package reactor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"

	"reactor-sim/internal/eventlog"
	"reactor-sim/internal/telemetry"
)

type mockGreptimeClient struct {
	mu     sync.Mutex
	tables []*table.Table
	err    error
	// when set, Write reports on entered and then blocks until gate closes
	// or ctx ends
	entered chan struct{}
	gate    chan struct{}
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	if m.gate != nil {
		m.entered <- struct{}{}
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables = append(m.tables, tables...)
	return &gpb.GreptimeResponse{}, m.err
}

func (m *mockGreptimeClient) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables)
}

func newMockGreptimeWriter(m *mockGreptimeClient) *GreptimeDBWriter {
	return &GreptimeDBWriter{
		client:         m,
		ctx:            context.Background(),
		telemetryTable: "reactor_telemetry",
		logTable:       "reactor_logs",
		stateTable:     "reactor_state",
		reactionTable:  "reactor_reactions",
	}
}

func TestGreptimeWriterTelemetry(t *testing.T) {
	m := &mockGreptimeClient{}
	w := newMockGreptimeWriter(m)
	ts := time.Unix(10, 0).UTC()
	rows := []telemetry.Sample{
		{ClusterID: "c1", Sequence: 1, Power: 20.5, Heat: 15, Stability: 100, Timestamp: ts},
		{ClusterID: "c1", Sequence: 2, Power: 41, Heat: 46, Stability: 85, Timestamp: ts},
	}
	if err := w.WriteBatch(rows); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if len(m.tables) != 1 {
		t.Fatalf("expected one table, got %d", len(m.tables))
	}
	got := m.tables[0].GetRows()
	if len(got.Schema) != 6 || got.Schema[0].ColumnName != "cluster_id" {
		t.Fatalf("unexpected schema %+v", got.Schema)
	}
	if len(got.Rows) != 2 {
		t.Fatalf("rows = %d", len(got.Rows))
	}
	if v := got.Rows[1].Values[2].GetF64Value(); v != 41 {
		t.Fatalf("power = %f, want 41", v)
	}
	if v := got.Rows[0].Values[0].GetStringValue(); v != "c1" {
		t.Fatalf("cluster_id = %s", v)
	}
}

func TestGreptimeWriterLogs(t *testing.T) {
	m := &mockGreptimeClient{}
	w := newMockGreptimeWriter(m)
	e := eventlog.Entry{ClusterID: "c1", ID: "id-1", Message: "Reaction complete. Efficiency: 50%", Severity: eventlog.SeveritySuccess, Time: time.Unix(0, 0)}
	if err := w.WriteLog(e); err != nil {
		t.Fatalf("WriteLog: %v", err)
	}
	row := m.tables[0].GetRows().Rows[0]
	if row.Values[1].GetStringValue() != "success" || row.Values[3].GetStringValue() != e.Message {
		t.Fatalf("unexpected row %+v", row)
	}
}

func TestGreptimeWriterReactionInsightsJSON(t *testing.T) {
	m := &mockGreptimeClient{}
	w := newMockGreptimeWriter(m)
	row := telemetry.ReactionRow{ClusterID: "c1", Outcome: telemetry.OutcomeComplete, Insights: []string{"a", "b"}, Timestamp: time.Unix(0, 0)}
	if err := w.WriteReaction(row); err != nil {
		t.Fatalf("WriteReaction: %v", err)
	}
	got := m.tables[0].GetRows().Rows[0].Values[6].GetStringValue()
	if got != `["a","b"]` {
		t.Fatalf("insights = %s", got)
	}
}

func TestGreptimeWriterError(t *testing.T) {
	m := &mockGreptimeClient{err: errors.New("unavailable")}
	w := newMockGreptimeWriter(m)
	if err := w.WriteState(telemetry.StateRow{ClusterID: "c1", Mode: "idle", Timestamp: time.Unix(0, 0)}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestGreptimeWriterHonoursParentContext(t *testing.T) {
	m := &mockGreptimeClient{entered: make(chan struct{}, 1), gate: make(chan struct{})}
	w := newMockGreptimeWriter(m)
	ctx, cancel := context.WithCancel(context.Background())
	w.ctx = ctx
	errc := make(chan error, 1)
	go func() {
		errc <- w.WriteState(telemetry.StateRow{ClusterID: "c1", Mode: "idle", Timestamp: time.Unix(0, 0)})
	}()
	<-m.entered
	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("write ignored cancellation")
	}
}

func TestGreptimeWriterBackground(t *testing.T) {
	m := &mockGreptimeClient{entered: make(chan struct{}, 4), gate: make(chan struct{})}
	w := newMockGreptimeWriter(m)
	w.Start(1)
	state := telemetry.StateRow{ClusterID: "c1", Mode: "active", Timestamp: time.Unix(0, 0)}

	if err := w.WriteState(state); err != nil {
		t.Fatalf("first write: %v", err)
	}
	<-m.entered // worker holds the first table
	if err := w.WriteState(state); err != nil {
		t.Fatalf("queued write: %v", err)
	}
	if err := w.WriteState(state); !errors.Is(err, ErrGreptimeBacklog) {
		t.Fatalf("overflow write = %v, want ErrGreptimeBacklog", err)
	}

	close(m.gate)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := m.count(); n != 2 {
		t.Fatalf("tables written = %d, want 2", n)
	}
	if err := w.WriteState(state); err == nil {
		t.Fatalf("write after Close should fail")
	}
}

func TestSplitEndpoint(t *testing.T) {
	for in, want := range map[string]struct {
		host string
		port int
	}{
		"localhost":      {"localhost", 4001},
		"db.local:4002":  {"db.local", 4002},
		"127.0.0.1:4001": {"127.0.0.1", 4001},
	} {
		h, p, err := splitEndpoint(in)
		if err != nil || h != want.host || p != want.port {
			t.Fatalf("splitEndpoint(%q) = %s %d %v", in, h, p, err)
		}
	}
	if _, _, err := splitEndpoint(""); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
}
