package reactor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"reactor-sim/internal/eventlog"
	"reactor-sim/internal/logging"
	"reactor-sim/internal/telemetry"
)

const (
	defaultGreptimePort = 4001
	greptimeTimeout     = 5 * time.Second
)

// greptimeClient is the subset of the ingester client used here.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// ErrGreptimeBacklog is returned when the background queue is full and the
// table was dropped.
var ErrGreptimeBacklog = errors.New("greptimedb queue full")

// GreptimeDBWriter writes engine output to GreptimeDB over gRPC. Writes are
// parented on ctx and run inline until Start moves them to a background
// worker.
type GreptimeDBWriter struct {
	client         greptimeClient
	ctx            context.Context
	telemetryTable string
	logTable       string
	stateTable     string
	reactionTable  string

	mu     sync.Mutex
	queue  chan *table.Table
	done   chan struct{}
	closed bool
}

// NewGreptimeDBWriter connects to endpoint (host or host:port). Cancelling
// ctx aborts in-flight writes.
func NewGreptimeDBWriter(ctx context.Context, endpoint, database string) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if database == "" {
		database = "public"
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptimedb client: %w", err)
	}
	return &GreptimeDBWriter{
		client:         client,
		ctx:            ctx,
		telemetryTable: telemetry.TableName,
		logTable:       eventlog.TableName,
		stateTable:     telemetry.StateTableName,
		reactionTable:  telemetry.ReactionTableName,
	}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	if endpoint == "" {
		return "", 0, fmt.Errorf("greptimedb endpoint is empty")
	}
	host, p, err := net.SplitHostPort(endpoint)
	if err != nil {
		// no port given
		return endpoint, defaultGreptimePort, nil
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("greptimedb port %q: %w", p, err)
	}
	return host, port, nil
}

// Start hands writes to a worker goroutine fed by a queue of size tables,
// so a slow database does not hold up the caller. Close stops the worker.
func (w *GreptimeDBWriter) Start(size int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.queue != nil || w.closed {
		return
	}
	if size <= 0 {
		size = 1
	}
	w.queue = make(chan *table.Table, size)
	w.done = make(chan struct{})
	go w.drain(w.queue, w.done)
}

func (w *GreptimeDBWriter) drain(queue <-chan *table.Table, done chan<- struct{}) {
	defer close(done)
	logger := logging.FromContext(w.parent())
	for tbl := range queue {
		err := w.send(tbl)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			logger.Debug("greptimedb write abandoned at shutdown", "table", tableName(tbl))
		default:
			logger.Error("greptimedb write failed", "table", tableName(tbl), "err", err)
		}
	}
}

// Close drains queued tables and stops the worker. Later writes fail.
func (w *GreptimeDBWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	queue, done := w.queue, w.done
	w.mu.Unlock()
	if queue != nil {
		close(queue)
		<-done
	}
	return nil
}

func (w *GreptimeDBWriter) write(tbl *table.Table) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errors.New("greptimedb writer closed")
	}
	if w.queue != nil {
		defer w.mu.Unlock()
		select {
		case w.queue <- tbl:
			return nil
		default:
			return fmt.Errorf("%w: dropped %s", ErrGreptimeBacklog, tableName(tbl))
		}
	}
	w.mu.Unlock()
	return w.send(tbl)
}

func tableName(tbl *table.Table) string {
	name, _ := tbl.GetName()
	return name
}

func (w *GreptimeDBWriter) parent() context.Context {
	if w.ctx == nil {
		return context.Background()
	}
	return w.ctx
}

func (w *GreptimeDBWriter) send(tbl *table.Table) error {
	ctx, cancel := context.WithTimeout(w.parent(), greptimeTimeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		return fmt.Errorf("greptimedb write: %w", err)
	}
	return nil
}

// Write inserts a single telemetry sample.
func (w *GreptimeDBWriter) Write(s telemetry.Sample) error {
	return w.WriteBatch([]telemetry.Sample{s})
}

// WriteBatch inserts multiple telemetry samples.
func (w *GreptimeDBWriter) WriteBatch(rows []telemetry.Sample) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := table.New(w.telemetryTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("cluster_id", types.STRING)
	tbl.AddFieldColumn("sequence", types.UINT64)
	tbl.AddFieldColumn("power", types.FLOAT64)
	tbl.AddFieldColumn("heat", types.FLOAT64)
	tbl.AddFieldColumn("stability", types.FLOAT64)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)
	for _, r := range rows {
		if err := tbl.AddRow(r.ClusterID, r.Sequence, r.Power, r.Heat, r.Stability, r.Timestamp); err != nil {
			return err
		}
	}
	return w.write(tbl)
}

// WriteLog inserts a single log entry.
func (w *GreptimeDBWriter) WriteLog(e eventlog.Entry) error {
	return w.WriteLogs([]eventlog.Entry{e})
}

// WriteLogs inserts multiple log entries.
func (w *GreptimeDBWriter) WriteLogs(entries []eventlog.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tbl, err := table.New(w.logTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("cluster_id", types.STRING)
	tbl.AddTagColumn("severity", types.STRING)
	tbl.AddFieldColumn("id", types.STRING)
	tbl.AddFieldColumn("message", types.STRING)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)
	for _, e := range entries {
		if err := tbl.AddRow(e.ClusterID, string(e.Severity), e.ID, e.Message, e.Time); err != nil {
			return err
		}
	}
	return w.write(tbl)
}

// WriteState inserts a state row.
func (w *GreptimeDBWriter) WriteState(row telemetry.StateRow) error {
	tbl, err := table.New(w.stateTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("cluster_id", types.STRING)
	tbl.AddFieldColumn("mode", types.STRING)
	tbl.AddFieldColumn("stability", types.FLOAT64)
	tbl.AddFieldColumn("system_load", types.FLOAT64)
	tbl.AddFieldColumn("generation", types.UINT64)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)
	if err := tbl.AddRow(row.ClusterID, row.Mode, row.Stability, row.SystemLoad, row.Generation, row.Timestamp); err != nil {
		return err
	}
	return w.write(tbl)
}

// WriteReaction inserts a reaction row. Insights are stored as a JSON
// array string.
func (w *GreptimeDBWriter) WriteReaction(row telemetry.ReactionRow) error {
	insights := "[]"
	if len(row.Insights) > 0 {
		b, err := json.Marshal(row.Insights)
		if err != nil {
			return err
		}
		insights = string(b)
	}
	tbl, err := table.New(w.reactionTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("cluster_id", types.STRING)
	tbl.AddTagColumn("outcome", types.STRING)
	tbl.AddFieldColumn("generation", types.UINT64)
	tbl.AddFieldColumn("threat_level", types.STRING)
	tbl.AddFieldColumn("efficiency", types.FLOAT64)
	tbl.AddFieldColumn("summary", types.STRING)
	tbl.AddFieldColumn("insights", types.STRING)
	tbl.AddFieldColumn("stability", types.FLOAT64)
	tbl.AddFieldColumn("latency_ms", types.FLOAT64)
	tbl.AddFieldColumn("error", types.STRING)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)
	if err := tbl.AddRow(row.ClusterID, row.Outcome, row.Generation, row.ThreatLevel, row.Efficiency,
		row.Summary, insights, row.Stability, row.Latency, row.Error, row.Timestamp); err != nil {
		return err
	}
	return w.write(tbl)
}
