// Package reactor owns the reactor state machine, drives the telemetry
// ticker and fans engine output out to writers.
package reactor

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"reactor-sim/internal/analysis"
	"reactor-sim/internal/audio"
	"reactor-sim/internal/eventlog"
	"reactor-sim/internal/logging"
	"reactor-sim/internal/telemetry"
)

// Defaults for Options.
const (
	DefaultTickInterval = time.Second
	DefaultIdleDelay    = 5 * time.Second
	mailboxSize         = 64
)

var (
	// ErrStopped is returned when the engine loop has exited.
	ErrStopped = errors.New("reactor engine stopped")
	// ErrRunning is returned by a second call to Run.
	ErrRunning = errors.New("reactor engine already running")
)

// Options configures an Engine. Analyzer is required; every other field
// has a usable zero value.
type Options struct {
	ClusterID         string
	TickInterval      time.Duration
	IdleDelay         time.Duration
	TelemetryCapacity int
	LogCapacity       int

	Analyzer analysis.Analyzer
	Speaker  analysis.Speaker
	Player   audio.Player

	Telemetry TelemetryWriter
	Logs      LogWriter
	States    StateWriter
	Reactions ReactionWriter
	Metrics   Metrics

	Clock clockwork.Clock
	Rand  *rand.Rand
}

// Engine serialises ticks, submissions, analysis completions and deferred
// timers through one goroutine. All State access happens there.
type Engine struct {
	clusterID    string
	tickInterval time.Duration
	idleDelay    time.Duration

	state State
	gen   *telemetry.Generator
	logs  *eventlog.Stream

	analyzer analysis.Analyzer
	speaker  analysis.Speaker
	player   audio.Player

	telemetry TelemetryWriter
	logWriter LogWriter
	states    StateWriter
	reactions ReactionWriter
	metrics   Metrics

	clock     clockwork.Clock
	idleTimer clockwork.Timer
	pending   []eventlog.Entry

	events  chan event
	done    chan struct{}
	running atomic.Bool

	// runCtx parents analysis and speech calls; set by Run.
	runCtx context.Context
	logger *slog.Logger
}

// NewEngine builds an engine and fills the telemetry window.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Analyzer == nil {
		return nil, errors.New("reactor engine requires an analyzer")
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.IdleDelay <= 0 {
		opts.IdleDelay = DefaultIdleDelay
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Player == nil {
		opts.Player = audio.Discard
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	e := &Engine{
		clusterID:    opts.ClusterID,
		tickInterval: opts.TickInterval,
		idleDelay:    opts.IdleDelay,
		state:        State{Mode: ModeIdle, Stability: InitialStability},
		gen:          telemetry.NewGenerator(opts.ClusterID, opts.TelemetryCapacity, opts.Rand, opts.Clock.Now),
		logs:         eventlog.NewStream(opts.ClusterID, opts.LogCapacity, opts.Clock.Now),
		analyzer:     opts.Analyzer,
		speaker:      opts.Speaker,
		player:       opts.Player,
		telemetry:    opts.Telemetry,
		logWriter:    opts.Logs,
		states:       opts.States,
		reactions:    opts.Reactions,
		metrics:      opts.Metrics,
		clock:        opts.Clock,
		events:       make(chan event, mailboxSize),
		done:         make(chan struct{}),
		runCtx:       context.Background(),
		logger:       slog.Default(),
	}
	e.gen.Initialize()
	return e, nil
}

// Run drives the engine until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	e.runCtx = ctx
	e.logger = logging.FromContext(ctx)
	e.logger.Info("starting reactor engine", "cluster_id", e.clusterID, "tick_interval", e.tickInterval)

	ticker := e.clock.NewTicker(e.tickInterval)
	defer func() {
		ticker.Stop()
		if e.idleTimer != nil {
			e.idleTimer.Stop()
		}
		close(e.done)
	}()

	if e.telemetry != nil {
		if err := writeSamples(e.telemetry, e.gen.Window()); err != nil {
			e.logger.Error("initial telemetry write failed", "err", err)
		}
	}
	e.emitState()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("stopping reactor engine")
			return nil
		case <-ticker.Chan():
			e.tick()
		case ev := <-e.events:
			e.handle(ev)
		}
	}
}

// Done is closed once Run has returned.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Submit hands an injection to the engine. It reports only whether the
// event was delivered; rejection and analysis failures surface in state
// and logs.
func (e *Engine) Submit(ctx context.Context, input string) error {
	if e.stopped() {
		return ErrStopped
	}
	select {
	case e.events <- submitEvent{input: input}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}
}

// Snapshot returns a consistent view of the reactor.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	if e.stopped() {
		return Snapshot{}, ErrStopped
	}
	reply := make(chan Snapshot, 1)
	select {
	case e.events <- snapshotEvent{reply: reply}:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-e.done:
		return Snapshot{}, ErrStopped
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-e.done:
		return Snapshot{}, ErrStopped
	}
}

func (e *Engine) stopped() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// post delivers an event from a helper goroutine, dropping it if the
// engine has stopped.
func (e *Engine) post(ev event) bool {
	select {
	case e.events <- ev:
		return true
	case <-e.done:
		return false
	}
}

func (e *Engine) tick() {
	sample := e.gen.Tick(e.state.Mode == ModeProcessing, e.state.Stability)
	if e.telemetry != nil {
		if err := e.telemetry.Write(sample); err != nil {
			e.logger.Error("telemetry write failed", "sequence", sample.Sequence, "err", err)
		}
	}
	e.emitState()
}

func (e *Engine) snapshot() Snapshot {
	s := Snapshot{
		ClusterID:  e.clusterID,
		Mode:       e.state.Mode,
		Stability:  e.state.Stability,
		SystemLoad: e.state.SystemLoad(),
		Generation: e.state.Generation,
		Telemetry:  e.gen.Window(),
		Logs:       e.logs.Entries(),

		TelemetryCapacity: e.gen.Capacity(),
		LogCapacity:       e.logs.Capacity(),
	}
	if r := e.state.LastResult; r != nil {
		cp := *r
		cp.Insights = append([]string(nil), r.Insights...)
		s.LastResult = &cp
	}
	return s
}

func (e *Engine) appendLog(message string, sev eventlog.Severity) {
	e.pending = append(e.pending, e.logs.Append(message, sev))
}

func (e *Engine) flushLogs() {
	if len(e.pending) == 0 {
		return
	}
	entries := e.pending
	e.pending = nil
	if e.logWriter == nil {
		return
	}
	if err := writeEntries(e.logWriter, entries); err != nil {
		e.logger.Error("log write failed", "entries", len(entries), "err", err)
	}
}

func (e *Engine) emitState() {
	e.metrics.ObserveState(e.state.Mode, e.state.Stability)
	if e.states == nil {
		return
	}
	row := telemetry.StateRow{
		ClusterID:  e.clusterID,
		Mode:       string(e.state.Mode),
		Stability:  e.state.Stability,
		SystemLoad: e.state.SystemLoad(),
		Generation: e.state.Generation,
		Timestamp:  e.clock.Now().UTC(),
	}
	if err := e.states.WriteState(row); err != nil {
		e.logger.Error("state write failed", "err", err)
	}
}

func (e *Engine) writeReaction(row telemetry.ReactionRow, latency time.Duration) {
	e.metrics.ObserveReaction(row.Outcome, latency)
	if e.reactions == nil {
		return
	}
	if err := e.reactions.WriteReaction(row); err != nil {
		e.logger.Error("reaction write failed", "generation", row.Generation, "err", err)
	}
}
