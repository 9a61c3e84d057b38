package reactor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"reactor-sim/internal/analysis"
	"reactor-sim/internal/eventlog"
	"reactor-sim/internal/telemetry"
)

type fakeAnalyzer struct {
	mu     sync.Mutex
	calls  []string
	result analysis.ReactionResult
	err    error
	gate   chan struct{}
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, input string) (analysis.ReactionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, input)
	gate, res, err := f.gate, f.result, f.err
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return analysis.ReactionResult{}, ctx.Err()
		}
	}
	return res, err
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSpeaker struct {
	texts chan string
	err   error
}

func (f *fakeSpeaker) Speak(ctx context.Context, text string) ([]byte, error) {
	f.texts <- text
	if f.err != nil {
		return nil, f.err
	}
	return []byte{0, 0}, nil
}

type recordingWriter struct {
	mu        sync.Mutex
	samples   []telemetry.Sample
	batches   [][]eventlog.Entry
	states    []telemetry.StateRow
	reactions []telemetry.ReactionRow
}

func (r *recordingWriter) Write(s telemetry.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
	return nil
}

func (r *recordingWriter) WriteLog(e eventlog.Entry) error {
	return r.WriteLogs([]eventlog.Entry{e})
}

func (r *recordingWriter) WriteLogs(es []eventlog.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, es)
	return nil
}

func (r *recordingWriter) WriteState(s telemetry.StateRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
	return nil
}

func (r *recordingWriter) WriteReaction(row telemetry.ReactionRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reactions = append(r.reactions, row)
	return nil
}

func lowResult() analysis.ReactionResult {
	return analysis.ReactionResult{
		Summary:     "Stable burn",
		Insights:    []string{"Neutron flux nominal", "Trace deuterium", "Clean exhaust"},
		ThreatLevel: analysis.ThreatLow,
		Efficiency:  50,
	}
}

func newTestEngine(t *testing.T, a analysis.Analyzer, s analysis.Speaker) (*Engine, *clockwork.FakeClock, *recordingWriter) {
	t.Helper()
	clk := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	rec := &recordingWriter{}
	e, err := NewEngine(Options{
		ClusterID: "core-1",
		Analyzer:  a,
		Speaker:   s,
		Telemetry: rec,
		Logs:      rec,
		States:    rec,
		Reactions: rec,
		Clock:     clk,
		Rand:      rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e, clk, rec
}

// next pulls the next event a helper goroutine posted and handles it.
func next(t *testing.T, e *Engine) event {
	t.Helper()
	select {
	case ev := <-e.events:
		e.handle(ev)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for engine event")
		return nil
	}
}

func messages(e *Engine) []string {
	var out []string
	for _, en := range e.logs.Entries() {
		out = append(out, en.Message)
	}
	return out
}

func TestNewEngineRequiresAnalyzer(t *testing.T) {
	if _, err := NewEngine(Options{}); err == nil {
		t.Fatalf("expected error without analyzer")
	}
}

func TestInitialState(t *testing.T) {
	e, _, _ := newTestEngine(t, &fakeAnalyzer{result: lowResult()}, nil)
	s := e.snapshot()
	if s.Mode != ModeIdle || s.Stability != 100 || s.SystemLoad != 0 {
		t.Fatalf("unexpected initial state %+v", s)
	}
	if len(s.Telemetry) != telemetry.DefaultCapacity || len(s.Logs) != 0 || s.LastResult != nil {
		t.Fatalf("unexpected initial snapshot %+v", s)
	}
	if s.TelemetryCapacity != telemetry.DefaultCapacity || s.LogCapacity != eventlog.DefaultCapacity {
		t.Fatalf("capacities = %d/%d", s.TelemetryCapacity, s.LogCapacity)
	}
}

func TestSubmitStartsProcessing(t *testing.T) {
	fa := &fakeAnalyzer{result: lowResult(), gate: make(chan struct{})}
	e, _, _ := newTestEngine(t, fa, nil)
	e.handle(submitEvent{input: "Hello reactor"})

	if e.state.Mode != ModeProcessing {
		t.Fatalf("mode = %s", e.state.Mode)
	}
	if e.state.Stability != 85 {
		t.Fatalf("stability = %f, want 85", e.state.Stability)
	}
	entries := e.logs.Entries()
	if len(entries) != 1 || entries[0].Message != `Initiating injection sequence: "Hello reactor"...` || entries[0].Severity != eventlog.SeverityInfo {
		t.Fatalf("unexpected log %+v", entries)
	}
	close(fa.gate)
	next(t, e)
	if fa.callCount() != 1 || fa.calls[0] != "Hello reactor" {
		t.Fatalf("analyzer calls = %v", fa.calls)
	}
}

func TestSubmitPreviewTruncates(t *testing.T) {
	e, _, _ := newTestEngine(t, &fakeAnalyzer{result: lowResult(), gate: make(chan struct{})}, nil)
	input := strings.Repeat("é", 40)
	e.handle(submitEvent{input: input})
	want := `Initiating injection sequence: "` + strings.Repeat("é", 30) + `"...`
	if got := messages(e)[0]; got != want {
		t.Fatalf("log = %q", got)
	}
}

func TestBlankSubmitIgnored(t *testing.T) {
	fa := &fakeAnalyzer{result: lowResult()}
	e, _, _ := newTestEngine(t, fa, nil)
	for _, in := range []string{"", "   ", "\t\n"} {
		e.handle(submitEvent{input: in})
	}
	if e.state.Mode != ModeIdle || e.state.Stability != 100 || e.logs.Len() != 0 || e.state.Generation != 0 {
		t.Fatalf("blank input changed state: %+v", e.state)
	}
	if fa.callCount() != 0 {
		t.Fatalf("analyzer called for blank input")
	}
}

func TestSubmitWhileProcessingIgnored(t *testing.T) {
	fa := &fakeAnalyzer{result: lowResult(), gate: make(chan struct{})}
	e, _, _ := newTestEngine(t, fa, nil)
	e.handle(submitEvent{input: "first"})
	e.handle(submitEvent{input: "second"})
	if e.state.Stability != 85 || e.logs.Len() != 1 || e.state.Generation != 1 {
		t.Fatalf("second submit was not ignored: %+v logs=%d", e.state, e.logs.Len())
	}
	close(fa.gate)
	next(t, e)
	if fa.callCount() != 1 {
		t.Fatalf("analyzer calls = %d, want 1", fa.callCount())
	}
}

func TestSuccessCompletes(t *testing.T) {
	sp := &fakeSpeaker{texts: make(chan string, 1)}
	e, clk, rec := newTestEngine(t, &fakeAnalyzer{result: lowResult()}, sp)
	e.handle(submitEvent{input: "plasma"})
	next(t, e)

	if e.state.Mode != ModeActive {
		t.Fatalf("mode = %s", e.state.Mode)
	}
	if e.state.Stability != 95 {
		t.Fatalf("stability = %f, want 95", e.state.Stability)
	}
	want := []string{
		`Initiating injection sequence: "plasma"...`,
		"Reaction complete. Efficiency: 50%",
		"Isotope extracted: Neutron flux nominal",
		"Isotope extracted: Trace deuterium",
		"Isotope extracted: Clean exhaust",
	}
	got := messages(e)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("logs = %q", got)
	}
	for _, en := range e.logs.Entries()[1:] {
		if en.Severity != eventlog.SeveritySuccess {
			t.Fatalf("severity = %s for %q", en.Severity, en.Message)
		}
	}
	if e.state.LastResult == nil || e.state.LastResult.Summary != "Stable burn" {
		t.Fatalf("last result = %+v", e.state.LastResult)
	}
	select {
	case txt := <-sp.texts:
		if txt != "Stable burn" {
			t.Fatalf("spoke %q", txt)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("speech not requested")
	}
	if len(rec.reactions) != 1 || rec.reactions[0].Outcome != telemetry.OutcomeComplete {
		t.Fatalf("reactions = %+v", rec.reactions)
	}
	// the completion logs arrive as one batch
	if last := rec.batches[len(rec.batches)-1]; len(last) != 4 {
		t.Fatalf("last log batch size = %d, want 4", len(last))
	}

	clk.Advance(DefaultIdleDelay - time.Millisecond)
	if e.state.Mode != ModeActive {
		t.Fatalf("idle fired early")
	}
	clk.Advance(time.Millisecond)
	next(t, e)
	if e.state.Mode != ModeIdle {
		t.Fatalf("mode after idle delay = %s", e.state.Mode)
	}
}

func TestEfficiencyFormatting(t *testing.T) {
	res := lowResult()
	res.Efficiency = 87.5
	res.Insights = nil
	e, _, _ := newTestEngine(t, &fakeAnalyzer{result: res}, nil)
	e.handle(submitEvent{input: "x"})
	next(t, e)
	if got := messages(e)[1]; got != "Reaction complete. Efficiency: 87.5%" {
		t.Fatalf("log = %q", got)
	}
	if e.state.Stability != 98.75 {
		t.Fatalf("stability = %f", e.state.Stability)
	}
}

func TestSuccessStabilityCapped(t *testing.T) {
	res := lowResult()
	res.Efficiency = 100
	e, _, _ := newTestEngine(t, &fakeAnalyzer{result: res}, nil)
	e.handle(submitEvent{input: "x"})
	next(t, e)
	if e.state.Stability != 100 {
		t.Fatalf("stability = %f, want 100", e.state.Stability)
	}
}

func TestThreatWarns(t *testing.T) {
	for _, tc := range []struct {
		level analysis.ThreatLevel
		eff   float64
		want  float64
	}{
		{analysis.ThreatHigh, 40, 60},
		{analysis.ThreatCritical, 100, 30},
		{analysis.ThreatCritical, 0, 80},
	} {
		t.Run(fmt.Sprintf("%s-%v", tc.level, tc.eff), func(t *testing.T) {
			res := lowResult()
			res.ThreatLevel = tc.level
			res.Efficiency = tc.eff
			sp := &fakeSpeaker{texts: make(chan string, 1)}
			e, clk, _ := newTestEngine(t, &fakeAnalyzer{result: res}, sp)
			e.handle(submitEvent{input: "unstable isotope"})
			next(t, e)
			if e.state.Mode != ModeWarning {
				t.Fatalf("mode = %s", e.state.Mode)
			}
			if e.state.Stability != tc.want {
				t.Fatalf("stability = %f, want %f", e.state.Stability, tc.want)
			}
			entries := e.logs.Entries()
			if entries[1].Message != "THREAT DETECTED: Core equilibrium unstable. ["+string(tc.level)+"]" || entries[1].Severity != eventlog.SeverityError {
				t.Fatalf("threat log = %+v", entries[1])
			}
			if len(entries) != 5 {
				t.Fatalf("expected insights to be logged, got %d entries", len(entries))
			}
			<-sp.texts

			clk.Advance(DefaultIdleDelay)
			next(t, e)
			if e.state.Mode != ModeWarning {
				t.Fatalf("warning cleared by idle timer")
			}
		})
	}
}

func TestThreatFloor(t *testing.T) {
	// efficiency is clamped by the parser, so the floor only guards
	// collaborators that skip it
	res := lowResult()
	res.ThreatLevel = analysis.ThreatHigh
	res.Efficiency = 200
	e, _, _ := newTestEngine(t, &fakeAnalyzer{result: res}, nil)
	e.handle(submitEvent{input: "x"})
	next(t, e)
	if e.state.Stability != 10 {
		t.Fatalf("stability = %f, want 10", e.state.Stability)
	}
}

func TestFailureWarns(t *testing.T) {
	sp := &fakeSpeaker{texts: make(chan string, 1)}
	e, clk, rec := newTestEngine(t, &fakeAnalyzer{err: errors.New("quota exceeded")}, sp)
	e.handle(submitEvent{input: "x"})
	next(t, e)
	if e.state.Mode != ModeWarning {
		t.Fatalf("mode = %s", e.state.Mode)
	}
	if e.state.Stability != 65 {
		t.Fatalf("stability = %f, want 65", e.state.Stability)
	}
	entries := e.logs.Entries()
	if len(entries) != 2 || entries[1].Message != "Reaction failed: Fission failure in CORE-1." || entries[1].Severity != eventlog.SeverityError {
		t.Fatalf("entries = %+v", entries)
	}
	if e.state.LastResult != nil {
		t.Fatalf("failure stored a result")
	}
	if len(rec.reactions) != 1 || rec.reactions[0].Outcome != telemetry.OutcomeFailed || rec.reactions[0].Error == "" {
		t.Fatalf("reactions = %+v", rec.reactions)
	}
	select {
	case <-sp.texts:
		t.Fatalf("speech requested after failure")
	default:
	}
	clk.Advance(DefaultIdleDelay * 2)
	select {
	case ev := <-e.events:
		t.Fatalf("unexpected event after failure: %T", ev)
	default:
	}
}

func TestMalformedResultFails(t *testing.T) {
	_, perr := analysis.ParseResult([]byte("not json"))
	e, _, _ := newTestEngine(t, &fakeAnalyzer{err: perr}, nil)
	e.handle(submitEvent{input: "x"})
	next(t, e)
	if e.state.Mode != ModeWarning || e.state.Stability != 65 {
		t.Fatalf("malformed result did not take failure path: %+v", e.state)
	}
}

func TestFailureFloorsAtZero(t *testing.T) {
	e, _, _ := newTestEngine(t, &fakeAnalyzer{err: errors.New("boom")}, nil)
	e.state.Stability = 10
	e.handle(submitEvent{input: "x"})
	if e.state.Stability != -5 {
		t.Fatalf("submit penalty should not clamp, got %f", e.state.Stability)
	}
	next(t, e)
	if e.state.Stability != 0 {
		t.Fatalf("stability = %f, want 0", e.state.Stability)
	}
}

func TestWarningRecoversOnNextSubmit(t *testing.T) {
	fa := &fakeAnalyzer{err: errors.New("boom")}
	e, _, _ := newTestEngine(t, fa, nil)
	e.handle(submitEvent{input: "x"})
	next(t, e)

	fa.mu.Lock()
	fa.err = nil
	fa.result = lowResult()
	fa.mu.Unlock()
	e.handle(submitEvent{input: "y"})
	if e.state.Mode != ModeProcessing {
		t.Fatalf("warning should accept new injections")
	}
	next(t, e)
	if e.state.Mode != ModeActive {
		t.Fatalf("mode = %s", e.state.Mode)
	}
}

func TestStaleIdleTimerIgnored(t *testing.T) {
	fa := &fakeAnalyzer{result: lowResult()}
	e, clk, _ := newTestEngine(t, fa, nil)
	e.handle(submitEvent{input: "one"})
	next(t, e)
	clk.Advance(2 * time.Second)

	e.handle(submitEvent{input: "two"})
	next(t, e)
	if e.state.Generation != 2 || e.state.Mode != ModeActive {
		t.Fatalf("state = %+v", e.state)
	}

	// a timer from the first reaction that slipped past Stop
	e.handle(idleEvent{gen: 1})
	if e.state.Mode != ModeActive {
		t.Fatalf("stale idle timer changed mode to %s", e.state.Mode)
	}

	clk.Advance(3 * time.Second)
	select {
	case ev := <-e.events:
		t.Fatalf("first timer should have been stopped, got %T", ev)
	default:
	}
	clk.Advance(2 * time.Second)
	next(t, e)
	if e.state.Mode != ModeIdle {
		t.Fatalf("mode = %s, want idle", e.state.Mode)
	}
}

func TestIdleTimerStoppedBySubmit(t *testing.T) {
	fa := &fakeAnalyzer{result: lowResult()}
	e, clk, _ := newTestEngine(t, fa, nil)
	e.handle(submitEvent{input: "one"})
	next(t, e)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clk.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("idle timer not scheduled: %v", err)
	}

	fa.mu.Lock()
	fa.gate = make(chan struct{})
	fa.mu.Unlock()
	e.handle(submitEvent{input: "two"})
	if err := clk.BlockUntilContext(ctx, 0); err != nil {
		t.Fatalf("idle timer survived a new injection: %v", err)
	}
	close(fa.gate)
	next(t, e)
}

func TestStaleAnalysisIgnored(t *testing.T) {
	e, _, _ := newTestEngine(t, &fakeAnalyzer{result: lowResult()}, nil)
	e.handle(analysisEvent{gen: 7, result: lowResult()})
	if e.state.Mode != ModeIdle || e.logs.Len() != 0 {
		t.Fatalf("stale analysis applied: %+v", e.state)
	}
}

func TestSpeechFailureDoesNotChangeState(t *testing.T) {
	sp := &fakeSpeaker{texts: make(chan string, 1), err: errors.New("tts down")}
	e, _, _ := newTestEngine(t, &fakeAnalyzer{result: lowResult()}, sp)
	e.handle(submitEvent{input: "x"})
	next(t, e)
	before := e.snapshot()
	<-sp.texts
	// give the speech goroutine time to finish failing
	time.Sleep(20 * time.Millisecond)
	after := e.snapshot()
	if before.Mode != after.Mode || before.Stability != after.Stability || len(before.Logs) != len(after.Logs) {
		t.Fatalf("speech failure changed state: %+v -> %+v", before, after)
	}
	select {
	case ev := <-e.events:
		t.Fatalf("speech failure posted %T", ev)
	default:
	}
}

func TestTickUsesModeAndStability(t *testing.T) {
	fa := &fakeAnalyzer{err: errors.New("boom"), gate: make(chan struct{})}
	e, _, rec := newTestEngine(t, fa, nil)
	e.state.Stability = 5
	e.handle(submitEvent{input: "x"})

	before := e.gen.Last()
	e.tick()
	s := e.gen.Last()
	if s.Sequence != before.Sequence+1 {
		t.Fatalf("sequence = %d", s.Sequence)
	}
	if s.Stability != 0 {
		t.Fatalf("sample stability = %f, want clamped 0", s.Stability)
	}
	if s.Power < before.Power+17.5 && s.Power != 100 {
		t.Fatalf("processing boost missing: %f -> %f", before.Power, s.Power)
	}
	if len(rec.samples) != 1 || rec.samples[0].Sequence != s.Sequence {
		t.Fatalf("tick not written: %+v", rec.samples)
	}
	if last := rec.states[len(rec.states)-1]; last.Mode != string(ModeProcessing) || last.SystemLoad != 110 {
		t.Fatalf("state row = %+v", last)
	}
	close(fa.gate)
	next(t, e)
}

func TestLogCapacity(t *testing.T) {
	res := lowResult()
	e, _, _ := newTestEngine(t, &fakeAnalyzer{result: res}, nil)
	for i := 0; i < 20; i++ {
		e.handle(submitEvent{input: fmt.Sprintf("run %d", i)})
		next(t, e)
	}
	if n := e.logs.Len(); n != eventlog.DefaultCapacity {
		t.Fatalf("log length = %d", n)
	}
	if got := messages(e)[eventlog.DefaultCapacity-1]; got != "Isotope extracted: Clean exhaust" {
		t.Fatalf("newest log = %q", got)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	e, _, _ := newTestEngine(t, &fakeAnalyzer{result: lowResult()}, nil)
	e.handle(submitEvent{input: "x"})
	next(t, e)
	s := e.snapshot()
	s.LastResult.Insights[0] = "mutated"
	s.Telemetry[0].Power = -1
	if e.state.LastResult.Insights[0] == "mutated" || e.gen.Window()[0].Power == -1 {
		t.Fatalf("snapshot aliases engine state")
	}
}

func TestRunLoop(t *testing.T) {
	e, clk, rec := newTestEngine(t, &fakeAnalyzer{result: lowResult()}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- e.Run(ctx) }()

	// the ticker is the only waiter until a reaction schedules the idle timer
	wctx, wcancel := context.WithTimeout(ctx, 2*time.Second)
	defer wcancel()
	if err := clk.BlockUntilContext(wctx, 1); err != nil {
		t.Fatalf("ticker never registered: %v", err)
	}

	if err := e.Submit(ctx, "hello"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		s, err := e.Snapshot(ctx)
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if s.Mode == ModeActive {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("engine never completed, mode=%s", s.Mode)
		}
		time.Sleep(5 * time.Millisecond)
	}

	clk.Advance(time.Second)
	deadline = time.Now().Add(2 * time.Second)
	for {
		rec.mu.Lock()
		n := len(rec.samples)
		rec.mu.Unlock()
		// initial window plus the tick
		if n == telemetry.DefaultCapacity+1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("tick not written, samples=%d", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := e.Run(ctx); !errors.Is(err, ErrRunning) {
		t.Fatalf("second Run = %v", err)
	}
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("Run: %v", err)
	}
	<-e.Done()
	if err := e.Submit(context.Background(), "late"); !errors.Is(err, ErrStopped) {
		t.Fatalf("Submit after stop = %v", err)
	}
	if _, err := e.Snapshot(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("Snapshot after stop should fail")
	}
}
