package reactor

import (
	"math"
	"strconv"
	"strings"
	"time"

	"reactor-sim/internal/analysis"
	"reactor-sim/internal/eventlog"
	"reactor-sim/internal/telemetry"
)

type event interface{ isEvent() }

type submitEvent struct{ input string }

type analysisEvent struct {
	gen     uint64
	started time.Time
	result  analysis.ReactionResult
	err     error
}

type idleEvent struct{ gen uint64 }

type snapshotEvent struct{ reply chan Snapshot }

func (submitEvent) isEvent()   {}
func (analysisEvent) isEvent() {}
func (idleEvent) isEvent()     {}
func (snapshotEvent) isEvent() {}

func (e *Engine) handle(ev event) {
	switch ev := ev.(type) {
	case submitEvent:
		e.submit(ev.input)
	case analysisEvent:
		e.resolve(ev)
	case idleEvent:
		e.settle(ev.gen)
	case snapshotEvent:
		ev.reply <- e.snapshot()
	}
	e.flushLogs()
}

func (e *Engine) submit(input string) {
	if strings.TrimSpace(input) == "" || e.state.Mode == ModeProcessing {
		e.metrics.ObserveSubmission(false)
		e.logger.Debug("injection ignored", "mode", e.state.Mode, "blank", strings.TrimSpace(input) == "")
		return
	}
	e.metrics.ObserveSubmission(true)
	if e.idleTimer != nil {
		e.idleTimer.Stop()
		e.idleTimer = nil
	}

	e.state.Generation++
	e.state.Mode = ModeProcessing
	e.state.Stability -= submitPenalty
	e.appendLog(`Initiating injection sequence: "`+preview(input)+`"...`, eventlog.SeverityInfo)
	e.emitState()

	gen := e.state.Generation
	started := e.clock.Now()
	ctx := e.runCtx
	go func() {
		res, err := e.analyzer.Analyze(ctx, input)
		e.post(analysisEvent{gen: gen, started: started, result: res, err: err})
	}()
}

func (e *Engine) resolve(ev analysisEvent) {
	if ev.gen != e.state.Generation || e.state.Mode != ModeProcessing {
		e.logger.Debug("stale analysis dropped", "generation", ev.gen, "current", e.state.Generation)
		return
	}
	latency := e.clock.Now().Sub(ev.started)
	row := telemetry.ReactionRow{
		ClusterID:  e.clusterID,
		Generation: ev.gen,
		Latency:    float64(latency) / float64(time.Millisecond),
		Timestamp:  e.clock.Now().UTC(),
	}

	if ev.err != nil {
		e.logger.Warn("analysis failed", "generation", ev.gen, "err", ev.err)
		e.appendLog("Reaction failed: Fission failure in CORE-1.", eventlog.SeverityError)
		e.state.Mode = ModeWarning
		e.state.Stability = math.Max(0, e.state.Stability-failurePenalty)
		row.Outcome = telemetry.OutcomeFailed
		row.Error = ev.err.Error()
		row.Stability = e.state.Stability
		e.writeReaction(row, latency)
		e.emitState()
		return
	}

	res := ev.result
	if res.ThreatLevel.Severe() {
		e.state.Mode = ModeWarning
		e.appendLog("THREAT DETECTED: Core equilibrium unstable. ["+string(res.ThreatLevel)+"]", eventlog.SeverityError)
		e.state.Stability = math.Max(threatFloor, threatBase-res.Efficiency/threatEffDivisor)
		row.Outcome = telemetry.OutcomeThreat
	} else {
		e.state.Mode = ModeActive
		e.appendLog("Reaction complete. Efficiency: "+strconv.FormatFloat(res.Efficiency, 'f', -1, 64)+"%", eventlog.SeveritySuccess)
		e.state.Stability = math.Min(maxStability, completeBase+res.Efficiency/completeEffDivisor)
		row.Outcome = telemetry.OutcomeComplete
	}
	for _, in := range res.Insights {
		e.appendLog("Isotope extracted: "+in, eventlog.SeveritySuccess)
	}
	e.state.LastResult = &res

	row.ThreatLevel = string(res.ThreatLevel)
	row.Efficiency = res.Efficiency
	row.Summary = res.Summary
	row.Insights = res.Insights
	row.Stability = e.state.Stability
	e.writeReaction(row, latency)

	e.speak(res.Summary)
	e.scheduleIdle(ev.gen)
	e.emitState()
}

func (e *Engine) scheduleIdle(gen uint64) {
	e.idleTimer = e.clock.AfterFunc(e.idleDelay, func() {
		e.post(idleEvent{gen: gen})
	})
}

// settle applies a deferred Idle transition. Warning is sticky until the
// next accepted injection, and a timer from an older injection is ignored.
func (e *Engine) settle(gen uint64) {
	if gen != e.state.Generation || e.state.Mode == ModeWarning || e.state.Mode == ModeProcessing {
		return
	}
	e.state.Mode = ModeIdle
	e.idleTimer = nil
	e.emitState()
}

// speak voices text without blocking the engine. Failures only reach the
// developer log.
func (e *Engine) speak(text string) {
	if e.speaker == nil || strings.TrimSpace(text) == "" {
		return
	}
	ctx, logger, player, metrics := e.runCtx, e.logger, e.player, e.metrics
	go func() {
		pcm, err := e.speaker.Speak(ctx, text)
		if err != nil {
			logger.Warn("speech synthesis failed", "err", err)
			metrics.ObserveSpeech(err)
			return
		}
		if err := player.Play(ctx, pcm); err != nil {
			logger.Warn("speech playback failed", "err", err)
			metrics.ObserveSpeech(err)
			return
		}
		metrics.ObserveSpeech(nil)
	}()
}

func preview(input string) string {
	r := []rune(input)
	if len(r) > previewRunes {
		r = r[:previewRunes]
	}
	return string(r)
}
