package reactor

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"reactor-sim/internal/eventlog"
	"reactor-sim/internal/telemetry"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorWhite   = "\x1b[37m"
	colorGray    = "\x1b[90m"
)

// Overview is printed once before the first record.
type Overview struct {
	ClusterID    string
	TickInterval time.Duration
	IdleDelay    time.Duration
	Model        string
	SpeechModel  string
}

// ColorStdoutWriter prints human-friendly, colorized engine output.
type ColorStdoutWriter struct {
	mu       sync.Mutex
	overview *Overview
	out      io.Writer
	once     sync.Once
}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to os.Stdout.
func NewColorStdoutWriter(ov *Overview) *ColorStdoutWriter {
	return &ColorStdoutWriter{overview: ov, out: os.Stdout}
}

func severityColor(s eventlog.Severity) string {
	switch s {
	case eventlog.SeverityError:
		return colorRed
	case eventlog.SeverityWarning:
		return colorYellow
	case eventlog.SeveritySuccess:
		return colorGreen
	default:
		return colorCyan
	}
}

func modeColor(m Mode) string {
	switch m {
	case ModeProcessing:
		return colorYellow
	case ModeActive:
		return colorGreen
	case ModeWarning:
		return colorRed
	default:
		return colorBlue
	}
}

func (w *ColorStdoutWriter) printOverview() {
	if w.overview == nil {
		return
	}
	fmt.Fprintln(w.out, "Reactor Configuration:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Cluster:\t%s\n", w.overview.ClusterID)
	fmt.Fprintf(tw, "Tick Interval:\t%s\n", w.overview.TickInterval)
	fmt.Fprintf(tw, "Idle Delay:\t%s\n", w.overview.IdleDelay)
	fmt.Fprintf(tw, "Analysis Model:\t%s\n", w.overview.Model)
	fmt.Fprintf(tw, "Speech Model:\t%s\n", w.overview.SpeechModel)
	tw.Flush()
	fmt.Fprintln(w.out)
}

func (w *ColorStdoutWriter) stamp(ts time.Time) string {
	return fmt.Sprintf("%s[%s]%s", colorGray, ts.Format(time.RFC3339), colorReset)
}

// Write outputs a telemetry sample.
func (w *ColorStdoutWriter) Write(s telemetry.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.once.Do(w.printOverview)
	_, err := fmt.Fprintf(w.out, "%s %scluster=%s%s %sseq=%d%s %spower=%.1f%s %sheat=%.1f%s %sstability=%.1f%s\n",
		w.stamp(s.Timestamp),
		colorBlue, s.ClusterID, colorReset,
		colorWhite, s.Sequence, colorReset,
		colorYellow, s.Power, colorReset,
		colorRed, s.Heat, colorReset,
		colorCyan, s.Stability, colorReset)
	return err
}

// WriteLog outputs a log entry coloured by severity.
func (w *ColorStdoutWriter) WriteLog(e eventlog.Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.once.Do(w.printOverview)
	c := severityColor(e.Severity)
	_, err := fmt.Fprintf(w.out, "%s %s%-7s%s %s\n", w.stamp(e.Time), c, strings.ToUpper(string(e.Severity)), colorReset, e.Message)
	return err
}

// WriteState outputs a state transition.
func (w *ColorStdoutWriter) WriteState(row telemetry.StateRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.once.Do(w.printOverview)
	_, err := fmt.Fprintf(w.out, "%s %sSTATE%s %smode=%s%s stability=%.1f load=%.1f gen=%d\n",
		w.stamp(row.Timestamp), colorMagenta, colorReset,
		modeColor(Mode(row.Mode)), row.Mode, colorReset,
		row.Stability, row.SystemLoad, row.Generation)
	return err
}

// WriteReaction outputs a reaction summary.
func (w *ColorStdoutWriter) WriteReaction(row telemetry.ReactionRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.once.Do(w.printOverview)
	c := colorGreen
	switch row.Outcome {
	case telemetry.OutcomeThreat:
		c = colorYellow
	case telemetry.OutcomeFailed:
		c = colorRed
	}
	_, err := fmt.Fprintf(w.out, "%s %sREACTION%s outcome=%s threat=%s eff=%.1f latency=%.0fms\n",
		w.stamp(row.Timestamp), c, colorReset, row.Outcome, row.ThreatLevel, row.Efficiency, row.Latency)
	return err
}
