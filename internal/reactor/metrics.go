package reactor

import "time"

// Metrics records engine activity. internal/metrics provides the
// Prometheus implementation.
type Metrics interface {
	ObserveSubmission(accepted bool)
	ObserveReaction(outcome string, latency time.Duration)
	ObserveState(mode Mode, stability float64)
	ObserveSpeech(err error)
}

type nopMetrics struct{}

func (nopMetrics) ObserveSubmission(bool)                {}
func (nopMetrics) ObserveReaction(string, time.Duration) {}
func (nopMetrics) ObserveState(Mode, float64)            {}
func (nopMetrics) ObserveSpeech(error)                   {}
