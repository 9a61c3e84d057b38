// Package metrics exports reactor activity to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reactor-sim/internal/reactor"
)

var modes = []reactor.Mode{reactor.ModeIdle, reactor.ModeProcessing, reactor.ModeActive, reactor.ModeWarning}

// Prometheus implements reactor.Metrics and instruments the admin HTTP
// routes.
type Prometheus struct {
	gatherer   prometheus.Gatherer
	registerer prometheus.Registerer

	submissions     *prometheus.CounterVec
	reactions       *prometheus.CounterVec
	reactionLatency prometheus.Histogram
	stability       prometheus.Gauge
	mode            *prometheus.GaugeVec
	speech          *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers the reactor collectors with reg. A nil reg uses a fresh
// registry.
func New(reg *prometheus.Registry) *Prometheus {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Prometheus{
		gatherer:   reg,
		registerer: reg,
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reactor_submissions_total",
			Help: "Injections received, by whether the engine accepted them",
		}, []string{"accepted"}),
		reactions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reactor_reactions_total",
			Help: "Completed analyses by outcome",
		}, []string{"outcome"}),
		reactionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "reactor_reaction_latency_seconds",
			Help:    "Time from injection to analysis result",
			Buckets: []float64{.25, .5, 1, 2, 4, 8, 16, 32},
		}),
		stability: f.NewGauge(prometheus.GaugeOpts{
			Name: "reactor_stability",
			Help: "Current core stability",
		}),
		mode: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reactor_mode",
			Help: "1 for the current reactor mode, 0 otherwise",
		}, []string{"mode"}),
		speech: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reactor_speech_total",
			Help: "Speech synthesis attempts by result",
		}, []string{"result"}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reactor_admin_requests_total",
			Help: "Admin HTTP requests processed",
		}, []string{"route", "method", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reactor_admin_request_duration_seconds",
			Help:    "Admin HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"route", "method"}),
	}
}

// ObserveSubmission implements reactor.Metrics.
func (p *Prometheus) ObserveSubmission(accepted bool) {
	p.submissions.WithLabelValues(strconv.FormatBool(accepted)).Inc()
}

// ObserveReaction implements reactor.Metrics.
func (p *Prometheus) ObserveReaction(outcome string, latency time.Duration) {
	p.reactions.WithLabelValues(outcome).Inc()
	p.reactionLatency.Observe(latency.Seconds())
}

// ObserveState implements reactor.Metrics.
func (p *Prometheus) ObserveState(mode reactor.Mode, stability float64) {
	p.stability.Set(stability)
	for _, m := range modes {
		v := 0.0
		if m == mode {
			v = 1
		}
		p.mode.WithLabelValues(string(m)).Set(v)
	}
}

// ObserveSpeech implements reactor.Metrics.
func (p *Prometheus) ObserveSpeech(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.speech.WithLabelValues(result).Inc()
}

// TrackClients exports count as the number of connected websocket clients.
// Only the first call per registry takes effect.
func (p *Prometheus) TrackClients(count func() int) {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "reactor_admin_ws_clients",
		Help: "Websocket clients currently connected to the admin hub",
	}, func() float64 { return float64(count()) })
	if err := p.registerer.Register(g); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			panic(err)
		}
	}
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

// Instrument wraps next with request counting and timing under route.
func (p *Prometheus) Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := prometheus.NewTimer(p.requestDuration.WithLabelValues(route, r.Method))
		defer timer.ObserveDuration()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		p.requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
