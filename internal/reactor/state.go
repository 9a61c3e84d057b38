package reactor

import (
	"reactor-sim/internal/analysis"
	"reactor-sim/internal/eventlog"
	"reactor-sim/internal/telemetry"
)

// Mode is the controller's lifecycle state.
type Mode string

const (
	ModeIdle       Mode = "idle"
	ModeProcessing Mode = "processing"
	ModeActive     Mode = "active"
	ModeWarning    Mode = "warning"
)

// Stability bounds and adjustments.
const (
	InitialStability   = 100.0
	submitPenalty      = 15.0
	failurePenalty     = 20.0
	threatBase         = 80.0
	threatFloor        = 10.0
	completeBase       = 90.0
	maxStability       = 100.0
	previewRunes       = 30
	threatEffDivisor   = 2.0
	completeEffDivisor = 10.0
)

// State is the controller-owned part of the reactor. Only the engine
// goroutine mutates it.
type State struct {
	Mode       Mode
	Stability  float64
	LastResult *analysis.ReactionResult
	// Generation counts accepted submissions; deferred timers compare
	// against it so a stale timer never acts on a newer reaction.
	Generation uint64
}

// SystemLoad is the load figure shown next to stability.
func (s State) SystemLoad() float64 { return maxStability - s.Stability }

// Snapshot is a consistent copy of everything the presentation layer reads.
type Snapshot struct {
	ClusterID  string                   `json:"cluster_id"`
	Mode       Mode                     `json:"mode"`
	Stability  float64                  `json:"stability"`
	SystemLoad float64                  `json:"system_load"`
	Generation uint64                   `json:"generation"`
	LastResult *analysis.ReactionResult `json:"last_result,omitempty"`
	Telemetry  []telemetry.Sample       `json:"telemetry"`
	Logs       []eventlog.Entry         `json:"logs"`

	// Retention limits of the telemetry window and the log.
	TelemetryCapacity int `json:"telemetry_capacity"`
	LogCapacity       int `json:"log_capacity"`
}
