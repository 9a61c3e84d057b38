package telemetry

import (
	"os"
	"time"
)

// Reaction outcomes.
const (
	OutcomeComplete = "complete"
	OutcomeThreat   = "threat"
	OutcomeFailed   = "failed"
)

// ReactionRow records how one accepted injection resolved.
type ReactionRow struct {
	ClusterID   string    `json:"cluster_id"`
	Generation  uint64    `json:"generation"`
	Outcome     string    `json:"outcome"`
	ThreatLevel string    `json:"threat_level,omitempty"`
	Efficiency  float64   `json:"efficiency"`
	Summary     string    `json:"summary,omitempty"`
	Insights    []string  `json:"insights,omitempty"`
	Stability   float64   `json:"stability"`
	Latency     float64   `json:"latency_ms"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"ts"`
}

// ReactionTableName is the GreptimeDB table for reaction rows, overridable
// via GREPTIMEDB_REACTION_TABLE.
var ReactionTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_REACTION_TABLE"); env != "" {
		return env
	}
	return "reactor_reactions"
}()
