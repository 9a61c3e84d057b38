package telemetry

import (
	"os"
	"time"
)

// StateRow captures the controller state once per tick and on every
// transition.
type StateRow struct {
	ClusterID  string    `json:"cluster_id"`
	Mode       string    `json:"mode"`
	Stability  float64   `json:"stability"`
	SystemLoad float64   `json:"system_load"`
	Generation uint64    `json:"generation"`
	Timestamp  time.Time `json:"ts"`
}

// StateTableName is the GreptimeDB table for state rows, overridable via
// GREPTIMEDB_STATE_TABLE.
var StateTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_STATE_TABLE"); env != "" {
		return env
	}
	return "reactor_state"
}()
