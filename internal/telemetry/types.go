// Telemetry sample structs shared by the generator and writers
package telemetry

import (
	"os"
	"time"
)

// Sample is one point of the reactor's power/heat series.
type Sample struct {
	ClusterID string    `json:"cluster_id"` // TAG
	Sequence  uint64    `json:"sequence"`   // FIELD
	Power     float64   `json:"power"`      // FIELD
	Heat      float64   `json:"heat"`       // FIELD
	Stability float64   `json:"stability"`  // FIELD
	Timestamp time.Time `json:"ts"`         // TIME INDEX
}

// TableName holds the table name used when writing samples to GreptimeDB.
// It defaults to "reactor_telemetry" and can be overridden via the
// GREPTIMEDB_TELEMETRY_TABLE environment variable.
var TableName = func() string {
	if env := os.Getenv("GREPTIMEDB_TELEMETRY_TABLE"); env != "" {
		return env
	}
	return "reactor_telemetry"
}()

func (Sample) TableName() string {
	return TableName
}

// Default generator bounds.
const (
	DefaultCapacity = 20
	MinValue        = 0.0
	MaxValue        = 100.0
)
