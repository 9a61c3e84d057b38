package scenario

import "time"

// BuiltIn returns the scripts selectable by name.
func BuiltIn() map[string]Scenario {
	return map[string]Scenario{
		"demo": {
			Name:        "demo",
			Description: "A calm warm-up followed by a hostile payload, spaced so every reaction settles.",
			Steps: []Step{
				{After: 2 * time.Second, Input: "Quarterly maintenance log: coolant pumps nominal, turbine vibration within tolerance."},
				{After: 15 * time.Second, Input: "Research abstract on deuterium-tritium confinement in compact tokamaks."},
				{After: 15 * time.Second, Input: "URGENT: unauthorised override of the primary containment field detected."},
				{After: 15 * time.Second, Input: "Operator shift notes: all systems restored, recommend standard monitoring."},
			},
		},
		"stress": {
			Name:        "stress",
			Description: "Rapid-fire injections; most land mid-reaction and are dropped by the core.",
			Steps: []Step{
				{After: time.Second, Input: "Sensor burst 01: neutron flux spike"},
				{After: 500 * time.Millisecond, Input: "Sensor burst 02: thermal runaway warning"},
				{After: 500 * time.Millisecond, Input: "Sensor burst 03: magnetic coil desync"},
				{After: 500 * time.Millisecond, Input: "Sensor burst 04: pressure vessel anomaly"},
				{After: 3 * time.Second, Input: "Sensor burst 05: emergency vent request"},
				{After: 500 * time.Millisecond, Input: "Sensor burst 06: control rod telemetry lost"},
			},
		},
	}
}
