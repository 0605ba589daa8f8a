package alarm

import "time"

// EdgeType tells whether an input became active or inactive.
type EdgeType int

const (
	// EdgePressed is the active transition (contact closed, alarm output on).
	EdgePressed EdgeType = iota
	// EdgeReleased is the inactive transition.
	EdgeReleased
	// EdgeHeld reports an input kept active past the long-hold time.
	EdgeHeld
)

// String returns the edge name used on the wire.
func (e EdgeType) String() string {
	switch e {
	case EdgeReleased:
		return "released"
	case EdgeHeld:
		return "held"
	default:
		return "pressed"
	}
}

// ParseEdgeType converts a wire value to an EdgeType.
func ParseEdgeType(s string) (EdgeType, bool) {
	switch s {
	case "pressed", "1", "on", "active":
		return EdgePressed, true
	case "released", "0", "off", "inactive":
		return EdgeReleased, true
	case "held", "long":
		return EdgeHeld, true
	default:
		return EdgePressed, false
	}
}

// Edge is a raw input transition reported by the edge source.
type Edge struct {
	// SensorID identifies the camera or detector.
	SensorID string
	// Type is the transition direction.
	Type EdgeType
	// Timestamp is when the transition was observed.
	Timestamp time.Time
}

// BeaconAction is a status indicator command.
type BeaconAction string

// Beacon actions understood by the status indicator.
const (
	BeaconArming    BeaconAction = "arming"
	BeaconArmed     BeaconAction = "armed"
	BeaconDisarm    BeaconAction = "disarm"
	BeaconIdle      BeaconAction = "idle"
	BeaconIntrusion BeaconAction = "intrusion"
)

// NVRMode selects which configured input/value pair an NVR command applies.
type NVRMode string

// NVR modes.
const (
	NVRArm    NVRMode = "arm"
	NVRDisarm NVRMode = "disarm"
)
