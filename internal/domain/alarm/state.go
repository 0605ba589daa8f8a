package alarm

import (
	"fmt"
	"time"
)

// Mode is the arming mode of the controller.
type Mode int

const (
	// ModeDisarmed means raw sensor edges are not recorded.
	ModeDisarmed Mode = iota
	// ModeArming means the countdown is running.
	ModeArming
	// ModeArmed means accepted edges are recorded and evaluated.
	ModeArmed
)

// String returns the lowercase mode name.
func (m Mode) String() string {
	switch m {
	case ModeDisarmed:
		return "disarmed"
	case ModeArming:
		return "arming"
	case ModeArmed:
		return "armed"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts a mode name back to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "disarmed":
		return ModeDisarmed, true
	case "arming":
		return ModeArming, true
	case "armed":
		return ModeArmed, true
	default:
		return ModeDisarmed, false
	}
}

// Status is a point-in-time snapshot of the controller.
type Status struct {
	// Mode is the current arming mode.
	Mode Mode
	// CountdownRemaining is the time left before ARMED; zero outside ARMING.
	CountdownRemaining time.Duration
	// Since is when the current mode was entered.
	Since time.Time
	// Policy is the active correlation policy name.
	Policy string
	// Cameras is the number of configured cameras.
	Cameras int
	// Detectors is the number of configured detectors.
	Detectors int
	// Rules is the number of configured rules.
	Rules int
	// LastIncident describes the most recent confirmed intrusion, if any.
	LastIncident *Incident
}

// Clone returns a copy of the status to avoid leaking internal references.
func (s *Status) Clone() *Status {
	if s == nil {
		return nil
	}

	cloned := *s
	cloned.LastIncident = s.LastIncident.Clone()

	return &cloned
}

// Incident is a confirmed intrusion.
type Incident struct {
	// ID correlates every log line and command of one confirmation.
	ID string
	// Rule names the rule that matched; pairwise confirmations use "camera/detector".
	Rule string
	// Cameras lists the cameras whose alarm input was pulsed.
	Cameras []string
	// Detectors lists the detectors that corroborated the intrusion.
	Detectors []string
	// ConfirmedAt is the timestamp of the edge that completed the match.
	ConfirmedAt time.Time
}

// Clone returns a deep copy of the incident.
func (i *Incident) Clone() *Incident {
	if i == nil {
		return nil
	}

	cloned := *i
	cloned.Cameras = append([]string(nil), i.Cameras...)
	cloned.Detectors = append([]string(nil), i.Detectors...)

	return &cloned
}
