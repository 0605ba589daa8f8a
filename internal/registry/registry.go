package registry

import (
	"errors"
	"fmt"
	"slices"

	"github.com/oshokin/perimeter-alarm/internal/config"
)

// Kind distinguishes cameras from detectors.
type Kind int

const (
	// KindCamera is an IP camera alarm contact.
	KindCamera Kind = iota
	// KindDetector is a discrete door or window contact.
	KindDetector
)

// String returns the kind name.
func (k Kind) String() string {
	if k == KindDetector {
		return "detector"
	}

	return "camera"
}

// Control identifies a physical control bound to a pin.
type Control int

const (
	// ControlNone means the pin is not a control.
	ControlNone Control = iota
	// ControlArmSwitch is the level-triggered arm/disarm toggle.
	ControlArmSwitch
	// ControlReset is the long-hold reset button.
	ControlReset
)

// Sensor is a camera or detector.
type Sensor struct {
	// ID is the camera name or detector id.
	ID string
	// Name is a human readable label.
	Name string
	// Kind tells cameras from detectors.
	Kind Kind
	// Pin is the input binding; nil when the sensor is fed by id only.
	Pin *int
	// Associated lists corroborating sensor ids: detectors for a camera,
	// cameras to pulse for a detector.
	Associated []string
	// Endpoint addresses the camera; zero for detectors.
	Endpoint config.Endpoint
}

// ErrUnknownSensor is returned for ids that are not in the registry.
var ErrUnknownSensor = errors.New("unknown sensor")

// Registry is the immutable topology plus the mutable interest table.
// It is not safe for concurrent use; the arming machine serializes access.
type Registry struct {
	cameras   []*Sensor
	detectors []*Sensor
	byID      map[string]*Sensor
	byPin     map[int]*Sensor
	controls  map[int]Control
	nvrs      []config.NVR
	beacon    map[string]config.Endpoint
	interest  map[string]bool
}

// New builds a registry from a validated topology.
// Every sensor starts with edge delivery enabled.
func New(t *config.Topology) (*Registry, error) {
	r := &Registry{
		byID:     make(map[string]*Sensor, len(t.Cameras)+len(t.Detectors)),
		byPin:    make(map[int]*Sensor),
		controls: make(map[int]Control, 2),
		nvrs:     slices.Clone(t.NVRs),
		beacon:   make(map[string]config.Endpoint, len(t.Beacon)),
		interest: make(map[string]bool, len(t.Cameras)+len(t.Detectors)),
	}

	for _, c := range t.Cameras {
		s := &Sensor{
			ID:         c.ID,
			Name:       c.ID,
			Kind:       KindCamera,
			Pin:        c.Pin,
			Associated: slices.Clone(c.Detectors),
			Endpoint:   c.Endpoint,
		}
		if err := r.add(s); err != nil {
			return nil, err
		}

		r.cameras = append(r.cameras, s)
	}

	for _, d := range t.Detectors {
		s := &Sensor{
			ID:         d.ID,
			Name:       d.Name,
			Kind:       KindDetector,
			Pin:        d.Pin,
			Associated: slices.Clone(d.Cameras),
		}
		if err := r.add(s); err != nil {
			return nil, err
		}

		r.detectors = append(r.detectors, s)
	}

	for _, s := range r.byID {
		for _, id := range s.Associated {
			if _, ok := r.byID[id]; !ok {
				return nil, fmt.Errorf("%s %q: %w %q", s.Kind, s.ID, ErrUnknownSensor, id)
			}
		}
	}

	if p := t.Controls.ArmSwitchPin; p != nil {
		r.controls[*p] = ControlArmSwitch
	}

	if p := t.Controls.ResetPin; p != nil {
		r.controls[*p] = ControlReset
	}

	for action, ep := range t.Beacon {
		r.beacon[action] = ep
	}

	return r, nil
}

func (r *Registry) add(s *Sensor) error {
	if _, ok := r.byID[s.ID]; ok {
		return fmt.Errorf("%w: duplicate sensor %q", config.ErrInvalidTopology, s.ID)
	}

	r.byID[s.ID] = s
	r.interest[s.ID] = true

	if s.Pin != nil {
		r.byPin[*s.Pin] = s
	}

	return nil
}

// Sensor returns the sensor with the given id.
func (r *Registry) Sensor(id string) (*Sensor, bool) {
	s, ok := r.byID[id]

	return s, ok
}

// ByPin resolves an input pin to a sensor.
func (r *Registry) ByPin(pin int) (*Sensor, bool) {
	s, ok := r.byPin[pin]

	return s, ok
}

// ControlAt resolves an input pin to a physical control.
func (r *Registry) ControlAt(pin int) Control {
	return r.controls[pin]
}

// Cameras returns cameras in configured order.
func (r *Registry) Cameras() []*Sensor {
	return r.cameras
}

// Detectors returns detectors in configured order.
func (r *Registry) Detectors() []*Sensor {
	return r.detectors
}

// SensorIDs returns every sensor id, cameras first.
func (r *Registry) SensorIDs() []string {
	ids := make([]string, 0, len(r.byID))
	for _, s := range r.cameras {
		ids = append(ids, s.ID)
	}

	for _, s := range r.detectors {
		ids = append(ids, s.ID)
	}

	return ids
}

// NVRs returns the configured NVRs.
func (r *Registry) NVRs() []config.NVR {
	return r.nvrs
}

// BeaconEndpoint returns the endpoint for a beacon action.
func (r *Registry) BeaconEndpoint(action string) (config.Endpoint, bool) {
	ep, ok := r.beacon[action]

	return ep, ok
}

// SetInterest enables or disables edge delivery for every sensor.
func (r *Registry) SetInterest(enabled bool) {
	for id := range r.interest {
		r.interest[id] = enabled
	}
}

// Interested reports whether edges from the sensor are delivered.
func (r *Registry) Interested(id string) bool {
	return r.interest[id]
}
