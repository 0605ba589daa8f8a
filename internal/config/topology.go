package config

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Correlation policies.
const (
	// PolicyRules evaluates named ANY/ALL rules in configured order.
	PolicyRules = "rules"
	// PolicyPairwise correlates each camera with its associated detectors.
	PolicyPairwise = "pairwise"
)

// Rule kinds.
const (
	// RuleAny matches when at least one camera and one detector of the rule are recent.
	RuleAny = "any"
	// RuleAll matches when every camera and detector of the rule is recent.
	RuleAll = "all"
)

const (
	// DefaultTimeThreshold is the confirmation window when unset.
	DefaultTimeThreshold = 5 * time.Minute
	// DefaultSettleDelay is the pause between the two halves of a camera pulse.
	DefaultSettleDelay = 2 * time.Second
	// DefaultRetryInitialDelay is the first NVR backoff delay.
	DefaultRetryInitialDelay = 5 * time.Second
	// DefaultRetryMaxAttempts is the NVR attempt budget.
	DefaultRetryMaxAttempts = 10
	// DefaultProtocol is used for devices without an explicit protocol.
	DefaultProtocol = "http"
)

var (
	// ErrInvalidTopology wraps every topology validation failure.
	ErrInvalidTopology = errors.New("invalid topology")

	errNoSensors = errors.New("at least one camera or detector is required")
)

// Topology is the device registry, rule set and correlation timing.
type Topology struct {
	// TimeThreshold is the confirmation window.
	TimeThreshold time.Duration `yaml:"time_threshold"`
	// CountdownDuration is the number of one-second countdown ticks.
	CountdownDuration int `yaml:"countdown_duration"`
	// Policy selects the correlation strategy: rules or pairwise.
	Policy string `yaml:"policy"`
	// ConsumeCameras also clears the cameras' timestamps on confirmation.
	ConsumeCameras bool `yaml:"consume_cameras"`
	// SettleDelay is the pause inside a camera alarm-input pulse.
	SettleDelay time.Duration `yaml:"settle_delay"`
	// Retry is the NVR command retry policy.
	Retry Retry `yaml:"retry"`
	// Controls binds the physical arm switch and reset button.
	Controls Controls `yaml:"controls"`
	// Cameras are the IP cameras whose alarm contacts are both read and driven.
	Cameras []Camera `yaml:"cameras"`
	// Detectors are discrete contacts wired to the controller.
	Detectors []Detector `yaml:"detectors"`
	// NVRs receive the arm and disarm commands.
	NVRs []NVR `yaml:"nvrs"`
	// Beacon maps beacon actions to endpoints.
	Beacon map[string]Endpoint `yaml:"beacon"`
	// Rules are evaluated in order by the rules policy.
	Rules []Rule `yaml:"rules"`
	// Relay is the auxiliary relay output pulsed by rules with a relay duration.
	Relay Relay `yaml:"relay"`
}

// Retry is an exponential backoff policy.
type Retry struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// Controls binds physical controls to input pins.
type Controls struct {
	// ArmSwitchPin is the level-triggered arm/disarm toggle.
	ArmSwitchPin *int `yaml:"arm_switch_pin,omitempty"`
	// ResetPin is the long-hold reset button.
	ResetPin *int `yaml:"reset_pin,omitempty"`
}

// Endpoint addresses an HTTP device.
type Endpoint struct {
	Host     string `yaml:"host"`
	Protocol string `yaml:"protocol,omitempty"`
}

// Camera is an IP camera channel.
type Camera struct {
	ID       string `yaml:"id"`
	Pin      *int   `yaml:"pin,omitempty"`
	Endpoint `yaml:",inline"`
	// Detectors lists detector ids that may corroborate this camera.
	Detectors []string `yaml:"detectors,omitempty"`
}

// Detector is a discrete contact.
type Detector struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name,omitempty"`
	Pin  *int   `yaml:"pin,omitempty"`
	// Cameras lists the cameras pulsed when this detector takes part in a confirmation.
	Cameras []string `yaml:"cameras,omitempty"`
}

// NVR is a network video recorder with an alarm relay.
type NVR struct {
	ID       string `yaml:"id"`
	Endpoint `yaml:",inline"`
	Arm      NVRAction `yaml:"arm"`
	Disarm   NVRAction `yaml:"disarm"`
}

// NVRAction is the parameter and value written for one mode.
type NVRAction struct {
	Input string `yaml:"input"`
	Value string `yaml:"value"`
}

// Rule is a named correlation condition.
type Rule struct {
	Name          string        `yaml:"name"`
	Type          string        `yaml:"type"`
	Cameras       []string      `yaml:"cameras"`
	Detectors     []string      `yaml:"detectors"`
	RelayDuration time.Duration `yaml:"relay_duration,omitempty"`
}

// Relay describes the auxiliary relay output.
type Relay struct {
	Enabled bool `yaml:"enabled"`
	Pin     *int `yaml:"pin,omitempty"`
}

// ParseTopology decodes and validates a standalone topology document.
func ParseTopology(data []byte) (*Topology, error) {
	var t Topology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %w", ErrInvalidTopology, err)
	}

	if err := ValidateTopology(&t); err != nil {
		return nil, err
	}

	return &t, nil
}

// ValidateTopology fills defaults and rejects malformed topologies.
//
//nolint:cyclop,funlen,gocognit // Validation is a flat list of checks.
func ValidateTopology(t *Topology) error {
	if len(t.Cameras) == 0 && len(t.Detectors) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidTopology, errNoSensors)
	}

	if t.TimeThreshold == 0 {
		t.TimeThreshold = DefaultTimeThreshold
	}

	if t.TimeThreshold < 0 {
		return invalid("time_threshold must be positive")
	}

	if t.CountdownDuration < 0 {
		return invalid("countdown_duration must not be negative")
	}

	switch t.Policy {
	case "":
		t.Policy = PolicyRules
	case PolicyRules, PolicyPairwise:
	default:
		return invalid("unknown policy %q", t.Policy)
	}

	if t.SettleDelay <= 0 {
		t.SettleDelay = DefaultSettleDelay
	}

	if t.Retry.InitialDelay <= 0 {
		t.Retry.InitialDelay = DefaultRetryInitialDelay
	}

	if t.Retry.MaxAttempts <= 0 {
		t.Retry.MaxAttempts = DefaultRetryMaxAttempts
	}

	pins := make(map[int]string)
	bindPin := func(pin *int, owner string) error {
		if pin == nil {
			return nil
		}

		if *pin < 0 {
			return invalid("%s: negative pin %d", owner, *pin)
		}

		if prev, ok := pins[*pin]; ok {
			return invalid("pin %d bound to both %s and %s", *pin, prev, owner)
		}

		pins[*pin] = owner

		return nil
	}

	if err := bindPin(t.Controls.ArmSwitchPin, "arm switch"); err != nil {
		return err
	}

	if err := bindPin(t.Controls.ResetPin, "reset button"); err != nil {
		return err
	}

	if err := bindPin(t.Relay.Pin, "relay"); err != nil {
		return err
	}

	cameras := make(map[string]bool, len(t.Cameras))
	for i := range t.Cameras {
		c := &t.Cameras[i]
		if c.ID == "" {
			return invalid("camera #%d has no id", i)
		}

		if cameras[c.ID] {
			return invalid("duplicate camera %q", c.ID)
		}

		if c.Host == "" {
			return invalid("camera %q has no host", c.ID)
		}

		if c.Protocol == "" {
			c.Protocol = DefaultProtocol
		}

		if err := bindPin(c.Pin, "camera "+c.ID); err != nil {
			return err
		}

		cameras[c.ID] = true
	}

	detectors := make(map[string]bool, len(t.Detectors))
	for i := range t.Detectors {
		d := &t.Detectors[i]
		if d.ID == "" {
			return invalid("detector #%d has no id", i)
		}

		if detectors[d.ID] || cameras[d.ID] {
			return invalid("duplicate sensor id %q", d.ID)
		}

		if d.Name == "" {
			d.Name = d.ID
		}

		if err := bindPin(d.Pin, "detector "+d.ID); err != nil {
			return err
		}

		detectors[d.ID] = true
	}

	for _, c := range t.Cameras {
		for _, id := range c.Detectors {
			if !detectors[id] {
				return invalid("camera %q references unknown detector %q", c.ID, id)
			}
		}
	}

	for _, d := range t.Detectors {
		for _, id := range d.Cameras {
			if !cameras[id] {
				return invalid("detector %q references unknown camera %q", d.ID, id)
			}
		}
	}

	nvrs := make(map[string]bool, len(t.NVRs))
	for i := range t.NVRs {
		n := &t.NVRs[i]
		if n.ID == "" || n.Host == "" {
			return invalid("nvr #%d needs id and host", i)
		}

		if nvrs[n.ID] {
			return invalid("duplicate nvr %q", n.ID)
		}

		if n.Arm.Input == "" || n.Disarm.Input == "" {
			return invalid("nvr %q needs arm and disarm inputs", n.ID)
		}

		if n.Protocol == "" {
			n.Protocol = DefaultProtocol
		}

		nvrs[n.ID] = true
	}

	for action, ep := range t.Beacon {
		if ep.Host == "" {
			return invalid("beacon action %q has no host", action)
		}

		if ep.Protocol == "" {
			ep.Protocol = DefaultProtocol
			t.Beacon[action] = ep
		}
	}

	if t.Policy == PolicyRules && len(t.Rules) == 0 {
		return invalid("policy %q requires at least one rule", PolicyRules)
	}

	names := make(map[string]bool, len(t.Rules))
	for i := range t.Rules {
		r := &t.Rules[i]
		if r.Name == "" {
			return invalid("rule #%d has no name", i)
		}

		if names[r.Name] {
			return invalid("duplicate rule %q", r.Name)
		}

		names[r.Name] = true

		switch r.Type {
		case RuleAny, RuleAll:
		default:
			return invalid("rule %q has unknown type %q", r.Name, r.Type)
		}

		if len(r.Cameras) == 0 || len(r.Detectors) == 0 {
			return invalid("rule %q needs cameras and detectors", r.Name)
		}

		for _, id := range r.Cameras {
			if !cameras[id] {
				return invalid("rule %q references unknown camera %q", r.Name, id)
			}
		}

		for _, id := range r.Detectors {
			if !detectors[id] {
				return invalid("rule %q references unknown detector %q", r.Name, id)
			}
		}

		if r.RelayDuration < 0 {
			return invalid("rule %q has negative relay_duration", r.Name)
		}

		if r.RelayDuration > 0 && !t.Relay.Enabled {
			return invalid("rule %q pulses the relay but no relay is enabled", r.Name)
		}
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTopology, fmt.Sprintf(format, args...))
}
