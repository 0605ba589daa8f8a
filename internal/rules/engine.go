package rules

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/oshokin/perimeter-alarm/internal/config"
	"github.com/oshokin/perimeter-alarm/internal/registry"
	"github.com/oshokin/perimeter-alarm/internal/triggerlog"
)

// ErrUnknownPolicy is returned for policies other than rules and pairwise.
var ErrUnknownPolicy = errors.New("unknown correlation policy")

// Decision is one confirmed intrusion and the actuations it requires.
type Decision struct {
	// Rule names the matched rule; pairwise decisions use "camera/detector".
	Rule string
	// Cameras are the cameras to pulse, deduplicated, in issue order.
	Cameras []string
	// Detectors are the detectors that corroborated the intrusion.
	Detectors []string
	// RelayDuration is the auxiliary relay pulse length; zero means no pulse.
	RelayDuration time.Duration
}

// Engine evaluates the active policy against a trigger log.
type Engine struct {
	policy         string
	threshold      time.Duration
	consumeCameras bool
	rules          []config.Rule
}

// New creates an engine for a validated topology.
func New(t *config.Topology) (*Engine, error) {
	switch t.Policy {
	case config.PolicyRules, config.PolicyPairwise:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, t.Policy)
	}

	return &Engine{
		policy:         t.Policy,
		threshold:      t.TimeThreshold,
		consumeCameras: t.ConsumeCameras,
		rules:          slices.Clone(t.Rules),
	}, nil
}

// Policy returns the active policy name.
func (e *Engine) Policy() string {
	return e.policy
}

// Threshold returns the confirmation window.
func (e *Engine) Threshold() time.Duration {
	return e.threshold
}

// RuleCount returns the number of configured rules.
func (e *Engine) RuleCount() int {
	return len(e.rules)
}

// Evaluate checks the log at instant now and returns the confirmations.
// Consumed timestamps are cleared from the log before returning.
func (e *Engine) Evaluate(now time.Time, reg *registry.Registry, log *triggerlog.Log) []Decision {
	if e.policy == config.PolicyPairwise {
		return e.evaluatePairwise(now, reg, log)
	}

	if d, ok := e.evaluateRules(now, reg, log); ok {
		return []Decision{d}
	}

	return nil
}

func (e *Engine) evaluateRules(now time.Time, reg *registry.Registry, log *triggerlog.Log) (Decision, bool) {
	for _, rule := range e.rules {
		cameras := recentOf(rule.Cameras, now, e.threshold, log)
		detectors := recentOf(rule.Detectors, now, e.threshold, log)

		var matched bool

		switch rule.Type {
		case config.RuleAny:
			matched = len(cameras) > 0 && len(detectors) > 0
		case config.RuleAll:
			matched = len(cameras) == len(rule.Cameras) && len(detectors) == len(rule.Detectors)
		}

		if !matched {
			continue
		}

		pulse := slices.Clone(cameras)

		for _, id := range detectors {
			if s, ok := reg.Sensor(id); ok {
				pulse = append(pulse, s.Associated...)
			}

			log.Clear(id)
		}

		if e.consumeCameras {
			for _, id := range cameras {
				log.Clear(id)
			}
		}

		return Decision{
			Rule:          rule.Name,
			Cameras:       dedupe(pulse),
			Detectors:     detectors,
			RelayDuration: rule.RelayDuration,
		}, true
	}

	return Decision{}, false
}

func (e *Engine) evaluatePairwise(now time.Time, reg *registry.Registry, log *triggerlog.Log) []Decision {
	var decisions []Decision

	for _, camera := range reg.Cameras() {
		if !log.Recent(camera.ID, now, e.threshold) {
			continue
		}

		for _, detector := range camera.Associated {
			if !log.Correlated(camera.ID, detector, e.threshold) {
				continue
			}

			log.Clear(camera.ID)
			log.Clear(detector)

			decisions = append(decisions, Decision{
				Rule:      camera.ID + "/" + detector,
				Cameras:   []string{camera.ID},
				Detectors: []string{detector},
			})

			break
		}
	}

	return decisions
}

// recentOf keeps the ids whose last trigger is inside the window, in order.
func recentOf(ids []string, now time.Time, threshold time.Duration, log *triggerlog.Log) []string {
	var out []string

	for _, id := range ids {
		if log.Recent(id, now, threshold) {
			out = append(out, id)
		}
	}

	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]

	for _, id := range ids {
		if seen[id] {
			continue
		}

		seen[id] = true

		out = append(out, id)
	}

	return out
}
