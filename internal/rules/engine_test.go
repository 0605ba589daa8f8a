package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/perimeter-alarm/internal/config"
	"github.com/oshokin/perimeter-alarm/internal/registry"
	"github.com/oshokin/perimeter-alarm/internal/triggerlog"
)

var t0 = time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)

// fixture builds a registry, engine and empty log from a topology.
func fixture(t *testing.T, topo *config.Topology) (*Engine, *registry.Registry, *triggerlog.Log) {
	t.Helper()

	require.NoError(t, config.ValidateTopology(topo))

	reg, err := registry.New(topo)
	require.NoError(t, err)

	e, err := New(topo)
	require.NoError(t, err)

	return e, reg, triggerlog.New()
}

func topology(rules ...config.Rule) *config.Topology {
	return &config.Topology{
		TimeThreshold: 5 * time.Minute,
		Policy:        config.PolicyRules,
		Cameras: []config.Camera{
			{ID: "C1", Endpoint: config.Endpoint{Host: "10.0.0.1"}, Detectors: []string{"D1"}},
			{ID: "C2", Endpoint: config.Endpoint{Host: "10.0.0.2"}},
			{ID: "C3", Endpoint: config.Endpoint{Host: "10.0.0.3"}},
		},
		Detectors: []config.Detector{
			{ID: "D1", Cameras: []string{"C3"}},
			{ID: "D2"},
		},
		Relay: config.Relay{Enabled: true},
		Rules: rules,
	}
}

// TestAnyRule_ConfirmsOnce covers C1 then D1 inside the window.
func TestAnyRule_ConfirmsOnce(t *testing.T) {
	t.Parallel()

	e, reg, log := fixture(t, topology(config.Rule{
		Name: "R1", Type: config.RuleAny, Cameras: []string{"C1"}, Detectors: []string{"D1"},
	}))

	log.Record("C1", t0)
	require.Empty(t, e.Evaluate(t0, reg, log), "camera alone never confirms")

	now := t0.Add(200 * time.Second)
	log.Record("D1", now)

	got := e.Evaluate(now, reg, log)
	require.Len(t, got, 1)
	require.Equal(t, "R1", got[0].Rule)
	require.Equal(t, []string{"C1", "C3"}, got[0].Cameras)
	require.Equal(t, []string{"D1"}, got[0].Detectors)
	require.Zero(t, got[0].RelayDuration)

	_, ok := log.Last("D1")
	require.False(t, ok, "detector is consumed")

	_, ok = log.Last("C1")
	require.True(t, ok, "camera stays recorded by default")

	require.Empty(t, e.Evaluate(now, reg, log), "same event does not confirm twice")
}

// TestAnyRule_OutsideWindow covers the detector arriving after the threshold.
func TestAnyRule_OutsideWindow(t *testing.T) {
	t.Parallel()

	e, reg, log := fixture(t, topology(config.Rule{
		Name: "R1", Type: config.RuleAny, Cameras: []string{"C1"}, Detectors: []string{"D1"},
	}))

	log.Record("C1", t0)

	now := t0.Add(400 * time.Second)
	log.Record("D1", now)
	require.Empty(t, e.Evaluate(now, reg, log))

	ts, ok := log.Last("C1")
	require.True(t, ok)
	require.Equal(t, t0, ts)

	// A fresh camera trigger correlates with the still-recent detector.
	later := now.Add(10 * time.Second)
	log.Record("C1", later)
	require.Len(t, e.Evaluate(later, reg, log), 1)
}

// TestAllRule requires every configured sensor of the rule to be recent.
func TestAllRule(t *testing.T) {
	t.Parallel()

	e, reg, log := fixture(t, topology(config.Rule{
		Name: "perimeter", Type: config.RuleAll,
		Cameras: []string{"C1", "C2"}, Detectors: []string{"D1"},
		RelayDuration: 10 * time.Second,
	}))

	log.Record("C1", t0)
	log.Record("D1", t0.Add(time.Second))
	require.Empty(t, e.Evaluate(t0.Add(time.Second), reg, log))

	now := t0.Add(2 * time.Minute)
	log.Record("C2", now)

	got := e.Evaluate(now, reg, log)
	require.Len(t, got, 1)
	require.Equal(t, []string{"C1", "C2", "C3"}, got[0].Cameras)
	require.Equal(t, 10*time.Second, got[0].RelayDuration)

	_, ok := log.Last("D1")
	require.False(t, ok)

	require.Empty(t, e.Evaluate(now, reg, log))
}

// TestAllRule_StaleSensorDoesNotCount ensures an old trigger falls out of the window.
func TestAllRule_StaleSensorDoesNotCount(t *testing.T) {
	t.Parallel()

	e, reg, log := fixture(t, topology(config.Rule{
		Name: "perimeter", Type: config.RuleAll,
		Cameras: []string{"C1", "C2"}, Detectors: []string{"D1"},
	}))

	log.Record("C1", t0)
	log.Record("D1", t0.Add(6*time.Minute))
	log.Record("C2", t0.Add(6*time.Minute))

	require.Empty(t, e.Evaluate(t0.Add(6*time.Minute), reg, log))
}

// TestFirstMatchWins stops after the first matching rule.
func TestFirstMatchWins(t *testing.T) {
	t.Parallel()

	e, reg, log := fixture(t, topology(
		config.Rule{Name: "first", Type: config.RuleAny, Cameras: []string{"C1"}, Detectors: []string{"D1"}},
		config.Rule{Name: "second", Type: config.RuleAny, Cameras: []string{"C2"}, Detectors: []string{"D2"}},
	))

	log.Record("C1", t0)
	log.Record("C2", t0)
	log.Record("D2", t0)
	log.Record("D1", t0)

	got := e.Evaluate(t0, reg, log)
	require.Len(t, got, 1)
	require.Equal(t, "first", got[0].Rule)

	// The second rule's detector is untouched and matches on the next edge.
	got = e.Evaluate(t0, reg, log)
	require.Len(t, got, 1)
	require.Equal(t, "second", got[0].Rule)
}

// TestConsumeCameras clears the cameras when configured.
func TestConsumeCameras(t *testing.T) {
	t.Parallel()

	topo := topology(config.Rule{Name: "R1", Type: config.RuleAny, Cameras: []string{"C1"}, Detectors: []string{"D1"}})
	topo.ConsumeCameras = true

	e, reg, log := fixture(t, topo)

	log.Record("C1", t0)
	log.Record("D1", t0)
	require.Len(t, e.Evaluate(t0, reg, log), 1)
	require.Zero(t, log.Len())
}

// TestPairwise correlates cameras with associated detectors and clears both.
func TestPairwise(t *testing.T) {
	t.Parallel()

	topo := topology()
	topo.Policy = config.PolicyPairwise

	e, reg, log := fixture(t, topo)
	require.Equal(t, config.PolicyPairwise, e.Policy())

	log.Record("C1", t0)
	log.Record("D2", t0)
	require.Empty(t, e.Evaluate(t0, reg, log), "D2 is not associated with C1")

	log.Record("D1", t0.Add(time.Minute))

	got := e.Evaluate(t0.Add(time.Minute), reg, log)
	require.Len(t, got, 1)
	require.Equal(t, "C1/D1", got[0].Rule)
	require.Equal(t, []string{"C1"}, got[0].Cameras)

	_, ok := log.Last("C1")
	require.False(t, ok)
	_, ok = log.Last("D1")
	require.False(t, ok)
	_, ok = log.Last("D2")
	require.True(t, ok)
}

// TestPairwise_TooFarApart rejects pairs further apart than the threshold.
func TestPairwise_TooFarApart(t *testing.T) {
	t.Parallel()

	topo := topology()
	topo.Policy = config.PolicyPairwise
	topo.TimeThreshold = time.Minute

	e, reg, log := fixture(t, topo)

	log.Record("D1", t0)
	log.Record("C1", t0.Add(2*time.Minute))
	require.Empty(t, e.Evaluate(t0.Add(2*time.Minute), reg, log))
}

// TestNew_UnknownPolicy guards against unvalidated topologies.
func TestNew_UnknownPolicy(t *testing.T) {
	t.Parallel()

	_, err := New(&config.Topology{Policy: "both"})
	require.ErrorIs(t, err, ErrUnknownPolicy)
}
