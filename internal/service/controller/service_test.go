package controller

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/perimeter-alarm/internal/actuator"
	"github.com/oshokin/perimeter-alarm/internal/arming"
	"github.com/oshokin/perimeter-alarm/internal/config"
	"github.com/oshokin/perimeter-alarm/internal/dispatch"
	"github.com/oshokin/perimeter-alarm/internal/domain/alarm"
)

const appliedTopology = `
policy: pairwise
cameras:
  - id: CamBack
    host: 10.0.0.11
    detectors: ["201", "202"]
detectors:
  - id: "201"
  - id: "202"
`

// nopDispatcher drops every command.
type nopDispatcher struct{}

func (nopDispatcher) PulseCamera(context.Context, actuator.Device, time.Duration) {}

func (nopDispatcher) SetNVR(context.Context, config.NVR, alarm.NVRMode, dispatch.RetryPolicy) {}

func (nopDispatcher) PulseRelay(context.Context, time.Duration) {}

func (nopDispatcher) Notify(context.Context, config.Endpoint, alarm.BeaconAction) {}

// recordingRelay remembers relay levels.
type recordingRelay struct {
	levels []bool
}

func (r *recordingRelay) SetRelay(_ context.Context, on bool) error {
	r.levels = append(r.levels, on)
	return nil
}

func initialConfig() *config.Config {
	return &config.Config{
		ControllerID: "gate",
		Credentials:  config.Credentials{Username: "admin", Password: "secret"},
		Topology: config.Topology{
			Cameras:   []config.Camera{{ID: "CamFront", Endpoint: config.Endpoint{Host: "10.0.0.10"}}},
			Detectors: []config.Detector{{ID: "101"}},
			Rules: []config.Rule{{
				Name:      "R1",
				Type:      config.RuleAny,
				Cameras:   []string{"CamFront"},
				Detectors: []string{"101"},
			}},
		},
	}
}

func newTestService(t *testing.T, persist bool) (*service, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, config.Save(path, initialConfig()))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	machine, err := arming.New(&cfg.Topology, nopDispatcher{})
	require.NoError(t, err)
	t.Cleanup(machine.Close)

	return newService(machine, path, persist), path
}

// TestService_ApplyConfig swaps the topology and persists it.
func TestService_ApplyConfig(t *testing.T) {
	t.Parallel()

	svc, path := newTestService(t, true)

	require.NoError(t, svc.ApplyConfig(context.Background(), []byte(appliedTopology)))

	status := svc.Status()
	require.Equal(t, config.PolicyPairwise, status.Policy)
	require.Equal(t, 1, status.Cameras)
	require.Equal(t, 2, status.Detectors)

	saved, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, config.PolicyPairwise, saved.Topology.Policy)
	require.Equal(t, "CamBack", saved.Topology.Cameras[0].ID)
	require.Equal(t, "gate", saved.ControllerID)
	require.Equal(t, "secret", saved.Credentials.Password)
}

// TestService_ApplyConfig_NotPersisted leaves the file alone when persistence is off.
func TestService_ApplyConfig_NotPersisted(t *testing.T) {
	t.Parallel()

	svc, path := newTestService(t, false)

	require.NoError(t, svc.ApplyConfig(context.Background(), []byte(appliedTopology)))
	require.Equal(t, config.PolicyPairwise, svc.Status().Policy)

	saved, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, config.PolicyRules, saved.Topology.Policy)
}

// TestService_ApplyConfig_Rejected keeps the running topology on invalid input.
func TestService_ApplyConfig_Rejected(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, true)

	tests := []struct {
		name     string
		document string
	}{
		{name: "malformed", document: "cameras: {"},
		{name: "unknown reference", document: "policy: pairwise\ncameras: [{id: C, host: h, detectors: [\"9\"]}]\n"},
		{name: "rules without rules", document: "detectors: [{id: \"1\"}]\n"},
	}

	for _, tt := range tests {
		err := svc.ApplyConfig(context.Background(), []byte(tt.document))
		require.ErrorIs(t, err, config.ErrInvalidTopology, tt.name)
	}

	status := svc.Status()
	require.Equal(t, config.PolicyRules, status.Policy)
	require.Equal(t, 1, status.Rules)
}

// TestService_ApplyConfig_Closed reports a closed machine.
func TestService_ApplyConfig_Closed(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, false)
	svc.Close()

	err := svc.ApplyConfig(context.Background(), []byte(appliedTopology))
	require.ErrorIs(t, err, arming.ErrClosed)
}

// TestRelayOutput forwards to the attached output only.
func TestRelayOutput(t *testing.T) {
	t.Parallel()

	relay := new(relayOutput)
	require.ErrorIs(t, relay.SetRelay(context.Background(), true), dispatch.ErrNoRelay)

	target := new(recordingRelay)
	relay.set(target)

	require.NoError(t, relay.SetRelay(context.Background(), true))
	require.NoError(t, relay.SetRelay(context.Background(), false))
	require.Equal(t, []bool{true, false}, target.levels)
}

// TestApplyOverrides merges flags over the settings file.
func TestApplyOverrides(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{ListenAddress: "127.0.0.1:1", LogLevel: "info"}

	require.NoError(t, applyOverrides(cfg, &Options{ListenAddress: "127.0.0.1:2", DryRun: true}))
	require.Equal(t, "127.0.0.1:2", cfg.ListenAddress)
	require.True(t, cfg.DryRun)
	require.Equal(t, "info", cfg.LogLevel)

	err := applyOverrides(cfg, &Options{LogLevel: "loud"})
	require.ErrorIs(t, err, ErrUnknownLogLevel)
}

// TestRun_MissingConfig fails before anything starts.
func TestRun_MissingConfig(t *testing.T) {
	t.Parallel()

	err := Run(context.Background(), &Options{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml")})
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrUnknownLogLevel))
}
