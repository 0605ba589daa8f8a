package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/perimeter-alarm/internal/config"
)

func pin(n int) *int { return &n }

func testTopology() *config.Topology {
	return &config.Topology{
		Controls: config.Controls{ArmSwitchPin: pin(5), ResetPin: pin(6)},
		Cameras: []config.Camera{
			{ID: "CamFront", Pin: pin(17), Endpoint: config.Endpoint{Host: "10.0.0.10"}, Detectors: []string{"101"}},
			{ID: "CamBack", Pin: pin(18), Endpoint: config.Endpoint{Host: "10.0.0.11"}},
		},
		Detectors: []config.Detector{
			{ID: "101", Name: "Back door", Pin: pin(27), Cameras: []string{"CamFront", "CamBack"}},
		},
		Beacon: map[string]config.Endpoint{"intrusion": {Host: "10.0.0.50"}},
	}
}

// TestNew_BuildsLookups checks id, pin and control lookups.
func TestNew_BuildsLookups(t *testing.T) {
	t.Parallel()

	r, err := New(testTopology())
	require.NoError(t, err)

	s, ok := r.Sensor("101")
	require.True(t, ok)
	require.Equal(t, KindDetector, s.Kind)
	require.Equal(t, []string{"CamFront", "CamBack"}, s.Associated)

	s, ok = r.ByPin(18)
	require.True(t, ok)
	require.Equal(t, "CamBack", s.ID)

	require.Equal(t, ControlArmSwitch, r.ControlAt(5))
	require.Equal(t, ControlReset, r.ControlAt(6))
	require.Equal(t, ControlNone, r.ControlAt(17))

	require.Equal(t, []string{"CamFront", "CamBack", "101"}, r.SensorIDs())

	_, ok = r.BeaconEndpoint("intrusion")
	require.True(t, ok)
	_, ok = r.BeaconEndpoint("armed")
	require.False(t, ok)
}

// TestNew_RejectsUnknownAssociation ensures dangling references fail the build.
func TestNew_RejectsUnknownAssociation(t *testing.T) {
	t.Parallel()

	topo := testTopology()
	topo.Detectors[0].Cameras = []string{"CamSide"}

	_, err := New(topo)
	require.ErrorIs(t, err, ErrUnknownSensor)
}

// TestInterest toggles edge delivery for all sensors.
func TestInterest(t *testing.T) {
	t.Parallel()

	r, err := New(testTopology())
	require.NoError(t, err)
	require.True(t, r.Interested("CamFront"))

	r.SetInterest(false)
	require.False(t, r.Interested("CamFront"))
	require.False(t, r.Interested("101"))

	r.SetInterest(true)
	require.True(t, r.Interested("101"))
	require.False(t, r.Interested("nope"))
}
