package alarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestModeString verifies the wire names of the modes.
func TestModeString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "disarmed", ModeDisarmed.String())
	require.Equal(t, "arming", ModeArming.String())
	require.Equal(t, "armed", ModeArmed.String())
	require.Equal(t, "mode(7)", Mode(7).String())

	for _, m := range []Mode{ModeDisarmed, ModeArming, ModeArmed} {
		parsed, ok := ParseMode(m.String())
		require.True(t, ok)
		require.Equal(t, m, parsed)
	}

	_, ok := ParseMode("mode(7)")
	require.False(t, ok)
}

// TestActorClone verifies that Clone returns a deep copy and handles nil safely.
func TestActorClone(t *testing.T) {
	t.Parallel()

	require.Nil(t, (*Actor)(nil).Clone())
	require.Equal(t, "unknown", (*Actor)(nil).String())

	a := &Actor{Hostname: "guardhouse", Username: "o.shokin"}
	b := a.Clone()

	require.Equal(t, a, b)
	require.NotSame(t, a, b)
	require.Equal(t, "o.shokin@guardhouse", b.String())
}

// TestStatusClone verifies that Clone deep-copies the last incident.
func TestStatusClone(t *testing.T) {
	t.Parallel()

	require.Nil(t, (*Status)(nil).Clone())

	s := &Status{
		Mode:  ModeArmed,
		Since: time.Now().UTC().Truncate(time.Second),
		LastIncident: &Incident{
			ID:      "incident-1",
			Rule:    "front",
			Cameras: []string{"CamFront"},
		},
	}

	c := s.Clone()
	require.Equal(t, s, c)
	require.NotSame(t, s.LastIncident, c.LastIncident)

	c.LastIncident.Cameras[0] = "changed"
	require.Equal(t, "CamFront", s.LastIncident.Cameras[0])
}

// TestParseEdgeType checks wire values for edges.
func TestParseEdgeType(t *testing.T) {
	t.Parallel()

	e, ok := ParseEdgeType("pressed")
	require.True(t, ok)
	require.Equal(t, EdgePressed, e)

	e, ok = ParseEdgeType("0")
	require.True(t, ok)
	require.Equal(t, EdgeReleased, e)

	e, ok = ParseEdgeType("held")
	require.True(t, ok)
	require.Equal(t, EdgeHeld, e)
	require.Equal(t, "held", e.String())

	_, ok = ParseEdgeType("bogus")
	require.False(t, ok)
}
