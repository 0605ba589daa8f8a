package triggerlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestRecent checks the window boundaries.
func TestRecent(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	threshold := 5 * time.Minute

	l := New()
	require.False(t, l.Recent("CamFront", base, threshold))

	l.Record("CamFront", base)

	cases := []struct {
		name   string
		offset time.Duration
		want   bool
	}{
		{"same instant", 0, true},
		{"inside window", 200 * time.Second, true},
		{"on the boundary", 300 * time.Second, true},
		{"outside window", 400 * time.Second, false},
		{"clock behind trigger", -time.Second, true},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, l.Recent("CamFront", base.Add(tc.offset), threshold), tc.name)
	}
}

// TestCorrelated checks the pairwise distance in both directions.
func TestCorrelated(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	l := New()
	l.Record("CamFront", base)
	require.False(t, l.Correlated("CamFront", "101", time.Minute))

	l.Record("101", base.Add(-30*time.Second))
	require.True(t, l.Correlated("CamFront", "101", time.Minute))
	require.True(t, l.Correlated("101", "CamFront", time.Minute))

	l.Record("101", base.Add(2*time.Minute))
	require.False(t, l.Correlated("CamFront", "101", time.Minute))
}

// TestClearAndReset verifies that timestamps can be consumed.
func TestClearAndReset(t *testing.T) {
	t.Parallel()

	now := time.Now()

	l := New()
	l.Record("a", now)
	l.Record("b", now)
	require.Equal(t, 2, l.Len())

	l.Clear("a")
	_, ok := l.Last("a")
	require.False(t, ok)

	ts, ok := l.Last("b")
	require.True(t, ok)
	require.Equal(t, now, ts)

	l.Reset()
	require.Zero(t, l.Len())
}
