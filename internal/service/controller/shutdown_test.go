package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/perimeter-alarm/internal/actuator"
	"github.com/oshokin/perimeter-alarm/internal/dispatch"
	"github.com/oshokin/perimeter-alarm/internal/domain/alarm"
)

var errLinkClosed = errors.New("link closed")

type nopActuator struct{}

func (nopActuator) SetState(context.Context, actuator.Device, string, string) error { return nil }

func (nopActuator) ProbeReachable(context.Context, actuator.Device) bool { return true }

func (nopActuator) Notify(context.Context, actuator.Device, alarm.BeaconAction) error { return nil }

// fakeLink publishes relay levels until it is closed.
type fakeLink struct {
	mu     sync.Mutex
	closed bool
	levels []bool
	events *[]string
}

func (l *fakeLink) SetRelay(_ context.Context, on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errLinkClosed
	}

	l.levels = append(l.levels, on)
	*l.events = append(*l.events, "relay")

	return nil
}

func (l *fakeLink) Close(context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	*l.events = append(*l.events, "link")
}

type machineFunc func()

func (f machineFunc) Close() { f() }

// TestShutdown_ReleasesRelayBeforeDisconnect switches a pulsing relay off while MQTT is still up.
func TestShutdown_ReleasesRelayBeforeDisconnect(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var events []string

		link := &fakeLink{events: &events}

		relay := new(relayOutput)
		relay.set(link)

		disp := dispatch.New(context.Background(), nopActuator{}, dispatch.WithRelay(relay))
		disp.PulseRelay(context.Background(), time.Hour)
		synctest.Wait()

		machine := machineFunc(func() {
			link.mu.Lock()
			defer link.mu.Unlock()

			events = append(events, "machine")
		})

		shutdown(context.Background(), machine, disp, link)

		require.Equal(t, []bool{true, false}, link.levels)
		require.Equal(t, []string{"relay", "machine", "relay", "link"}, events)
		require.Equal(t, dispatch.Stats{Succeeded: 1}, disp.Stats())
	})
}

// TestShutdown_WithoutLink covers a controller running without a broker.
func TestShutdown_WithoutLink(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		closed := false

		disp := dispatch.New(context.Background(), nopActuator{})
		shutdown(context.Background(), machineFunc(func() { closed = true }), disp, nil)

		require.True(t, closed)
		require.Equal(t, dispatch.Stats{}, disp.Stats())
	})
}
