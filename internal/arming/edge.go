package arming

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/perimeter-alarm/internal/actuator"
	"github.com/oshokin/perimeter-alarm/internal/domain/alarm"
	"github.com/oshokin/perimeter-alarm/internal/logger"
	"github.com/oshokin/perimeter-alarm/internal/registry"
	"github.com/oshokin/perimeter-alarm/internal/rules"
)

// HandleEdge processes one raw sensor edge and returns the intrusions it confirmed.
// Edges from unknown sensors are rejected; released edges, edges from sensors
// without interest and edges outside ARMED are dropped without being recorded.
func (m *Machine) HandleEdge(ctx context.Context, edge alarm.Edge) ([]*alarm.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx = logger.WithFields(ctx, "sensor", edge.SensorID, "edge", edge.Type)

	sensor, ok := m.registry.Sensor(edge.SensorID)
	if !ok {
		logger.Warn(ctx, "Edge from unknown sensor")

		return nil, fmt.Errorf("%w: %q", registry.ErrUnknownSensor, edge.SensorID)
	}

	if edge.Type != alarm.EdgePressed {
		return nil, nil
	}

	if !m.registry.Interested(sensor.ID) || m.mode != alarm.ModeArmed {
		logger.DebugKV(ctx, "Edge dropped", "mode", m.mode)

		return nil, nil
	}

	now := edge.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	m.triggers.Record(sensor.ID, now)
	logger.InfoKV(ctx, "Trigger recorded", "kind", sensor.Kind, "name", sensor.Name)

	decisions := m.engine.Evaluate(now, m.registry, m.triggers)
	if len(decisions) == 0 {
		return nil, nil
	}

	incidents := make([]*alarm.Incident, 0, len(decisions))
	for _, d := range decisions {
		incidents = append(incidents, m.confirmLocked(ctx, d, now))
	}

	return incidents, nil
}

// confirmLocked issues the actuations of one decision.
func (m *Machine) confirmLocked(ctx context.Context, d rules.Decision, now time.Time) *alarm.Incident {
	incident := &alarm.Incident{
		ID:          uuid.NewString(),
		Rule:        d.Rule,
		Cameras:     d.Cameras,
		Detectors:   d.Detectors,
		ConfirmedAt: now,
	}

	ctx = logger.WithFields(ctx, "incident_id", incident.ID, "rule", incident.Rule)
	logger.WarnKV(ctx, "Intrusion confirmed", "cameras", incident.Cameras, "detectors", incident.Detectors)

	for _, id := range d.Cameras {
		camera, ok := m.registry.Sensor(id)
		if !ok || camera.Kind != registry.KindCamera {
			logger.WarnKV(ctx, "Cannot pulse unknown camera", "camera", id)

			continue
		}

		m.dispatcher.PulseCamera(ctx, actuator.Device{ID: camera.ID, Endpoint: camera.Endpoint}, m.topology.SettleDelay)
	}

	if d.RelayDuration > 0 {
		m.dispatcher.PulseRelay(ctx, d.RelayDuration)
	}

	m.notifyLocked(ctx, alarm.BeaconIntrusion)

	m.incident = incident

	return incident.Clone()
}

// HandleControl maps a physical control transition to a request.
// The arm switch is level-triggered; the reset button acts on a long hold.
func (m *Machine) HandleControl(ctx context.Context, control registry.Control, edge alarm.EdgeType) {
	switch control {
	case registry.ControlArmSwitch:
		switch edge {
		case alarm.EdgePressed:
			m.Arm(ctx)
		case alarm.EdgeReleased:
			m.Disarm(ctx)
		}
	case registry.ControlReset:
		if edge == alarm.EdgeHeld {
			m.Reset(ctx)
		}
	}
}

// Resolve maps an input pin to a sensor id or a control.
func (m *Machine) Resolve(pin int) (string, registry.Control, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if control := m.registry.ControlAt(pin); control != registry.ControlNone {
		return "", control, true
	}

	if sensor, ok := m.registry.ByPin(pin); ok {
		return sensor.ID, registry.ControlNone, true
	}

	return "", registry.ControlNone, false
}

// LastTriggered returns the recorded trigger time of a sensor.
func (m *Machine) LastTriggered(id string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.triggers.Last(id)
}
