package arming

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oshokin/perimeter-alarm/internal/actuator"
	"github.com/oshokin/perimeter-alarm/internal/config"
	"github.com/oshokin/perimeter-alarm/internal/dispatch"
	"github.com/oshokin/perimeter-alarm/internal/domain/alarm"
	"github.com/oshokin/perimeter-alarm/internal/logger"
	"github.com/oshokin/perimeter-alarm/internal/registry"
	"github.com/oshokin/perimeter-alarm/internal/rules"
	"github.com/oshokin/perimeter-alarm/internal/triggerlog"
)

// countdownTick is the countdown resolution and the upper bound of interrupt latency.
const countdownTick = time.Second

// ErrClosed is returned by operations on a closed machine.
var ErrClosed = errors.New("arming machine closed")

// Dispatcher accepts actuation commands without blocking the caller.
type Dispatcher interface {
	PulseCamera(ctx context.Context, dev actuator.Device, settle time.Duration)
	SetNVR(ctx context.Context, nvr config.NVR, mode alarm.NVRMode, policy dispatch.RetryPolicy)
	PulseRelay(ctx context.Context, duration time.Duration)
	Notify(ctx context.Context, endpoint config.Endpoint, action alarm.BeaconAction)
}

// Machine is the arming state machine.
// All state below mu is only touched with mu held.
type Machine struct {
	dispatcher Dispatcher

	mu       sync.Mutex
	mode     alarm.Mode
	since    time.Time
	topology *config.Topology
	registry *registry.Registry
	engine   *rules.Engine
	triggers *triggerlog.Log
	incident *alarm.Incident
	closed   bool

	// generation identifies the live countdown; stale goroutines compare and quit.
	generation    uint64
	stopCountdown chan struct{}
	countdownEnds time.Time

	wg sync.WaitGroup
}

// New builds a DISARMED machine for a validated topology.
func New(topology *config.Topology, dispatcher Dispatcher) (*Machine, error) {
	reg, engine, err := build(topology)
	if err != nil {
		return nil, err
	}

	return &Machine{
		dispatcher: dispatcher,
		mode:       alarm.ModeDisarmed,
		since:      time.Now(),
		topology:   topology,
		registry:   reg,
		engine:     engine,
		triggers:   triggerlog.New(),
	}, nil
}

func build(topology *config.Topology) (*registry.Registry, *rules.Engine, error) {
	reg, err := registry.New(topology)
	if err != nil {
		return nil, nil, fmt.Errorf("build registry: %w", err)
	}

	engine, err := rules.New(topology)
	if err != nil {
		return nil, nil, fmt.Errorf("build rule engine: %w", err)
	}

	return reg, engine, nil
}

// Start applies the physical arm switch level read at startup.
// A closed switch arms immediately without a countdown.
func (m *Machine) Start(ctx context.Context, switchClosed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !switchClosed {
		logger.Info(ctx, "Arm switch open at startup, staying disarmed")
		m.notifyLocked(ctx, alarm.BeaconIdle)

		return
	}

	logger.Info(ctx, "Arm switch closed at startup, arming without countdown")
	m.triggers.Reset()
	m.enterArmedLocked(ctx)
}

// Arm requests DISARMED -> ARMING. It reports whether the mode changed.
func (m *Machine) Arm(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		logger.Warn(ctx, "Arm request ignored, controller is shutting down")

		return false
	}

	if m.mode != alarm.ModeDisarmed {
		logger.InfoKV(ctx, "Arm request ignored", "mode", m.mode)

		return false
	}

	m.armLocked(ctx)

	return true
}

// Disarm requests ARMING or ARMED -> DISARMED. It reports whether the mode changed.
func (m *Machine) Disarm(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.mode {
	case alarm.ModeArming:
		m.interruptCountdownLocked()
		m.setModeLocked(ctx, alarm.ModeDisarmed)
		m.registry.SetInterest(true)
		logger.Info(ctx, "Countdown interrupted")
	case alarm.ModeArmed:
		m.leaveArmedLocked(ctx)
	default:
		logger.InfoKV(ctx, "Disarm request ignored", "mode", m.mode)

		return false
	}

	return true
}

// Reset forces DISARMED from any mode and re-enables edge delivery.
// It returns the mode the machine was in.
func (m *Machine) Reset(ctx context.Context) alarm.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous := m.mode

	switch previous {
	case alarm.ModeArmed:
		m.leaveArmedLocked(ctx)
	case alarm.ModeArming:
		m.interruptCountdownLocked()
	}

	m.triggers.Reset()
	m.setModeLocked(ctx, alarm.ModeDisarmed)
	m.registry.SetInterest(!m.closed)

	logger.InfoKV(ctx, "Controller reset", "previous_mode", previous)

	return previous
}

// Apply atomically swaps the topology, rules and policy.
// The mode survives; a running countdown is interrupted and restarted
// against the new topology. Recorded triggers are discarded.
func (m *Machine) Apply(ctx context.Context, topology *config.Topology) error {
	reg, engine, err := build(topology)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	restart := m.mode == alarm.ModeArming
	if restart {
		m.interruptCountdownLocked()
		m.setModeLocked(ctx, alarm.ModeDisarmed)
	}

	m.topology = topology
	m.registry = reg
	m.engine = engine
	m.triggers = triggerlog.New()

	logger.InfoKV(ctx, "Configuration applied",
		"policy", engine.Policy(),
		"cameras", len(topology.Cameras),
		"detectors", len(topology.Detectors),
		"rules", engine.RuleCount(),
		"restart_countdown", restart,
	)

	if restart {
		m.armLocked(ctx)
	}

	return nil
}

// Status returns a snapshot of the machine.
func (m *Machine) Status() *alarm.Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := &alarm.Status{
		Mode:         m.mode,
		Since:        m.since,
		Policy:       m.engine.Policy(),
		Cameras:      len(m.registry.Cameras()),
		Detectors:    len(m.registry.Detectors()),
		Rules:        m.engine.RuleCount(),
		LastIncident: m.incident.Clone(),
	}

	if m.mode == alarm.ModeArming {
		status.CountdownRemaining = max(time.Until(m.countdownEnds), 0)
	}

	return status
}

// Mode returns the current mode.
func (m *Machine) Mode() alarm.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.mode
}

// Controls returns the physical control bindings of the active topology.
func (m *Machine) Controls() config.Controls {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.topology.Controls
}

// Close stops the countdown and disables edge delivery.
// Commands already handed to the dispatcher are not affected.
func (m *Machine) Close() {
	m.mu.Lock()
	m.closed = true
	m.interruptCountdownLocked()
	m.registry.SetInterest(false)
	m.mu.Unlock()

	m.wg.Wait()
}

// armLocked enters ARMING and starts the countdown.
func (m *Machine) armLocked(ctx context.Context) {
	m.registry.SetInterest(false)
	m.triggers.Reset()
	m.setModeLocked(ctx, alarm.ModeArming)
	m.notifyLocked(ctx, alarm.BeaconArming)

	ticks := m.topology.CountdownDuration
	if ticks == 0 {
		m.enterArmedLocked(ctx)

		return
	}

	m.generation++
	stop := make(chan struct{})
	m.stopCountdown = stop
	m.countdownEnds = time.Now().Add(time.Duration(ticks) * countdownTick)

	m.wg.Add(1)

	go m.countdown(context.WithoutCancel(ctx), m.generation, ticks, stop)

	logger.InfoKV(ctx, "Countdown started", "seconds", ticks)
}

// countdown waits the given number of ticks, checking for interruption on each one.
func (m *Machine) countdown(ctx context.Context, generation uint64, ticks int, stop <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(countdownTick)
	defer ticker.Stop()

	for remaining := ticks; remaining > 0; {
		select {
		case <-stop:
			return
		case <-ticker.C:
			remaining--
			logger.DebugKV(ctx, "Countdown tick", "remaining", remaining)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation != generation || m.mode != alarm.ModeArming {
		return
	}

	m.stopCountdown = nil
	m.enterArmedLocked(ctx)
}

func (m *Machine) interruptCountdownLocked() {
	if m.stopCountdown == nil {
		return
	}

	close(m.stopCountdown)
	m.stopCountdown = nil
	m.generation++
}

// enterArmedLocked performs the ARMING -> ARMED side effects.
func (m *Machine) enterArmedLocked(ctx context.Context) {
	m.setModeLocked(ctx, alarm.ModeArmed)
	m.registry.SetInterest(true)
	m.commandNVRsLocked(ctx, alarm.NVRArm)
	m.notifyLocked(ctx, alarm.BeaconArmed)
}

// leaveArmedLocked performs the ARMED -> DISARMED side effects.
func (m *Machine) leaveArmedLocked(ctx context.Context) {
	m.setModeLocked(ctx, alarm.ModeDisarmed)
	m.triggers.Reset()
	m.commandNVRsLocked(ctx, alarm.NVRDisarm)
	m.notifyLocked(ctx, alarm.BeaconDisarm)
}

func (m *Machine) setModeLocked(ctx context.Context, mode alarm.Mode) {
	if m.mode == mode {
		return
	}

	logger.InfoKV(ctx, "Mode changed", "from", m.mode, "to", mode)

	m.mode = mode
	m.since = time.Now()
}

func (m *Machine) commandNVRsLocked(ctx context.Context, mode alarm.NVRMode) {
	policy := dispatch.PolicyFrom(m.topology.Retry)

	for _, nvr := range m.registry.NVRs() {
		m.dispatcher.SetNVR(ctx, nvr, mode, policy)
	}
}

// notifyLocked sends a beacon action; actions without an endpoint are skipped.
func (m *Machine) notifyLocked(ctx context.Context, action alarm.BeaconAction) {
	endpoint, ok := m.registry.BeaconEndpoint(string(action))
	if !ok {
		logger.WarnKV(ctx, "Beacon action not configured", "action", action)

		return
	}

	m.dispatcher.Notify(ctx, endpoint, action)
}
