package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/oshokin/perimeter-alarm/internal/actuator"
	"github.com/oshokin/perimeter-alarm/internal/config"
	"github.com/oshokin/perimeter-alarm/internal/domain/alarm"
	"github.com/oshokin/perimeter-alarm/internal/logger"
)

// Camera alarm-input parameter and the two states of a pulse.
const (
	CameraAlarmParameter = "Alarm[0].SensorType"
	CameraStateAlarm     = "NO"
	CameraStateNormal    = "NC"
)

// relayReleaseTimeout bounds switching the relay off after a canceled pulse.
const relayReleaseTimeout = 2 * time.Second

// ErrNoRelay is logged when a rule pulses a relay that is not wired.
var ErrNoRelay = errors.New("relay output not available")

// Actuator is the HTTP control-plane collaborator.
type Actuator interface {
	SetState(ctx context.Context, dev actuator.Device, parameter, value string) error
	ProbeReachable(ctx context.Context, dev actuator.Device) bool
	Notify(ctx context.Context, dev actuator.Device, action alarm.BeaconAction) error
}

// Relay drives the auxiliary relay output.
type Relay interface {
	SetRelay(ctx context.Context, on bool) error
}

// Stats counts command outcomes.
type Stats struct {
	Succeeded uint64
	Failed    uint64
	Abandoned uint64
	// Superseded counts NVR commands canceled by a newer command for the same NVR.
	Superseded uint64
}

// Dispatcher runs actuator commands on background goroutines.
type Dispatcher struct {
	actuator Actuator
	relay    Relay
	dryRun   bool
	sem      *semaphore.Weighted

	// ctx outlives the requests that submit commands and ends on Close.
	ctx    context.Context //nolint:containedctx // Lifetime of background commands.
	cancel context.CancelFunc
	wg     sync.WaitGroup
	// mu orders wg.Add against Close and guards nvrs.
	mu     sync.Mutex
	closed bool
	// nvrs holds the latest command per NVR id.
	nvrs map[string]*inflight

	succeeded  atomic.Uint64
	failed     atomic.Uint64
	abandoned  atomic.Uint64
	superseded atomic.Uint64
}

// inflight is a command that a newer one for the same device replaces.
type inflight struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDryRun logs camera and NVR commands instead of sending them.
func WithDryRun(dryRun bool) Option {
	return func(d *Dispatcher) {
		d.dryRun = dryRun
	}
}

// WithRelay wires the auxiliary relay output.
func WithRelay(r Relay) Option {
	return func(d *Dispatcher) {
		d.relay = r
	}
}

// WithMaxConcurrent bounds commands touching the network at once.
func WithMaxConcurrent(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// New creates a dispatcher whose commands live until Close.
func New(ctx context.Context, act Actuator, opts ...Option) *Dispatcher {
	base, cancel := context.WithCancel(context.WithoutCancel(ctx))

	d := &Dispatcher{
		actuator: act,
		sem:      semaphore.NewWeighted(config.DefaultMaxConcurrentActuations),
		ctx:      base,
		cancel:   cancel,
		nvrs:     make(map[string]*inflight),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// PulseCamera sets the camera alarm input, waits settle and restores it.
// Failures are logged; there is no retry.
func (d *Dispatcher) PulseCamera(ctx context.Context, dev actuator.Device, settle time.Duration) {
	d.submit(ctx, "camera-pulse", dev.ID, func(ctx context.Context) error {
		if d.dryRun {
			logger.InfoKV(ctx, "Dry run, camera alarm not sent", "settle", settle)
			return nil
		}

		setErr := d.withSlot(ctx, func(ctx context.Context) error {
			return d.actuator.SetState(ctx, dev, CameraAlarmParameter, CameraStateAlarm)
		})

		timer := time.NewTimer(settle)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}

		// Restore even after a failed set so the input never stays latched.
		restoreErr := d.withSlot(context.WithoutCancel(ctx), func(ctx context.Context) error {
			restoreCtx, cancel := context.WithTimeout(ctx, relayReleaseTimeout)
			defer cancel()

			return d.actuator.SetState(restoreCtx, dev, CameraAlarmParameter, CameraStateNormal)
		})

		return errors.Join(setErr, restoreErr)
	})
}

// SetNVR writes the mode's input/value to the NVR, probing and retrying per policy.
// A newer command for the same NVR cancels this one and starts once it has returned,
// so the last requested mode is the one the NVR ends up in.
func (d *Dispatcher) SetNVR(ctx context.Context, nvr config.NVR, mode alarm.NVRMode, policy RetryPolicy) {
	action := nvr.Arm
	if mode == alarm.NVRDisarm {
		action = nvr.Disarm
	}

	dev := actuator.Device{ID: nvr.ID, Endpoint: nvr.Endpoint}

	ctx = logger.WithFields(ctx, "mode", mode, "input", action.Input, "value", action.Value)

	d.start(ctx, "nvr-"+string(mode), nvr.ID, nvr.ID, func(ctx context.Context) error {
		if d.dryRun {
			logger.Info(ctx, "Dry run, NVR command not sent")
			return nil
		}

		// The slot covers one attempt; backoff waits hold none.
		return retry(ctx, policy, func(ctx context.Context, _ int) error {
			return d.withSlot(ctx, func(ctx context.Context) error {
				if !d.actuator.ProbeReachable(ctx, dev) {
					return ErrUnreachable
				}

				return d.actuator.SetState(ctx, dev, action.Input, action.Value)
			})
		})
	})
}

// PulseRelay closes the auxiliary relay for duration.
func (d *Dispatcher) PulseRelay(ctx context.Context, duration time.Duration) {
	d.submit(ctx, "relay-pulse", "relay", func(ctx context.Context) error {
		if d.relay == nil {
			return ErrNoRelay
		}

		err := d.withSlot(ctx, func(ctx context.Context) error {
			return d.relay.SetRelay(ctx, true)
		})
		if err != nil {
			return fmt.Errorf("relay on: %w", err)
		}

		timer := time.NewTimer(duration)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}

		err = d.withSlot(context.WithoutCancel(ctx), func(ctx context.Context) error {
			offCtx, cancel := context.WithTimeout(ctx, relayReleaseTimeout)
			defer cancel()

			return d.relay.SetRelay(offCtx, false)
		})
		if err != nil {
			return fmt.Errorf("relay off: %w", err)
		}

		return nil
	})
}

// Notify sends an action to the beacon at endpoint.
func (d *Dispatcher) Notify(ctx context.Context, endpoint config.Endpoint, action alarm.BeaconAction) {
	dev := actuator.Device{ID: "beacon", Endpoint: endpoint}

	d.submit(ctx, "beacon-"+string(action), dev.ID, func(ctx context.Context) error {
		return d.withSlot(ctx, func(ctx context.Context) error {
			return d.actuator.Notify(ctx, dev, action)
		})
	})
}

// Stats returns command outcome counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Succeeded:  d.succeeded.Load(),
		Failed:     d.failed.Load(),
		Abandoned:  d.abandoned.Load(),
		Superseded: d.superseded.Load(),
	}
}

// Close cancels pending waits and retries, then waits for commands to
// return or for ctx to end, whichever comes first.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.cancel()
	d.mu.Unlock()

	done := make(chan struct{})

	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain actuations: %w", ctx.Err())
	}
}

// submit runs fn on a background goroutine bound to the dispatcher lifetime.
// The caller's logger and fields travel with the command.
func (d *Dispatcher) submit(ctx context.Context, kind, device string, fn func(ctx context.Context) error) {
	d.start(ctx, kind, device, "", fn)
}

// start is submit with an optional replace key: a command started with a key
// cancels the previous command with the same key and waits for it to return.
func (d *Dispatcher) start(ctx context.Context, kind, device, key string, fn func(ctx context.Context) error) {
	execCtx := logger.ToContext(d.ctx, logger.FromContext(ctx))
	execCtx = logger.WithFields(execCtx, "command", kind, "command_id", uuid.NewString(), "device", device)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		logger.WarnKV(execCtx, "Dispatcher closed, command dropped")
		d.abandoned.Add(1)

		return
	}

	var previous, current *inflight

	cmdCtx, cancel := context.WithCancel(execCtx)

	if key != "" {
		previous = d.nvrs[key]
		if previous != nil {
			previous.cancel()
		}

		current = &inflight{cancel: cancel, done: make(chan struct{})}
		d.nvrs[key] = current
	}

	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer cancel()

		if current != nil {
			defer func() {
				d.mu.Lock()
				if d.nvrs[key] == current {
					delete(d.nvrs, key)
				}
				d.mu.Unlock()

				close(current.done)
			}()
		}

		err := d.run(cmdCtx, previous, fn)

		switch {
		case err == nil:
			d.succeeded.Add(1)
			logger.DebugKV(execCtx, "Command completed")
		case d.ctx.Err() != nil:
			d.abandoned.Add(1)
			logger.WarnKV(execCtx, "Command abandoned on shutdown", "error", err)
		case cmdCtx.Err() != nil:
			d.superseded.Add(1)
			logger.InfoKV(execCtx, "Command superseded by a newer one", "error", err)
		default:
			d.failed.Add(1)
			logger.ErrorKV(execCtx, "Command failed", "error", err)
		}
	}()
}

// run waits for the command being replaced, then calls fn.
func (d *Dispatcher) run(ctx context.Context, previous *inflight, fn func(ctx context.Context) error) error {
	if previous != nil {
		select {
		case <-previous.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fn(ctx)
}

// withSlot runs one network call under the concurrency limit.
func (d *Dispatcher) withSlot(ctx context.Context, call func(ctx context.Context) error) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for slot: %w", err)
	}
	defer d.sem.Release(1)

	return call(ctx)
}
