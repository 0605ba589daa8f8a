package mqtt

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/oshokin/perimeter-alarm/internal/config"
	"github.com/oshokin/perimeter-alarm/internal/domain/alarm"
	"github.com/oshokin/perimeter-alarm/internal/logger"
	"github.com/oshokin/perimeter-alarm/internal/registry"
)

// Machine is the part of the arming machine fed by the bridge.
type Machine interface {
	HandleEdge(ctx context.Context, edge alarm.Edge) ([]*alarm.Incident, error)
	HandleControl(ctx context.Context, control registry.Control, edge alarm.EdgeType)
	Resolve(pin int) (string, registry.Control, bool)
	Controls() config.Controls
}

// ConfigHandler applies a topology document received on the config topic.
type ConfigHandler func(ctx context.Context, payload []byte) error

// Bridge routes broker messages to the machine and drives the relay output.
type Bridge struct {
	ctx      context.Context //nolint:containedctx // Message callbacks have no context of their own.
	client   paho.Client
	topics   Topics
	timeout  time.Duration
	machine  Machine
	onConfig ConfigHandler
	reset    *holdDetector

	mu         sync.Mutex
	subscribed bool
	// lastConfig is the last document seen on the config topic.
	lastConfig []byte
}

func newBridge(
	ctx context.Context,
	client paho.Client,
	topics Topics,
	timeout time.Duration,
	m Machine,
	onConfig ConfigHandler,
) *Bridge {
	b := &Bridge{
		ctx:      ctx,
		client:   client,
		topics:   topics,
		timeout:  timeout,
		machine:  m,
		onConfig: onConfig,
	}

	b.reset = newHoldDetector(ResetHoldTime, func() {
		logger.Info(b.ctx, "Reset button held")
		b.machine.HandleControl(b.ctx, registry.ControlReset, alarm.EdgeHeld)
	})

	return b
}

// Topics returns the bridge's topic set.
func (b *Bridge) Topics() Topics {
	return b.topics
}

// ProbeSwitch reads the retained arm switch level.
// It reports false when no switch is bound or no level arrives within timeout.
func (b *Bridge) ProbeSwitch(ctx context.Context, timeout time.Duration) (bool, error) {
	pin := b.machine.Controls().ArmSwitchPin
	if pin == nil {
		return false, nil
	}

	topic := b.topics.Pin(*pin)
	levels := make(chan []byte, 1)

	token := b.client.Subscribe(topic, qosAtLeastOnce, func(_ paho.Client, msg paho.Message) {
		select {
		case levels <- msg.Payload():
		default:
		}
	})
	if err := wait(ctx, token, b.timeout); err != nil {
		return false, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	defer func() {
		if err := wait(ctx, b.client.Unsubscribe(topic), b.timeout); err != nil {
			logger.WarnKV(ctx, "Failed to unsubscribe from arm switch probe", "topic", topic, "error", err)
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-levels:
		edge, _, err := parseEdge(payload, time.Now())
		if err != nil {
			return false, fmt.Errorf("arm switch level: %w", err)
		}

		return edge == alarm.EdgePressed, nil
	case <-timer.C:
		logger.WarnKV(ctx, "No retained arm switch level, assuming open", "topic", topic)

		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Subscribe starts live delivery of inputs and configuration.
func (b *Bridge) Subscribe(ctx context.Context) error {
	if err := wait(ctx, b.client.SubscribeMultiple(b.filters(), b.route), b.timeout); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	b.mu.Lock()
	b.subscribed = true
	b.mu.Unlock()

	logger.InfoKV(ctx, "Subscribed to inputs", "pins", b.topics.Pins(), "sensors", b.topics.Sensors(), "config", b.topics.Config())

	return nil
}

// SetRelay publishes the relay level. It implements dispatch.Relay.
func (b *Bridge) SetRelay(ctx context.Context, on bool) error {
	token := b.client.Publish(b.topics.Relay(), qosAtLeastOnce, true, relayPayload(on))
	if err := wait(ctx, token, b.timeout); err != nil {
		return fmt.Errorf("publish %s: %w", b.topics.Relay(), err)
	}

	return nil
}

// Close stops input delivery and disconnects from the broker.
func (b *Bridge) Close(ctx context.Context) {
	b.reset.release()

	b.mu.Lock()
	subscribed := b.subscribed
	b.subscribed = false
	b.mu.Unlock()

	if subscribed {
		topics := make([]string, 0, 3)
		for topic := range b.filters() {
			topics = append(topics, topic)
		}

		if err := wait(ctx, b.client.Unsubscribe(topics...), b.timeout); err != nil {
			logger.WarnKV(ctx, "Failed to unsubscribe", "error", err)
		}
	}

	b.client.Disconnect(disconnectQuiesce)
	logger.Info(ctx, "Disconnected from MQTT broker")
}

func (b *Bridge) filters() map[string]byte {
	return map[string]byte{
		b.topics.Pins():    qosAtLeastOnce,
		b.topics.Sensors(): qosAtLeastOnce,
		b.topics.Config():  qosAtLeastOnce,
	}
}

// onConnect restores subscriptions after a reconnect with a clean session.
func (b *Bridge) onConnect() {
	b.mu.Lock()
	subscribed := b.subscribed
	b.mu.Unlock()

	if !subscribed {
		return
	}

	if err := wait(b.ctx, b.client.SubscribeMultiple(b.filters(), b.route), b.timeout); err != nil {
		logger.ErrorKV(b.ctx, "Failed to resubscribe after reconnect", "error", err)

		return
	}

	logger.Info(b.ctx, "Resubscribed after reconnect")
}

// route dispatches one message by topic.
func (b *Bridge) route(_ paho.Client, msg paho.Message) {
	ctx := logger.WithKV(b.ctx, "topic", msg.Topic())

	if msg.Topic() == b.topics.Config() {
		if b.replayed(msg) {
			logger.Debug(ctx, "Retained configuration already seen, ignored")

			return
		}

		b.handleConfig(ctx, msg.Payload())

		return
	}

	if msg.Retained() {
		logger.Debug(ctx, "Retained input ignored")

		return
	}

	if pin, ok := b.topics.ParsePin(msg.Topic()); ok {
		b.handlePin(ctx, pin, msg.Payload())

		return
	}

	if id, ok := b.topics.ParseSensor(msg.Topic()); ok {
		b.handleSensor(ctx, id, msg.Payload())

		return
	}

	logger.Warn(ctx, "Message on unexpected topic")
}

func (b *Bridge) handlePin(ctx context.Context, pin int, payload []byte) {
	edge, ts, err := parseEdge(payload, time.Now())
	if err != nil {
		logger.WarnKV(ctx, "Invalid input message", "error", err)

		return
	}

	sensorID, control, ok := b.machine.Resolve(pin)
	if !ok {
		logger.WarnKV(ctx, "Input on unbound pin", "pin", pin)

		return
	}

	if control != registry.ControlNone {
		b.handleControl(ctx, control, edge)

		return
	}

	b.deliver(ctx, alarm.Edge{SensorID: sensorID, Type: edge, Timestamp: ts})
}

func (b *Bridge) handleSensor(ctx context.Context, id string, payload []byte) {
	edge, ts, err := parseEdge(payload, time.Now())
	if err != nil {
		logger.WarnKV(ctx, "Invalid input message", "error", err)

		return
	}

	b.deliver(ctx, alarm.Edge{SensorID: id, Type: edge, Timestamp: ts})
}

// handleControl feeds physical controls; the reset button is timed here.
func (b *Bridge) handleControl(ctx context.Context, control registry.Control, edge alarm.EdgeType) {
	if control != registry.ControlReset {
		b.machine.HandleControl(ctx, control, edge)

		return
	}

	switch edge {
	case alarm.EdgePressed:
		b.reset.press()
	case alarm.EdgeReleased:
		b.reset.release()
	case alarm.EdgeHeld:
		b.reset.release()
		b.machine.HandleControl(ctx, control, edge)
	}
}

func (b *Bridge) deliver(ctx context.Context, edge alarm.Edge) {
	if _, err := b.machine.HandleEdge(ctx, edge); err != nil {
		logger.WarnKV(ctx, "Edge rejected", "error", err)
	}
}

// replayed reports whether msg is the broker redelivering the retained
// configuration last seen, as it does on every resubscribe.
func (b *Bridge) replayed(msg paho.Message) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Retained() && b.lastConfig != nil && bytes.Equal(b.lastConfig, msg.Payload()) {
		return true
	}

	b.lastConfig = bytes.Clone(msg.Payload())

	return false
}

func (b *Bridge) handleConfig(ctx context.Context, payload []byte) {
	if b.onConfig == nil {
		logger.Warn(ctx, "Configuration received but remote apply is disabled")

		return
	}

	if err := b.onConfig(ctx, payload); err != nil {
		logger.ErrorKV(ctx, "Failed to apply configuration", "error", err)

		return
	}

	logger.Info(ctx, "Configuration applied from broker")
}
