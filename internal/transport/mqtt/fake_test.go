package mqtt

import (
	"context"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/oshokin/perimeter-alarm/internal/config"
	"github.com/oshokin/perimeter-alarm/internal/domain/alarm"
	"github.com/oshokin/perimeter-alarm/internal/registry"
)

// doneToken is an already completed token.
type doneToken struct {
	err error
}

func (doneToken) Wait() bool { return true }

func (doneToken) WaitTimeout(time.Duration) bool { return true }

func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)

	return ch
}

func (t doneToken) Error() error { return t.err }

// fakeMessage is an inbound broker message.
type fakeMessage struct {
	topic    string
	payload  []byte
	retained bool
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return qosAtLeastOnce }
func (m fakeMessage) Retained() bool    { return m.retained }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type published struct {
	topic    string
	retained bool
	payload  string
}

// fakeClient records broker calls and replays retained messages on subscribe.
type fakeClient struct {
	paho.Client

	mu           sync.Mutex
	retained     map[string][]byte
	subscribed   []string
	unsubscribed []string
	published    []published
	disconnected bool
}

func (c *fakeClient) Subscribe(topic string, _ byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.subscribed = append(c.subscribed, topic)

	if payload, ok := c.retained[topic]; ok {
		go callback(c, fakeMessage{topic: topic, payload: payload, retained: true})
	}

	return doneToken{}
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	for topic := range filters {
		c.subscribed = append(c.subscribed, topic)

		if payload, ok := c.retained[topic]; ok {
			go callback(c, fakeMessage{topic: topic, payload: payload, retained: true})
		}
	}

	return doneToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.unsubscribed = append(c.unsubscribed, topics...)

	return doneToken{}
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload any) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	text, _ := payload.(string)
	c.published = append(c.published, published{topic: topic, retained: retained, payload: text})

	return doneToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.disconnected = true
}

type controlCall struct {
	control registry.Control
	edge    alarm.EdgeType
}

// fakeMachine records what the bridge delivers.
type fakeMachine struct {
	pins     map[int]string
	controls config.Controls

	mu        sync.Mutex
	edges     []alarm.Edge
	requested []controlCall
}

func (m *fakeMachine) HandleEdge(_ context.Context, edge alarm.Edge) ([]*alarm.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.edges = append(m.edges, edge)

	return nil, nil
}

func (m *fakeMachine) HandleControl(_ context.Context, control registry.Control, edge alarm.EdgeType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requested = append(m.requested, controlCall{control: control, edge: edge})
}

func (m *fakeMachine) Resolve(pin int) (string, registry.Control, bool) {
	if m.controls.ArmSwitchPin != nil && *m.controls.ArmSwitchPin == pin {
		return "", registry.ControlArmSwitch, true
	}

	if m.controls.ResetPin != nil && *m.controls.ResetPin == pin {
		return "", registry.ControlReset, true
	}

	id, ok := m.pins[pin]

	return id, registry.ControlNone, ok
}

func (m *fakeMachine) Controls() config.Controls {
	return m.controls
}

func (m *fakeMachine) calls() ([]alarm.Edge, []controlCall) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]alarm.Edge(nil), m.edges...), append([]controlCall(nil), m.requested...)
}
