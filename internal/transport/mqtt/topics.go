package mqtt

import (
	"strconv"
	"strings"
)

// Topics builds and parses the topics of one controller.
type Topics struct {
	base string
}

// NewTopics returns the topic set rooted at prefix/controllerID.
func NewTopics(prefix, controllerID string) Topics {
	return Topics{base: strings.TrimSuffix(prefix, "/") + "/" + controllerID}
}

// Pin is the topic of one input pin.
func (t Topics) Pin(n int) string {
	return t.base + "/pin/" + strconv.Itoa(n)
}

// Pins matches every input pin.
func (t Topics) Pins() string {
	return t.base + "/pin/+"
}

// Sensors matches every sensor addressed by id.
func (t Topics) Sensors() string {
	return t.base + "/sensor/+"
}

// Relay is the auxiliary relay output topic.
func (t Topics) Relay() string {
	return t.base + "/relay"
}

// Config is the topology apply topic.
func (t Topics) Config() string {
	return t.base + "/config"
}

// ParsePin extracts the pin number from a pin topic.
func (t Topics) ParsePin(topic string) (int, bool) {
	rest, ok := strings.CutPrefix(topic, t.base+"/pin/")
	if !ok || rest == "" {
		return 0, false
	}

	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}

	return n, true
}

// ParseSensor extracts the sensor id from a sensor topic.
func (t Topics) ParseSensor(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, t.base+"/sensor/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}

	return id, true
}
