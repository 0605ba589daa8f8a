package mqtt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/perimeter-alarm/internal/domain/alarm"
)

// ErrBadPayload is returned for input messages that are not an edge.
var ErrBadPayload = errors.New("bad edge payload")

// edgeMessage is the structured form of an input message.
type edgeMessage struct {
	State     string     `json:"state"`
	Timestamp *time.Time `json:"ts,omitempty"`
}

// parseEdge decodes an input message. Messages without a timestamp are
// stamped with now.
func parseEdge(payload []byte, now time.Time) (alarm.EdgeType, time.Time, error) {
	payload = bytes.TrimSpace(payload)

	state := string(payload)
	ts := now

	if bytes.HasPrefix(payload, []byte("{")) {
		var msg edgeMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return 0, time.Time{}, fmt.Errorf("%w: %w", ErrBadPayload, err)
		}

		state = msg.State

		if msg.Timestamp != nil && !msg.Timestamp.IsZero() {
			ts = *msg.Timestamp
		}
	}

	edge, ok := alarm.ParseEdgeType(state)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("%w: state %q", ErrBadPayload, state)
	}

	return edge, ts, nil
}

// relayPayload encodes a relay level.
func relayPayload(on bool) string {
	if on {
		return "1"
	}

	return "0"
}
