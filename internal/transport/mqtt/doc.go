// Package mqtt connects the controller to its input/output board over MQTT.
//
// Topic layout, relative to <prefix>/<controller_id>:
//
//	pin/<n>     input level changes (payload "1"/"0", "pressed"/"released",
//	            "held", or JSON {"state": "...", "ts": "RFC3339"})
//	sensor/<id> the same payloads addressed by sensor id
//	relay       auxiliary relay output, published "1"/"0"
//	config      YAML topology documents applied at runtime
//
// Retained pin messages are only read once, to probe the arm switch level at
// startup; live handling ignores them so a reconnect never replays a level.
package mqtt
