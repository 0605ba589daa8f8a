// Package config defines the controller settings and the device topology,
// and provides helpers to load, validate and save them in YAML format.
//
// A Config carries process settings (gRPC address, MQTT broker, credentials,
// dry-run) and a Topology: cameras, detectors, NVRs, beacon endpoints, rules
// and correlation timing. The same Topology document is accepted at runtime
// through the "apply configuration" channels.
package config
