// Package controller wires the perimeter-controller process.
//
// Run loads the settings file, builds the dispatcher, the arming machine,
// the optional MQTT bridge and the gRPC control API, and tears them down in
// reverse order once the context ends.
package controller
