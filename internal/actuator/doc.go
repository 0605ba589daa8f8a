// Package actuator talks to cameras, NVRs and the status beacon over their
// HTTP control plane.
//
// Cameras and NVRs are driven through configManager.cgi setConfig calls with
// digest authentication; the beacon accepts GET /<action> with basic
// authentication. Reachability is probed with a TCP connect to the device.
package actuator
