// Package registry holds the static device topology: cameras, detectors,
// NVRs, beacon endpoints and the pin bindings of the physical controls.
//
// A Registry is built once from a validated config.Topology and replaced as a
// whole on configuration reload. Besides lookups it keeps the interest table
// that decides whether raw edges from a sensor are delivered at all.
package registry
