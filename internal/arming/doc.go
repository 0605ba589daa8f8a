// Package arming owns the controller mode and the single edge-processing path.
//
// A Machine moves between DISARMED, ARMING and ARMED, runs the arming
// countdown, gates raw sensor edges and hands accepted edges to the trigger
// log and the rule engine. Every actuation it decides on is passed to a
// non-blocking dispatcher, so the machine lock is never held across I/O.
package arming
