// Package rules decides whether the recorded triggers confirm an intrusion.
//
// One Engine serves both correlation policies over the same trigger log:
//   - rules: named ANY/ALL rules evaluated in configured order, first match wins;
//   - pairwise: every recently triggered camera is checked against its
//     associated detectors, first correlated detector wins per camera.
//
// A confirmation consumes the detectors' timestamps (and, when configured, the
// cameras') so one physical event never satisfies a second rule.
package rules
