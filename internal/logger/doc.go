// Package logger wraps zap for the controller and the CLI:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and runtime level changes,
//   - leveled helpers (Info, InfoKV, WarnKV, ErrorKV, ...).
//
// Components receive a context and log through it, so every line carries the
// component name and the identifiers attached upstream (incident, device).
package logger
