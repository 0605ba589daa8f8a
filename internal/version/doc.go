// Package version exposes build metadata for perimeter-controller and perimeter-ctl.
//
// Version, Commit and BuildTime are injected with -ldflags at build time.
// Full is printed by the version subcommand, UserAgent is sent to devices.
package version
