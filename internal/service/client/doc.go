// Package client implements the perimeter-ctl operations.
//
// Each operation dials the controller's gRPC control API, performs one call
// as the local user and prints the resulting status. Status can also poll
// the controller until interrupted.
package client
