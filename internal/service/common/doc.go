// Package common holds helpers shared by the operator commands.
//
// It provides a gRPC client for the controller's control API with per-call
// timeouts, and detects the local actor (hostname/username) that is sent
// along with every request for the controller's audit log.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
