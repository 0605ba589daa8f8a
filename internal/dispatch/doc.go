// Package dispatch executes actuator commands off the edge-processing path.
//
// Each command runs on its own goroutine; a weighted semaphore bounds how many
// touch the network at once. Camera pulses are fire-and-forget, NVR commands
// probe reachability and retry with exponential backoff. Close cancels every
// pending wait so shutdown never hangs on a retrying command.
package dispatch
