// Package alarm contains the core domain types of the perimeter controller.
//
// It defines the system Mode, the Status snapshot handed to operators, raw
// sensor Edges and the actions sent to the beacon and NVR collaborators.
package alarm
