// Package fleet runs one session per device (or per device group) and
// steers them from a single control loop.
//
// All sessions share the catalog, the detector and one stop signal; each
// has its own engine, dispatcher and pause flag. The control loop drains
// operator commands, refreshes the status snapshot for listeners and, when
// there are more devices than sessions, rotates each session through its
// device group.
package fleet
