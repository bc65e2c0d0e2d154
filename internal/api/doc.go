// Package api implements the local control panel: an HTTP REST API and a
// WebSocket status stream for a running fleet.
//
// This package provides:
//   - fleet status and per-session snapshots
//   - pause, resume, switch and stop commands routed to the coordinator
//   - run history from the SQLite store
//   - the last captured frame of a session as PNG (when frames are kept)
//   - a WebSocket hub broadcasting the "events" and "status" channels
//
// # Architecture
//
// The server never touches sessions directly. Commands are queued on the
// coordinator through the Controller interface and applied by its control
// loop; reads come from the coordinator's last status snapshot.
//
// # Security
//
// The panel is meant for a trusted local network and binds to 127.0.0.1 by
// default. There is no authentication.
package api
