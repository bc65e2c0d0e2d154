// Package panel serves the browser control page embedded in the binary.
//
// The page lists the running sessions, streams their events over the
// WebSocket hub and posts pause, resume, switch and stop commands to the
// REST API. It is plain HTML and JavaScript with no build step.
package panel
