// Package session supervises one device session.
//
// A Supervisor owns one engine and drives it tick by tick until its
// deadline, the shared stop signal or an abort. Between ticks it serves
// pause, scheduled breaks and device rebind requests. Tick errors are
// logged and retried after a short backoff; they never end the session.
// On the way out the engine is closed and the run is recorded.
package session
