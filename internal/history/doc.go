// Package history persists session runs and their event log to SQLite.
//
// A session row is written when the session starts and updated when it
// ends, so events recorded in between always have a parent row.
package history
