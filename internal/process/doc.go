// Package process keeps a helper subprocess alive.
//
// yysbot uses it to own the adb server when adb.manage_server is set. A
// server that is already listening (most emulators start their own) is
// detected up front and left alone. A server that crashes or stops
// answering on its port is restarted with exponential backoff, which
// sessions see as a few failed captures.
//
// The process runs in its own group. Stop sends SIGTERM to the group and
// SIGKILL after the grace period. Output lines go to the logger; adb error
// lines are logged at warn.
//
//	mgr := process.NewManager(process.ADBServer(cfg.ADB))
//	mgr.SetLogger(logger)
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
