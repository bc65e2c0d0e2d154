// Package device talks to Android devices and emulators through adb.
//
// It covers four concerns:
//
//   - Client and Device: adb invocations through a Runner. A Device captures
//     frames ("exec-out screencap", PNG or raw framebuffer) and injects taps
//     and swipes ("shell input").
//   - Discoverer: "adb devices", "adb connect" over common emulator ports and
//     getprop probing to identify the emulator family (MuMu, LDPlayer, ...).
//   - Inventory: persisted emulator records (SQLiteInventory).
//   - Registry: an in-memory cache over the inventory that also tracks which
//     serials are attached right now.
//
// # Usage
//
//	runner := device.NewExecRunner(cfg.ADB)
//	client := device.NewClient(runner)
//
//	found, err := device.NewDiscoverer(client, cfg.ADB.ConnectHost, cfg.ADB.CommonPorts).
//	    Discover(ctx, true)
//	registry.Record(ctx, found)
//
//	dev, err := client.Device("127.0.0.1:16384", device.CapturePNG)
//	frame, err := dev.Capture(ctx)
//	err = dev.Tap(ctx, 640, 360)
//
// # Thread Safety
//
// Device and Registry are safe for concurrent use. Discoverer is meant to be
// used from one goroutine at a time.
package device
