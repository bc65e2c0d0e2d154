// Package mqtt provides the optional MQTT operator channel for yysbot.
//
// This package manages:
//   - Connection to a local broker with auto-reconnect
//   - Retained online/offline status with Last Will and Testament
//   - Session status and event publishing
//   - Command subscriptions (yysbot/command/{target}, yysbot/command/all)
//
// # Topic tree
//
//	yysbot/system/status          retained online/offline, LWT
//	yysbot/fleet/status           retained fleet status snapshot
//	yysbot/session/{id}/status    retained status snapshot
//	yysbot/session/{id}/event     tap, abort and gate events
//	yysbot/command/{id|all}       {"action":"pause"} ...
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(client.Topics().SessionStatus(id), status, true)
package mqtt
