// Package telemetry fans engine events, tick outcomes and fleet status out
// to the run history, MQTT, InfluxDB and the WebSocket hub.
//
// Producers call Emit, Tick and PublishStatus from session goroutines and
// the fleet control loop. Those calls only enqueue; a single Run goroutine
// performs the writes so a slow broker or disk never stalls a tick. When
// the queue is full the item is dropped and counted.
//
// Every target is optional. A Fanout with no targets is a valid sink that
// discards everything.
package telemetry
