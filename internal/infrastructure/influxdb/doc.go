// Package influxdb provides InfluxDB connectivity for yysbot tick and tap metrics.
//
// It wraps the official influxdb-client-go v2 library. Writes are
// non-blocking and batched; asynchronous write errors are reported through
// SetOnError.
//
// # Measurements
//
//	tick  tags: session, device, phase   fields: duration_ms, candidates, budget_exceeded
//	tap   tags: session, device, control fields: x, y, confidence
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTap(influxdb.TapMetric{Session: id, Device: serial, Control: "button10", X: 640, Y: 360})
package influxdb
