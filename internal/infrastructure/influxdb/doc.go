// Package influxdb provides the optional InfluxDB telemetry sink for Bumper.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring.
//
// # Purpose
//
// Two measurements are written:
//   - relay: one point per relayed command (did, command, outcome, latency)
//   - bots: periodic catalogue snapshots (total, bus and presence connected)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	relayer.SetObserver(relay.Observers{metrics, client})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Error Handling
//
// Write operations are non-blocking; batch errors are reported through the
// SetOnError callback. Connection and health check errors are returned directly.
package influxdb
