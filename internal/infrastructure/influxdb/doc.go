// Package influxdb writes the hub's stats time series to InfluxDB v2.
//
// The telemetry collector periodically writes one broker_stats point with
// the broker totals and one driver_stats point per driver, tagged with the
// driver name and lifecycle state.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteBrokerStats(map[string]any{"clients": 2}, time.Now())
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Asynchronous write failures reach the SetOnError
// callback; connection and health check errors are returned directly.
package influxdb
