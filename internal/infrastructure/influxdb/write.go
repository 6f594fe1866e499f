package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the telemetry collector.
const (
	MeasurementBroker = "broker_stats"
	MeasurementDriver = "driver_stats"
)

// BrokerPoint builds a broker_stats point.
func BrokerPoint(fields map[string]any, at time.Time) *write.Point {
	return write.NewPoint(MeasurementBroker, nil, fields, at)
}

// DriverPoint builds a driver_stats point tagged with the driver and its
// lifecycle state.
func DriverPoint(driver, state string, fields map[string]any, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementDriver,
		map[string]string{
			"driver": driver,
			"state":  state,
		},
		fields,
		at,
	)
}

// WriteBrokerStats queues one broker_stats point.
//
//	client.WriteBrokerStats(map[string]any{"clients": 3, "queued_bytes": 0}, time.Now())
func (c *Client) WriteBrokerStats(fields map[string]any, at time.Time) {
	c.WritePointData(BrokerPoint(fields, at))
}

// WriteDriverStats queues one driver_stats point.
func (c *Client) WriteDriverStats(driver, state string, fields map[string]any, at time.Time) {
	c.WritePointData(DriverPoint(driver, state, fields, at))
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	c.WritePointData(write.NewPoint(measurement, tags, fields, timestamp))
}

// WritePointData queues a prepared point. Points are dropped while the
// client is disconnected.
func (c *Client) WritePointData(point *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(point)
}
