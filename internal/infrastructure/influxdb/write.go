package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementSensorReading is the measurement readings are written to.
const MeasurementSensorReading = "sensor_reading"

// WriteSensorReading queues one reading. The point carries the reading's
// own timestamp, not the time it was mirrored.
func (c *Client) WriteSensorReading(plantID string, moisture, light, temperature float64, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(sensorPoint(plantID, moisture, light, temperature, ts))
}

func sensorPoint(plantID string, moisture, light, temperature float64, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementSensorReading,
		map[string]string{"plant_id": plantID},
		map[string]any{
			"moisture":    moisture,
			"light":       light,
			"temperature": temperature,
		},
		ts,
	)
}
