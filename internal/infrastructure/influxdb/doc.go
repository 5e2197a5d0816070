// Package influxdb mirrors sensor readings into InfluxDB v2.
//
// SQLite stays the system of record; the mirror exists so readings can be
// graphed and downsampled with Flux. Writes are non-blocking and batched
// according to influxdb.batch_size and influxdb.flush_interval.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSensorReading(plantID, 41.5, 830, 21.2, ts)
//
// Each reading becomes one point in the sensor_reading measurement, tagged
// by plant_id, with moisture, light and temperature fields.
package influxdb
