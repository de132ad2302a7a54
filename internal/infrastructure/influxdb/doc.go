// Package influxdb records MELCloud snapshots as time-series data.
//
// It wraps influxdb-client-go v2 with a non-blocking, batched write API.
// Every snapshot the coordinator fetches becomes one point in the
// melcloud_snapshot measurement, tagged by device and building:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSnapshot(deviceID, buildingID, snap)
//
// Writes never block the caller. Failures are delivered to the callback
// registered with SetOnError.
package influxdb
