package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-melcloud/internal/melcloud"
)

// MeasurementSnapshot is the measurement every fetched snapshot is written to.
const MeasurementSnapshot = "melcloud_snapshot"

// SnapshotPoint converts a snapshot into a melcloud_snapshot point.
func SnapshotPoint(deviceID, buildingID int, snap *melcloud.Snapshot, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementSnapshot,
		map[string]string{
			"device_id":   strconv.Itoa(deviceID),
			"building_id": strconv.Itoa(buildingID),
		},
		map[string]interface{}{
			"power":            snap.Power,
			"operation_mode":   snap.OperationMode,
			"room_temperature": snap.RoomTemperature,
			"set_temperature":  snap.SetTemperature,
			"fan_speed":        snap.SetFanSpeed,
			"vane_horizontal":  snap.VaneHorizontal,
			"vane_vertical":    snap.VaneVertical,
		},
		at,
	)
}

// WriteSnapshot queues a point for snap. Nil snapshots and writes after
// Close are ignored.
func (c *Client) WriteSnapshot(deviceID, buildingID int, snap *melcloud.Snapshot) {
	if snap == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(SnapshotPoint(deviceID, buildingID, snap, time.Now()))
}
