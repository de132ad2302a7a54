package device

import (
	"fmt"
	"strconv"

	"github.com/nerrad567/gray-logic-melcloud/internal/coordinator"
	"github.com/nerrad567/gray-logic-melcloud/internal/melcloud"
)

// DefaultManufacturer is reported when no manufacturer override is configured.
const DefaultManufacturer = "Mitsubishi"

// Accessory is one air conditioner exposed by the bridge.
type Accessory struct {
	ID           int    `json:"id"`
	BuildingID   int    `json:"building_id"`
	Name         string `json:"name"`
	Model        string `json:"model"`
	Manufacturer string `json:"manufacturer"`
	SerialNumber string `json:"serial_number"`
	MacAddress   string `json:"mac_address,omitempty"`
}

// Target addresses the accessory in coordinator requests.
func (a Accessory) Target() coordinator.Target {
	return coordinator.Target{DeviceID: a.ID, BuildingID: a.BuildingID}
}

// Info holds accessory information overrides. Empty fields fall back to
// what MELCloud reports, or to DefaultManufacturer.
type Info struct {
	Model        string
	Manufacturer string
	SerialNumber string
}

// NewAccessory builds an accessory from a discovered MELCloud device.
func NewAccessory(d melcloud.Device, info Info) Accessory {
	a := Accessory{
		ID:           d.ID,
		BuildingID:   d.BuildingID,
		Name:         d.Name,
		Model:        info.Model,
		Manufacturer: info.Manufacturer,
		SerialNumber: info.SerialNumber,
		MacAddress:   d.MacAddress,
	}
	if a.Manufacturer == "" {
		a.Manufacturer = DefaultManufacturer
	}
	if a.SerialNumber == "" {
		a.SerialNumber = d.SerialNumber
	}
	return a
}

// ParseID converts a path or topic segment into an accessory ID.
func ParseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return id, nil
}
