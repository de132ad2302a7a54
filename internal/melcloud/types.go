package melcloud

import (
	"encoding/json"
	"fmt"
)

// Flags is the EffectiveFlags bitmask telling MELCloud which snapshot
// fields an update changes.
type Flags int

// Dirty-field bits understood by Device/SetAta.
const (
	FlagPower          Flags = 1
	FlagOperationMode  Flags = 2
	FlagSetTemperature Flags = 4
	FlagFanSpeed       Flags = 8
	FlagVaneVertical   Flags = 16
	FlagVaneHorizontal Flags = 256
)

// Operation modes reported in Snapshot.OperationMode.
const (
	ModeHeat = 1
	ModeDry  = 2
	ModeCool = 3
	ModeFan  = 7
	ModeAuto = 8
)

// Snapshot is the full state record of one unit as returned by Device/Get.
type Snapshot struct {
	DeviceID          int     `json:"DeviceID"`
	Power             bool    `json:"Power"`
	OperationMode     int     `json:"OperationMode"`
	RoomTemperature   float64 `json:"RoomTemperature"`
	SetTemperature    float64 `json:"SetTemperature"`
	SetFanSpeed       int     `json:"SetFanSpeed"`
	NumberOfFanSpeeds int     `json:"NumberOfFanSpeeds"`
	VaneHorizontal    int     `json:"VaneHorizontal"`
	VaneVertical      int     `json:"VaneVertical"`
	EffectiveFlags    Flags   `json:"EffectiveFlags"`
	HasPendingCommand bool    `json:"HasPendingCommand"`

	// extra holds every field not modelled above, keyed by JSON name.
	extra map[string]json.RawMessage
}

// snapshotFields is the wire alias used to avoid recursion in the JSON methods.
type snapshotFields Snapshot

var knownSnapshotKeys = []string{
	"DeviceID", "Power", "OperationMode", "RoomTemperature", "SetTemperature",
	"SetFanSpeed", "NumberOfFanSpeeds", "VaneHorizontal", "VaneVertical",
	"EffectiveFlags", "HasPendingCommand",
}

// UnmarshalJSON decodes the modelled fields and keeps the rest.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var fields snapshotFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	for _, key := range knownSnapshotKeys {
		delete(raw, key)
	}
	if len(raw) == 0 {
		raw = nil
	}

	*s = Snapshot(fields)
	s.extra = raw
	return nil
}

// MarshalJSON encodes the modelled fields together with the preserved ones.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(snapshotFields(s))
	if err != nil {
		return nil, err
	}
	if len(s.extra) == 0 {
		return known, nil
	}

	merged := make(map[string]json.RawMessage, len(s.extra)+len(knownSnapshotKeys))
	for k, v := range s.extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, fmt.Errorf("re-reading snapshot fields: %w", err)
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Extra returns the raw value of a field the Snapshot does not model.
func (s *Snapshot) Extra(key string) (json.RawMessage, bool) {
	v, ok := s.extra[key]
	return v, ok
}

// Clone returns a deep copy, so that callers may mutate it freely.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	cp := *s
	if s.extra != nil {
		cp.extra = make(map[string]json.RawMessage, len(s.extra))
		for k, v := range s.extra {
			cp.extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &cp
}

// Device is one unit discovered through User/ListDevices.
type Device struct {
	ID           int
	BuildingID   int
	Name         string
	SerialNumber string
	MacAddress   string
}

// listedDevice is a device entry inside the building structure.
type listedDevice struct {
	DeviceID     int    `json:"DeviceID"`
	DeviceName   string `json:"DeviceName"`
	BuildingID   int    `json:"BuildingID"`
	SerialNumber string `json:"SerialNumber"`
	MacAddress   string `json:"MacAddress"`
}

type area struct {
	Devices []listedDevice `json:"Devices"`
}

type floor struct {
	Devices []listedDevice `json:"Devices"`
	Areas   []area         `json:"Areas"`
}

type structure struct {
	Devices []listedDevice `json:"Devices"`
	Floors  []floor        `json:"Floors"`
	Areas   []area         `json:"Areas"`
}

type building struct {
	ID        int       `json:"ID"`
	Name      string    `json:"Name"`
	Structure structure `json:"Structure"`
}

// devices flattens the building tree in the order MELCloud lists it:
// building-level devices, each floor with its areas, then building areas.
func (b building) devices() []Device {
	var out []Device
	add := func(list []listedDevice) {
		for _, d := range list {
			out = append(out, Device{
				ID:           d.DeviceID,
				BuildingID:   b.ID,
				Name:         d.DeviceName,
				SerialNumber: d.SerialNumber,
				MacAddress:   d.MacAddress,
			})
		}
	}

	add(b.Structure.Devices)
	for _, f := range b.Structure.Floors {
		add(f.Devices)
		for _, a := range f.Areas {
			add(a.Devices)
		}
	}
	for _, a := range b.Structure.Areas {
		add(a.Devices)
	}
	return out
}

type loginResponse struct {
	ErrorID   *int `json:"ErrorId"`
	LoginData *struct {
		ContextKey    string `json:"ContextKey"`
		UseFahrenheit bool   `json:"UseFahrenheit"`
	} `json:"LoginData"`
}

// applicationOptions is the body of User/UpdateApplicationOptions. Only
// UseFahrenheit varies; the rest are the values the MELCloud app sends.
type applicationOptions struct {
	UseFahrenheit          bool   `json:"UseFahrenheit"`
	EmailOnCommsError      bool   `json:"EmailOnCommsError"`
	EmailOnUnitError       bool   `json:"EmailOnUnitError"`
	EmailCommsErrors       int    `json:"EmailCommsErrors"`
	EmailUnitErrors        int    `json:"EmailUnitErrors"`
	RestorePages           bool   `json:"RestorePages"`
	MarketingCommunication bool   `json:"MarketingCommunication"`
	AlternateEmailAddress  string `json:"AlternateEmailAddress"`
	Fred                   int    `json:"Fred"`
}

func newApplicationOptions(useFahrenheit bool) applicationOptions {
	return applicationOptions{
		UseFahrenheit:    useFahrenheit,
		EmailCommsErrors: 1,
		EmailUnitErrors:  1,
		Fred:             4,
	}
}
